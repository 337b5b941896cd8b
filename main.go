package main

import (
	"context"
	"log"
	"os"
	"time"

	"quantumlab/internal/api"
	"quantumlab/internal/auth"
	"quantumlab/internal/catalog"
	"quantumlab/internal/config"
	"quantumlab/internal/pipeline"
	"quantumlab/internal/redis"
	"quantumlab/internal/service/account"
	"quantumlab/internal/service/ai"
	"quantumlab/internal/service/chat"
	"quantumlab/internal/service/exam"
	"quantumlab/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("QUANTUMLAB_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("QUANTUMLAB_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-process stores: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	cat := catalog.New(nil)
	if path := cfg.BasicConfig.CatalogPath; path != "" {
		cat, err = catalog.Load(path)
		if err != nil {
			log.Fatalf("load catalog: %v", err)
		}
		log.Printf("catalog: %d items", cat.Len())
	} else {
		log.Printf("catalog path not set, recommendations unrestricted")
	}

	summaryLLM, err := ai.NewClient(cfg, cfg.Pipeline.Provider, cfg.Pipeline.SummaryModel, false)
	if err != nil {
		log.Fatalf("init summary model: %v", err)
	}
	synthesisLLM := summaryLLM
	if cfg.Pipeline.SynthesisModel != "" && cfg.Pipeline.SynthesisModel != cfg.Pipeline.SummaryModel {
		synthesisLLM, err = ai.NewClient(cfg, cfg.Pipeline.Provider, cfg.Pipeline.SynthesisModel, false)
		if err != nil {
			log.Fatalf("init synthesis model: %v", err)
		}
	}
	chatLLM, err := ai.NewClient(cfg, cfg.Chat.Provider, cfg.Chat.Model, true)
	if err != nil {
		log.Fatalf("init chat model: %v", err)
	}

	uploadDir := cfg.BasicConfig.UploadBaseDir
	if uploadDir == "" {
		uploadDir = "./data/uploads"
	}

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	authService := auth.NewService(db, rdb, tokenTTL)
	accountService := account.NewService(db)
	examService := exam.NewService(db)
	analysisPipeline := pipeline.New(summaryLLM, synthesisLLM, cat, cfg.Pipeline)

	var historyStore chat.HistoryStore
	if rdb != nil {
		historyStore, err = chat.NewRedisHistoryStore(rdb)
		if err != nil {
			log.Fatalf("init chat history store: %v", err)
		}
	} else {
		historyStore = chat.NewMemoryHistoryStore()
	}
	chatService := chat.NewService(chatLLM, historyStore, cfg.Chat.HistoryLimit, cfg.Chat.MaxTokens)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweeper := pipeline.NewSweeper(uploadDir, time.Duration(cfg.BasicConfig.ScratchTTLMinutes)*time.Minute)
	sweeper.Start(sweepCtx, time.Duration(cfg.BasicConfig.SweepIntervalMinutes)*time.Minute)

	handlers := api.NewHandler(accountService, authService, examService, chatService, analysisPipeline, uploadDir)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
