package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quantumlab/internal/auth"
	"quantumlab/internal/models"
	"quantumlab/internal/pipeline"
	"quantumlab/internal/service/account"
	"quantumlab/internal/service/chat"
	"quantumlab/internal/service/exam"
)

const maxArchiveBytes = 50 << 20 // 50 MB

// Analyzer runs the archive analysis pipeline for one job.
type Analyzer interface {
	Run(ctx context.Context, job *pipeline.Job) (*models.Analysis, error)
}

// Handler wires HTTP routes to the services.
type Handler struct {
	accounts  *account.Service
	auth      *auth.Service
	exams     *exam.Service
	chat      *chat.Service
	analyzer  Analyzer
	uploadDir string
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts *account.Service, authService *auth.Service, exams *exam.Service, chatService *chat.Service, analyzer Analyzer, uploadDir string) *Handler {
	return &Handler{
		accounts:  accounts,
		auth:      authService,
		exams:     exams,
		chat:      chatService,
		analyzer:  analyzer,
		uploadDir: uploadDir,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)

	authMW := h.auth.Middleware()
	csrfMW := h.auth.CSRFMiddleware()

	authRoutes := api.Group("/auth")
	authRoutes.Use(authMW)
	authRoutes.GET("/validate", h.validateToken)
	authRoutes.POST("/logout", csrfMW, h.logoutUser)
	authRoutes.GET("/users", h.listUsers)
	authRoutes.DELETE("/users/:id", csrfMW, h.deleteUser)

	examRoutes := api.Group("/exams")
	examRoutes.Use(authMW)
	examRoutes.POST("/analyze", csrfMW, h.analyzeArchive)
	examRoutes.GET("", h.listExams)
	examRoutes.GET("/:id", h.getExam)

	chatRoutes := api.Group("/chat")
	chatRoutes.Use(authMW)
	chatRoutes.POST("/message", csrfMW, h.sendChatMessage)
	chatRoutes.GET("/history", h.chatHistory)
	chatRoutes.DELETE("/history", csrfMW, h.clearChatHistory)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) requireAdmin(c *gin.Context) (int64, bool) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return 0, false
	}
	user, err := h.accounts.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	if user.Role != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return 0, false
	}
	return userID, true
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// registerUser creates an account. The first account ever created needs no
// authorization and becomes admin; afterwards only admins may register users.
func (h *Handler) registerUser(c *gin.Context) {
	ctx := c.Request.Context()
	count, err := h.accounts.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration unavailable"})
		return
	}
	if count > 0 {
		if _, ok := h.requireAdminFromToken(c); !ok {
			return
		}
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, account.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"created_at": user.CreatedAt,
	})
}

// requireAdminFromToken validates the bearer token manually; used on routes
// registered without the auth middleware.
func (h *Handler) requireAdminFromToken(c *gin.Context) (int64, bool) {
	header := c.GetHeader("Authorization")
	tokenStr := ""
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		tokenStr = strings.TrimSpace(header[7:])
	} else if cookieToken, err := c.Cookie(h.auth.AuthCookieName()); err == nil {
		tokenStr = cookieToken
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	userID, err := h.auth.ValidateToken(c.Request.Context(), tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return 0, false
	}
	user, err := h.accounts.GetByID(c.Request.Context(), userID)
	if err != nil || user.Role != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) validateToken(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.accounts.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
			return
		}
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) listUsers(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	users, err := h.accounts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) deleteUser(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || targetID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), targetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.Delete(c.Request.Context(), targetID); err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, account.ErrProtectedUser):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// analyzeArchive accepts a zip of lab reports and runs the analysis pipeline.
func (h *Handler) analyzeArchive(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("zip")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": pipeline.ErrNoFile.Error()})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".zip") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .zip archives are accepted"})
		return
	}
	if fileHeader.Size > maxArchiveBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "archive too large"})
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prepare upload directory failed"})
		return
	}
	archiveName := fmt.Sprintf("upload_%d_%d.zip", userID, time.Now().UnixNano())
	archivePath := filepath.Join(h.uploadDir, archiveName)
	if err := c.SaveUploadedFile(fileHeader, archivePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save archive failed"})
		return
	}

	job := pipeline.NewJob(h.uploadDir, userID, filepath.Base(fileHeader.Filename), archivePath)
	analysis, err := h.analyzer.Run(c.Request.Context(), job)
	if err != nil {
		c.JSON(statusForPipelineError(err), gin.H{"error": err.Error()})
		return
	}

	record, err := h.exams.Create(c.Request.Context(), userID, filepath.Base(fileHeader.Filename), analysis)
	if err != nil {
		c.JSON(statusForPipelineError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, record)
}

func statusForPipelineError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNoFile), errors.Is(err, pipeline.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrUpstream), errors.Is(err, pipeline.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) listExams(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	exams, err := h.exams.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exams": exams})
}

func (h *Handler) getExam(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	examID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || examID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam id"})
		return
	}
	record, err := h.exams.GetByID(c.Request.Context(), userID, examID)
	if err != nil {
		if errors.Is(err, exam.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, record)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) sendChatMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.chat.SendMessage(c.Request.Context(), userID, req.Message)
	if err != nil {
		if strings.Contains(err.Error(), "cannot be empty") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *Handler) chatHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	history, err := h.chat.History(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if history == nil {
		history = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) clearChatHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.chat.Clear(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "history cleared"})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
