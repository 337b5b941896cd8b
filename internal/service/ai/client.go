package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"quantumlab/internal/config"
	"quantumlab/internal/models"
)

// Client wraps a provider chat model behind a uniform completion API.
// When tools are enabled, chat requests run through a react agent that can
// call web search.
type Client struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	provider  string
	modelName string
}

// Options tunes a single completion call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// NewClient builds a chat model for the named provider. Keys come from
// server-side configuration, never from the request.
func NewClient(cfg *config.Config, provider, modelName string, withTools bool) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var genaiClient *genai.Client
		genaiClient, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: genaiClient,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	var reactAgent *react.Agent
	if withTools {
		tools := InitToolsChain()
		if len(tools) > 0 {
			reactAgent, err = react.NewAgent(context.Background(), &react.AgentConfig{
				ToolCallingModel: chatModel,
				ToolsConfig: compose.ToolsNodeConfig{
					Tools: tools,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("init react agent: %w", err)
			}
		} else {
			log.Printf("ai client: no tools available, agent disabled")
		}
	}

	return &Client{
		chatModel: chatModel,
		agent:     reactAgent,
		provider:  provider,
		modelName: modelName,
	}, nil
}

// Complete runs a single system+user exchange and returns the text reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: userPrompt},
	}
	resp, err := c.chatModel.Generate(ctx, messages, callOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Chat runs a multi-turn conversation. When a react agent is configured the
// model may call tools before answering.
func (c *Client) Chat(ctx context.Context, systemPrompt string, history []*models.Message, opts Options) (string, error) {
	if len(history) == 0 {
		return "", errors.New("history cannot be empty")
	}
	messages := make([]*schema.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: systemPrompt})
	}
	for _, msg := range history {
		if msg == nil {
			continue
		}
		messages = append(messages, &schema.Message{
			Role:    schemaRole(msg.Role),
			Content: msg.Content,
		})
	}

	var (
		resp *schema.Message
		err  error
	)
	if c.agent != nil {
		resp, err = c.agent.Generate(ctx, messages)
	} else {
		resp, err = c.chatModel.Generate(ctx, messages, callOptions(opts)...)
	}
	if err != nil {
		return "", fmt.Errorf("generate chat reply: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Provider reports which provider backs this client.
func (c *Client) Provider() string {
	return c.provider
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

func callOptions(opts Options) []model.Option {
	var out []model.Option
	if opts.Temperature > 0 {
		out = append(out, model.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		out = append(out, model.WithMaxTokens(opts.MaxTokens))
	}
	return out
}

func schemaRole(role models.Role) schema.RoleType {
	switch role {
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	default:
		return schema.User
	}
}
