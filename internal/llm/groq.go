package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowbit/vanna/internal/observability"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTemperature = 0.7
)

var ErrEmptyPrompt = errors.New("prompt is empty")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ApproxTokens estimates the prompt size as one token per four characters of content.
func ApproxTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content) / 4
	}
	return total
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
}

// GroqClient submits chat prompts to Groq's OpenAI-compatible chat completions endpoint.
type GroqClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

func NewGroqClient(cfg Config) (*GroqClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GroqClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

// Model reports the model used when a call does not override it.
func (c *GroqClient) Model() string {
	return selectModel("", c.model)
}

// SubmitPrompt sends messages as one chat completion and returns the text of the first choice.
func (c *GroqClient) SubmitPrompt(ctx context.Context, messages []Message, model string) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyPrompt
	}
	model = selectModel(model, c.model)

	tokens := ApproxTokens(messages)
	c.logger.InfoContext(ctx, "llm_submit_prompt",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("model", model),
		slog.Int("approx_tokens", tokens),
		slog.Int("messages", len(messages)),
	)
	observability.ObserveLLMPrompt(model, tokens)

	text, err := c.complete(ctx, messages, model)
	observability.ObserveLLMResult(model, err)
	return text, err
}

func (c *GroqClient) complete(ctx context.Context, messages []Message, model string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Text    string `json:"text"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	for _, choice := range parsed.Choices {
		if choice.Text != "" {
			return choice.Text, nil
		}
	}
	return parsed.Choices[0].Message.Content, nil
}

func selectModel(override, configured string) string {
	if model := strings.TrimSpace(override); model != "" {
		return model
	}
	if model := strings.TrimSpace(configured); model != "" {
		return model
	}
	return DefaultModel
}
