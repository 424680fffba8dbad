// Package llm talks to an OpenAI-compatible chat-completions gateway: bid
// document generation and vision transcription of scanned files.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"tenderprep/internal/document"
	"tenderprep/internal/prompt"
)

const (
	DefaultBaseURL     = "https://ai.gateway.lovable.dev/v1"
	DefaultModel       = "google/gemini-2.5-flash"
	DefaultTimeout     = 120 * time.Second
	defaultTemperature = 0.2
)

// Config configures a Client. Empty fields take the defaults above.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	VisionModel       string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables client-side limiting
	JSONMode          bool    // request response_format=json_object
}

// Client is a single-shot wrapper: it never retries, and every failure that
// reached the service comes back as *Error.
type Client struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &Client{client: openai.NewClientWithConfig(oc), cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends one system+user exchange and returns the raw text reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: defaultTemperature,
	}
	if c.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return c.send(ctx, req)
}

// GenerateDocument runs a composed prompt and parses the reply.
func (c *Client) GenerateDocument(ctx context.Context, p prompt.Prompt, documentName string) (*document.Document, error) {
	start := time.Now()
	raw, err := c.Complete(ctx, p.System, p.User)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(raw, documentName)
	if err != nil {
		log.Printf("Unparseable generation response for %q (raw: %.200s)", documentName, raw)
		return nil, err
	}
	log.Printf("Generated %q in %s mode: %d sections in %v", documentName, p.Mode, len(doc.Sections), time.Since(start).Round(time.Millisecond))
	return doc, nil
}

const transcribeInstruction = `Извлеки ВЕСЬ текст из этого документа. Сохрани заголовки, нумерацию пунктов и списков.
Таблицы передай строками с разделителем "|", одна строка таблицы на одной строке текста.
Пустые поля для заполнения (подчёркивания, пустые ячейки) сохрани как есть.
Верни только текст документа, без пояснений.`

// Transcribe sends a file to the vision model and returns its text verbatim.
func (c *Client) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	req := openai.ChatCompletionRequest{
		Model: c.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcribeInstruction},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: uri, Detail: openai.ImageURLDetailHigh}},
				},
			},
		},
		Temperature: 0,
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &Error{Kind: UpstreamError, Message: msgUnavailable, Err: err}
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", malformed(errEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps go-openai errors onto error kinds.
func classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	return &Error{Kind: UpstreamError, Message: msgUnavailable, Err: fmt.Errorf("completion request: %w", err)}
}
