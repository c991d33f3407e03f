package perception

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"credence/internal/logging"
	"credence/internal/metrics"
	"credence/internal/prompt"
	"credence/internal/types"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Model call operations, used as metric and log labels.
const (
	OpReply     = "reply"
	OpSummarize = "summarize"
	OpUpload    = "upload"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// ErrUploadFailed is returned when the Files API rejects an upload.
var ErrUploadFailed = errors.New("attachment processing failed")

// GeminiConfig holds the Gemini client settings.
type GeminiConfig struct {
	APIKey       string
	Model        string
	SummaryModel string
	Temperature  float32

	// RequestsPerSecond and Burst bound outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// UploadTimeout bounds upload plus processing of one attachment.
	UploadTimeout time.Duration
	PollInterval  time.Duration
}

// DefaultGeminiConfig returns sensible defaults for the given key.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:            apiKey,
		Model:             "gemini-2.5-flash",
		SummaryModel:      "gemini-2.5-flash",
		Temperature:       0.2,
		RequestsPerSecond: 2,
		Burst:             4,
		UploadTimeout:     90 * time.Second,
		PollInterval:      time.Second,
	}
}

// GeminiClient implements types.LanguageModel on the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	config  GeminiConfig
	limiter *rate.Limiter
}

// NewGeminiClient creates a client. No network call is made.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	defaults := DefaultGeminiConfig(config.APIKey)
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.SummaryModel == "" {
		config.SummaryModel = config.Model
	}
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = defaults.UploadTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &GeminiClient{client: client, config: config}
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return c, nil
}

// Model returns the reply model name.
func (c *GeminiClient) Model() string {
	return c.config.Model
}

func (c *GeminiClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// GenerateReply sends message with the rendered context payload and returns
// the raw model text.
func (c *GeminiClient) GenerateReply(ctx context.Context, message string, payload *types.ContextPayload) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveModelCall(OpReply, start, err) }()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	if payload == nil {
		payload = &types.ContextPayload{}
	}
	system := prompt.SystemInstruction(payload)
	contents := buildContents(message, payload)
	logging.APIDebug("[Gemini] GenerateReply: model=%s system=%d bytes attachments=%d",
		c.config.Model, len(system), len(payload.Attachments))

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(c.config.Temperature),
	})
	if err != nil {
		logging.APIWarn("[Gemini] GenerateReply failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}
	text = strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	logging.APIDebug("[Gemini] GenerateReply: %d bytes in %v", len(text), time.Since(start))
	return text, nil
}

// Summarize condenses text titled title with the summary model.
func (c *GeminiClient) Summarize(ctx context.Context, text, title string) (summary string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveModelCall(OpSummarize, start, err) }()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt.SummaryRequest(text, title), genai.RoleUser),
	}
	logging.API("[Gemini] Summarize: %q (%d bytes) with %s", title, len(text), c.config.SummaryModel)
	resp, err := c.client.Models.GenerateContent(ctx, c.config.SummaryModel, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.SummaryInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini summarize failed: %w", err)
	}
	return resp.Text(), nil
}

// UploadAttachment uploads data to the Files API, waits until the file is
// processed, and returns its URI.
func (c *GeminiClient) UploadAttachment(ctx context.Context, data []byte, mediaType, displayName string) (uri string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveModelCall(OpUpload, start, err) }()

	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.UploadTimeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	logging.APIDebug("[Gemini] UploadAttachment: name=%s size=%d mime=%s", displayName, len(data), mediaType)
	file, err := c.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mediaType,
		DisplayName: displayName,
	})
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", displayName, err)
	}

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("upload %q: waiting for processing: %w", displayName, ctx.Err())
		case <-time.After(c.config.PollInterval):
		}
		file, err = c.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return "", fmt.Errorf("upload %q: poll: %w", displayName, err)
		}
	}
	if file.State == genai.FileStateFailed {
		logging.APIWarn("[Gemini] UploadAttachment: %s failed processing", displayName)
		return "", fmt.Errorf("upload %q: %w", displayName, ErrUploadFailed)
	}
	if file.URI == "" {
		return "", fmt.Errorf("upload %q: no file URI returned", displayName)
	}

	logging.APIDebug("[Gemini] UploadAttachment success: uri=%s in %v", file.URI, time.Since(start))
	return file.URI, nil
}

// buildContents assembles the single user turn: attachments first, then the
// message text.
func buildContents(message string, payload *types.ContextPayload) []*genai.Content {
	var parts []*genai.Part
	if payload != nil {
		for _, a := range payload.Attachments {
			if a.RemoteHandle == "" {
				continue
			}
			parts = append(parts, genai.NewPartFromURI(a.RemoteHandle, a.MediaType))
		}
	}
	parts = append(parts, genai.NewPartFromText(message))
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
