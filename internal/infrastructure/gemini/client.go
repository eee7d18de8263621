package gemini

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kushscan/kushscan/internal/domain"
)

// Client calls the Gemini API on behalf of both generation tiers. The tier
// split lives in the usecase layer; this client only knows models.
type Client struct {
	client      *genai.Client
	timeout     time.Duration
	rateLimiter *rate.Limiter
}

// NewClient creates a Gemini client. The free tier allows roughly 15
// requests per minute; 0.25/sec with a small burst stays under it.
func NewClient(ctx context.Context, apiKey string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", domain.ErrBackendUnavailable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &Client{
		client:      client,
		timeout:     timeout,
		rateLimiter: rate.NewLimiter(rate.Limit(0.25), 5),
	}, nil
}

// Generate sends one prompt to the named model and returns the raw response
// text. No JSON handling happens here; malformed output is the caller's
// concern.
func (c *Client) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	// Apply the client timeout unless the caller set a tighter deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Printf("[Gemini] Generate called: model=%s system_len=%d user_len=%d", model, len(systemPrompt), len(userPrompt))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), cfg)
	if err != nil {
		log.Printf("[Gemini] Generate failed: model=%s err=%v", model, err)
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	text := resp.Text()
	if text == "" {
		log.Printf("[Gemini] Generate returned empty response: model=%s", model)
		return "", fmt.Errorf("%w: empty response", domain.ErrGenerationFailure)
	}

	log.Printf("[Gemini] Generate completed in %v: model=%s response_len=%d", time.Since(start), model, len(text))
	return text, nil
}
