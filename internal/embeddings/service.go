package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteConfig configures the remote embedding service client.
type RemoteConfig struct {
	// BaseURL is the text-embeddings-inference endpoint, without the
	// /embed suffix.
	BaseURL string

	// APIKey is sent as a Bearer token when set.
	APIKey string

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64

	// MaxChars truncates each input before sending. Default: 512.
	MaxChars int

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// RemoteService calls a text-embeddings-inference server over HTTP.
type RemoteService struct {
	config  RemoteConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRemoteService creates a remote embedding client.
func NewRemoteService(config RemoteConfig, logger *zap.Logger) (*RemoteService, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if config.VectorSize <= 0 {
		return nil, fmt.Errorf("vector size must be positive, got %d", config.VectorSize)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxChars == 0 {
		config.MaxChars = 512
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &RemoteService{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// Embed requests embeddings for a batch of texts. The response must carry
// one vector per input, each of the configured dimension.
func (s *RemoteService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = s.normalizeText(t)
	}

	body, err := json.Marshal(embedRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	url := strings.TrimSuffix(s.config.BaseURL, "/") + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.config.VectorSize {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), s.config.VectorSize)
		}
	}
	return vectors, nil
}

// normalizeText collapses whitespace runs and truncates to MaxChars without
// splitting a UTF-8 sequence.
func (s *RemoteService) normalizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > s.config.MaxChars {
		n := s.config.MaxChars
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return text
}
