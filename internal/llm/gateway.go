package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const completionsPath = "/v1/chat/completions"

var tracer = otel.Tracer("github.com/noah-isme/alers-api/internal/llm")

// ErrNotConfigured is returned by every call on a gateway built without an API key.
var ErrNotConfigured = errors.New("llm: completion gateway is not configured")

// Config carries the process-wide gateway settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	CompletionTimeout time.Duration
}

// Params are the sampling parameters chosen by each call site.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Request describes one completion call. Instructions, when set, is sent as a
// leading system turn ahead of Turns. An empty Model selects the default.
type Request struct {
	Model        string
	Instructions string
	Turns        []Turn
	Params       Params
}

// Error reports a failed remote call.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("llm %s: http %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("llm %s: %s", e.Op, e.Body)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Gateway talks to an OpenAI compatible chat completions endpoint.
type Gateway struct {
	cfg        Config
	configured bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway validates cfg once. A gateway without an API key stays unusable
// for its whole lifetime and answers every call with ErrNotConfigured.
func NewGateway(cfg Config, httpClient *http.Client, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		// Streams can outlive any fixed deadline; Complete bounds itself via context.
		httpClient = &http.Client{}
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}

	g := &Gateway{cfg: cfg, configured: cfg.APIKey != "", httpClient: httpClient, logger: logger}
	if !g.configured {
		logger.Warn("completion gateway disabled: OPENAI_API_KEY is not set")
	}
	return g
}

// Configured reports whether the gateway has credentials.
func (g *Gateway) Configured() bool { return g.configured }

// DefaultModel returns the model used when a request leaves Model empty.
func (g *Gateway) DefaultModel() string { return g.cfg.Model }

type wireMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (g *Gateway) encode(req Request, stream bool) ([]byte, string, error) {
	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}

	messages := make([]wireMessage, 0, len(req.Turns)+1)
	if req.Instructions != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.Instructions})
	}
	for i, turn := range req.Turns {
		role, err := turn.Role.wireName()
		if err != nil {
			return nil, "", fmt.Errorf("render turn %d: %w", i, err)
		}
		if turn.Role == RoleTool && turn.ToolCallID == "" {
			return nil, "", fmt.Errorf("render turn %d: tool turn without call id", i)
		}
		messages = append(messages, wireMessage{Role: role, Content: turn.Text, ToolCallID: turn.ToolCallID})
	}

	topP := req.Params.TopP
	if topP <= 0 {
		topP = 1
	}
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Params.Temperature,
		MaxTokens:   req.Params.MaxTokens,
		TopP:        topP,
		Stream:      stream,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode completion request: %w", err)
	}
	return body, model, nil
}

func (g *Gateway) newHTTPRequest(ctx context.Context, body []byte, stream bool) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// Complete performs one blocking call bounded by the configured completion
// timeout and returns the reply text. A reply without content yields "".
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if !g.configured {
		return "", ErrNotConfigured
	}

	body, model, err := g.encode(req, false)
	if err != nil {
		return "", err
	}

	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.turns", len(req.Turns)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.CompletionTimeout)
	defer cancel()

	start := time.Now()
	raw, err := g.doComplete(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &Error{Op: "complete", Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return "", &Error{Op: "complete", Body: decoded.Error.Message}
	}

	g.logger.Debug("completion finished",
		zap.String("model", model),
		zap.Int("turns", len(req.Turns)),
		zap.Duration("latency", time.Since(start)),
	)

	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return contentText(decoded.Choices[0].Message.Content), nil
}

func (g *Gateway) doComplete(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := g.newHTTPRequest(ctx, body, false)
	if err != nil {
		return nil, &Error{Op: "complete", Err: err}
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "complete", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "complete", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: "complete", StatusCode: resp.StatusCode, Body: truncate(string(raw))}
	}
	return raw, nil
}

// Stream opens a streaming call. The returned Stream must be closed.
func (g *Gateway) Stream(ctx context.Context, req Request) (*Stream, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}

	body, model, err := g.encode(req, true)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.turns", len(req.Turns)),
	))
	fail := func(err error) (*Stream, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		span.End()
		return nil, err
	}

	httpReq, err := g.newHTTPRequest(ctx, body, true)
	if err != nil {
		return fail(&Error{Op: "stream", Err: err})
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fail(&Error{Op: "stream", Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return fail(&Error{Op: "stream", StatusCode: resp.StatusCode, Body: truncate(string(raw))})
	}

	stream := newStream(resp.Body)
	stream.span = span
	return stream, nil
}

// contentText accepts either a plain string or a list of typed text parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func truncate(s string) string {
	const max = 512
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
