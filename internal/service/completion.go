package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/internal/llm"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

// Sampling parameters per call site.
var (
	chatParams           = llm.Params{Temperature: 1, MaxTokens: 4048, TopP: 1}
	summaryParams        = llm.Params{Temperature: 0.4, MaxTokens: 300, TopP: 1}
	progressParams       = llm.Params{Temperature: 0.4, MaxTokens: 250, TopP: 1}
	chatGreetingParams   = llm.Params{Temperature: 0.8, MaxTokens: 200, TopP: 1}
	intakeParams         = llm.Params{Temperature: 0.7, MaxTokens: 600, TopP: 1}
	intakeGreetingParams = llm.Params{Temperature: 0.7, MaxTokens: 150, TopP: 1}
	intakeSummaryParams  = llm.Params{Temperature: 0.5, MaxTokens: 300, TopP: 1}
)

// FragmentStream yields non-empty reply fragments until exhausted.
type FragmentStream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// CompletionGateway is the subset of the LLM gateway used by services.
type CompletionGateway interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Stream(ctx context.Context, req llm.Request) (FragmentStream, error)
	DefaultModel() string
}

type llmGateway struct {
	*llm.Gateway
}

// NewCompletionGateway adapts an llm.Gateway to CompletionGateway.
func NewCompletionGateway(g *llm.Gateway) CompletionGateway {
	return llmGateway{Gateway: g}
}

func (g llmGateway) Stream(ctx context.Context, req llm.Request) (FragmentStream, error) {
	stream, err := g.Gateway.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// FailureKind narrows an error to the cases callers treat differently.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureConfiguration FailureKind = "configuration"
	FailureTransport     FailureKind = "transport"
	FailurePersistence   FailureKind = "persistence"
	FailureOther         FailureKind = "other"
)

// ClassifyFailure maps err onto a FailureKind. Repository failures are
// expected to arrive wrapped as INTERNAL_ERROR by the calling service.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, llm.ErrNotConfigured) || errors.Is(err, appErrors.ErrServiceNotConfigured) {
		return FailureConfiguration
	}
	var gatewayErr *llm.Error
	if errors.As(err, &gatewayErr) || errors.Is(err, appErrors.ErrGatewayFailure) {
		return FailureTransport
	}
	if errors.Is(err, appErrors.ErrInternal) {
		return FailurePersistence
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransport
	}
	return FailureOther
}

// recordBookkeepingFailure logs and counts a failed post-turn step. These
// steps never fail the turn that triggered them.
func recordBookkeepingFailure(logger *zap.Logger, metrics *MetricsService, step string, err error, fields ...zap.Field) {
	kind := ClassifyFailure(err)
	metrics.RecordBookkeepingFailure(step, kind)
	fields = append(fields, zap.String("step", step), zap.String("kind", string(kind)), zap.Error(err))
	if kind == FailureConfiguration || kind == FailureTransport {
		logger.Warn("post-turn step failed", fields...)
		return
	}
	logger.Error("post-turn step failed", fields...)
}

func persistenceError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// gatewayError converts a gateway failure into the API error returned to users.
func gatewayError(err error) error {
	switch ClassifyFailure(err) {
	case FailureConfiguration:
		return appErrors.Wrap(err, appErrors.ErrServiceNotConfigured.Code, appErrors.ErrServiceNotConfigured.Status, appErrors.ErrServiceNotConfigured.Message)
	case FailureTransport:
		return appErrors.Wrap(err, appErrors.ErrGatewayFailure.Code, appErrors.ErrGatewayFailure.Status, appErrors.ErrGatewayFailure.Message)
	default:
		return err
	}
}

// completer wraps a gateway with metrics labelled by call purpose.
type completer struct {
	gateway CompletionGateway
	metrics *MetricsService
}

func (c completer) complete(ctx context.Context, purpose string, req llm.Request) (string, error) {
	start := time.Now()
	text, err := c.gateway.Complete(ctx, req)
	c.metrics.ObserveCompletion(purpose, "complete", err, time.Since(start))
	return text, err
}

func (c completer) stream(ctx context.Context, purpose string, req llm.Request) (FragmentStream, error) {
	start := time.Now()
	stream, err := c.gateway.Stream(ctx, req)
	c.metrics.ObserveCompletion(purpose, "stream", err, time.Since(start))
	return stream, err
}

// reply obtains a full user-facing reply. With onFragment set the reply is
// streamed; a failed stream is retried exactly once with a blocking call
// unless the gateway is unconfigured, ctx is done or onFragment aborted.
func (c completer) reply(ctx context.Context, purpose string, req llm.Request, onFragment FragmentFunc, logger *zap.Logger) (string, bool, error) {
	if onFragment == nil {
		text, err := c.complete(ctx, purpose, req)
		if err != nil {
			return "", false, gatewayError(err)
		}
		return text, false, nil
	}

	text, err := c.streamAll(ctx, purpose, req, onFragment)
	if err == nil {
		return text, false, nil
	}
	if ClassifyFailure(err) == FailureConfiguration {
		return "", false, gatewayError(err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, ctxErr
	}
	var abort *fragmentAbort
	if errors.As(err, &abort) {
		return "", false, abort.err
	}

	if logger != nil {
		logger.Warn("reply stream failed, falling back to blocking completion", zap.String("purpose", purpose), zap.Error(err))
	}
	c.metrics.RecordFallback()
	text, err = c.complete(ctx, purpose+"_fallback", req)
	if err != nil {
		return "", true, gatewayError(err)
	}
	return text, true, nil
}

type fragmentAbort struct{ err error }

func (e *fragmentAbort) Error() string { return "fragment delivery aborted: " + e.err.Error() }
func (e *fragmentAbort) Unwrap() error { return e.err }

func (c completer) streamAll(ctx context.Context, purpose string, req llm.Request, onFragment FragmentFunc) (string, error) {
	stream, err := c.stream(ctx, purpose, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		fragment := stream.Text()
		sb.WriteString(fragment)
		if err := onFragment(fragment); err != nil {
			return "", &fragmentAbort{err: err}
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
