package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGateway(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini", CompletionTimeout: time.Second}, server.Client(), nil)
}

func TestUnconfiguredGatewayRejectsEveryCall(t *testing.T) {
	g := NewGateway(Config{APIKey: "  "}, nil, nil)

	assert.False(t, g.Configured())
	_, err := g.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.Stream(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteSendsRenderedRequest(t *testing.T) {
	var got chatRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  - bullet  "}}]}`))
	})

	text, err := g.Complete(context.Background(), Request{
		Instructions: "summarize",
		Turns:        []Turn{UserTurn("user: hoi"), AssistantTurn("hallo")},
		Params:       Params{Temperature: 0.4, MaxTokens: 300},
	})
	require.NoError(t, err)
	assert.Equal(t, "  - bullet  ", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.4, got.Temperature)
	assert.Equal(t, 300, got.MaxTokens)
	assert.Equal(t, 1.0, got.TopP)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, wireMessage{Role: "system", Content: "summarize"}, got.Messages[0])
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestCompleteHonoursModelOverride(t *testing.T) {
	var got chatRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
	})

	text, err := g.Complete(context.Background(), Request{Model: "gpt-4o", Turns: []Turn{UserTurn("x")}})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestCompleteRejectsUnknownRole(t *testing.T) {
	called := false
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := g.Complete(context.Background(), Request{Turns: []Turn{{Role: Role(42), Text: "x"}}})
	require.Error(t, err)
	assert.False(t, called)
}

func TestCompleteRequiresToolCallID(t *testing.T) {
	called := false
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := g.Complete(context.Background(), Request{Turns: []Turn{UserTurn("x"), {Role: RoleTool, Text: "42"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool turn without call id")
	assert.False(t, called)
}

func TestCompleteRendersToolCallID(t *testing.T) {
	var got chatRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	_, err := g.Complete(context.Background(), Request{Turns: []Turn{UserTurn("x"), ToolTurn("call_1", "42")}})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "tool", got.Messages[1].Role)
	assert.Equal(t, "call_1", got.Messages[1].ToolCallID)
	assert.Empty(t, got.Messages[0].ToolCallID)
}

func TestCompleteSurfacesHTTPFailures(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})

	_, err := g.Complete(context.Background(), Request{Turns: []Turn{UserTurn("x")}})
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.StatusCode)
	assert.Contains(t, gwErr.Body, "rate limited")
}

func TestCompleteTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()
	g := NewGateway(Config{APIKey: "k", BaseURL: server.URL, CompletionTimeout: 50 * time.Millisecond}, server.Client(), nil)

	_, err := g.Complete(context.Background(), Request{Turns: []Turn{UserTurn("x")}})
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeChunk(w http.ResponseWriter, content string) {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"content": content}}},
	})
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
	w.(http.Flusher).Flush()
}

func TestStreamYieldsNonEmptyFragments(t *testing.T) {
	var got chatRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		writeChunk(w, "Hal")
		writeChunk(w, "")
		writeChunk(w, "lo")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := g.Stream(context.Background(), Request{Turns: []Turn{UserTurn("hoi")}, Params: Params{Temperature: 1, MaxTokens: 4048, TopP: 1}})
	require.NoError(t, err)
	defer stream.Close()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Text())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"Hal", "lo"}, fragments)
	assert.True(t, got.Stream)
	assert.False(t, stream.Next())
}

func TestStreamReportsMidStreamError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunk(w, "a")
		writeChunk(w, "b")
		_, _ = fmt.Fprint(w, "data: {\"error\":{\"message\":\"upstream reset\"}}\n\n")
	})

	stream, err := g.Stream(context.Background(), Request{Turns: []Turn{UserTurn("hoi")}})
	require.NoError(t, err)
	defer stream.Close()

	count := 0
	for stream.Next() {
		count++
	}
	assert.Equal(t, 2, count)
	var gwErr *Error
	require.True(t, errors.As(stream.Err(), &gwErr))
	assert.Equal(t, "upstream reset", gwErr.Body)
}

func TestStreamTruncatedBeforeDoneIsError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunk(w, "Half an ans")
	})

	stream, err := g.Stream(context.Background(), Request{Turns: []Turn{UserTurn("hoi")}})
	require.NoError(t, err)
	defer stream.Close()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Text())
	}
	assert.Equal(t, []string{"Half an ans"}, fragments)
	var gwErr *Error
	require.True(t, errors.As(stream.Err(), &gwErr))
	assert.ErrorIs(t, stream.Err(), io.ErrUnexpectedEOF)
}

func TestStreamRejectsErrorStatus(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := g.Stream(context.Background(), Request{Turns: []Turn{UserTurn("x")}})
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"system", "user", "assistant", "tool"} {
		role, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, name, role.String())
	}
	_, err := ParseRole("developer")
	assert.Error(t, err)
	assert.Empty(t, Role(0).String())
}

func TestContentTextAcceptsParts(t *testing.T) {
	assert.Equal(t, "ab", contentText(json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)))
	assert.Equal(t, "", contentText(json.RawMessage(`null`)))
}
