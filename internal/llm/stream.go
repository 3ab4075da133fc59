package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stream is a finite, non-restartable sequence of non-empty text fragments.
//
//	for s.Next() {
//		fragment := s.Text()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	text   string
	err    error
	done   bool
	span   trace.Span
	count  int
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, reader: bufio.NewReader(body)}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Next advances to the next non-empty fragment. It returns false once the
// stream has ended or failed; Err tells the two apart. A stream that closes
// before the [DONE] sentinel is a failure.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		data, err := s.nextEvent()
		if err != nil {
			// Only [DONE] ends a reply; a bare EOF means the connection dropped.
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.err = &Error{Op: "stream", Err: err}
			s.finish()
			return false
		}
		if data == "[DONE]" {
			s.finish()
			return false
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = &Error{Op: "stream", Err: fmt.Errorf("decode chunk: %w", err)}
			s.finish()
			return false
		}
		if chunk.Error != nil {
			s.err = &Error{Op: "stream", Body: chunk.Error.Message}
			s.finish()
			return false
		}

		var b strings.Builder
		for _, choice := range chunk.Choices {
			b.WriteString(contentText(choice.Delta.Content))
		}
		if b.Len() == 0 {
			continue
		}
		s.text = b.String()
		s.count++
		return true
	}
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string { return s.text }

// Err returns the failure that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying connection. It is safe to call twice.
func (s *Stream) Close() error {
	if s.span != nil {
		s.span.SetAttributes(attribute.Int("llm.fragments", s.count))
		if s.err != nil {
			s.span.RecordError(s.err)
			s.span.SetStatus(codes.Error, "stream interrupted")
		}
		s.span.End()
		s.span = nil
	}
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

func (s *Stream) finish() {
	s.done = true
	s.text = ""
	_ = s.Close()
}

// nextEvent reads one SSE event and returns its joined data lines. Events
// without data are skipped.
func (s *Stream) nextEvent() (string, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil {
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			return "", err
		}

		switch {
		case line == "":
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
