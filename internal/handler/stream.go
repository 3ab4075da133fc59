package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/service"
	"github.com/noah-isme/alers-api/pkg/response"
)

// turnStream relays reply fragments as "delta" events. Headers are only
// committed with the first fragment so earlier failures can still answer
// with a JSON error and a proper status code.
type turnStream struct {
	c       *gin.Context
	started bool
}

func newTurnStream(c *gin.Context) *turnStream {
	return &turnStream{c: c}
}

func (s *turnStream) fragment() service.FragmentFunc {
	return func(fragment string) error {
		if err := s.c.Request.Context().Err(); err != nil {
			return err
		}
		s.begin()
		response.Event(s.c, "delta", gin.H{"text": fragment})
		return nil
	}
}

func (s *turnStream) begin() {
	if s.started {
		return
	}
	response.StartStream(s.c)
	s.c.Status(http.StatusOK)
	s.started = true
}

// finish sends the persisted turn as the "done" event, or the error.
func (s *turnStream) finish(result interface{}, err error) {
	if err != nil {
		if !s.started {
			response.Error(s.c, err)
			return
		}
		response.EventError(s.c, err)
		return
	}
	s.begin()
	response.Event(s.c, "done", result)
}

// wantsStream defaults to streaming unless the body opts out.
func wantsStream(flag *bool) bool {
	return flag == nil || *flag
}
