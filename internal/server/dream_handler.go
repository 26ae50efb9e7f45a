package server

import (
	"errors"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/at-ishikawa/dreamjournal/internal/dream"
	"github.com/at-ishikawa/dreamjournal/internal/errs"
	"github.com/at-ishikawa/dreamjournal/internal/validation"
)

type listDreamsRequest struct {
	Year  int
	Month int
}

func (r *listDreamsRequest) Bind(c echo.Context) error {
	return echo.QueryParamsBinder(c).
		MustInt("year", &r.Year).
		MustInt("month", &r.Month).
		BindError()
}

// Validate leaves the month range to the repository.
func (r *listDreamsRequest) Validate() error {
	return nil
}

type dreamIDRequest struct {
	ID int64 `param:"id"`
}

func (r *dreamIDRequest) Validate() error {
	return nil
}

type emotionRequest struct {
	Label string
}

// Bind reads the label path parameter. echo matches routes on the raw path
// when the request has one, leaving the parameter percent-encoded.
func (r *emotionRequest) Bind(c echo.Context) error {
	label := c.Param("label")
	if c.Request().URL.RawPath != "" {
		decoded, err := url.PathUnescape(label)
		if err != nil {
			return echo.NewBindingError("label", []string{label}, "invalid percent-encoding", err)
		}
		label = decoded
	}
	r.Label = label
	return nil
}

func (r *emotionRequest) Validate() error {
	if r.Label == "" {
		return validation.NewError(errors.New("emotion label is required"))
	}
	return nil
}

type updateDreamRequest struct {
	ID int64 `param:"id" json:"-"`
	dream.Payload
}

func (s *Server) listDreams(c echo.Context, req *listDreamsRequest) ([]dream.Summary, error) {
	return s.dreams.ListByMonth(c.Request().Context(), req.Year, req.Month)
}

func (s *Server) getDream(c echo.Context, req *dreamIDRequest) (*dream.Record, error) {
	return s.dreams.FindByID(c.Request().Context(), req.ID)
}

func (s *Server) findDreamsByEmotion(c echo.Context, req *emotionRequest) ([]dream.Dream, error) {
	dreams, err := s.dreams.FindByEmotion(c.Request().Context(), req.Label)
	if err != nil {
		return nil, err
	}
	if len(dreams) == 0 {
		return nil, errs.NewNotFoundError("No dreams found with that emotion")
	}
	return dreams, nil
}

func (s *Server) createDream(c echo.Context, req *dream.Payload) (*dream.Record, error) {
	return s.dreams.Create(c.Request().Context(), *req)
}

func (s *Server) updateDream(c echo.Context, req *updateDreamRequest) (*dream.Record, error) {
	return s.dreams.Update(c.Request().Context(), req.ID, req.Payload)
}

func (s *Server) deleteDream(c echo.Context, req *dreamIDRequest) (*dream.Record, error) {
	return s.dreams.Delete(c.Request().Context(), req.ID)
}
