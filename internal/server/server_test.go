package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/at-ishikawa/dreamjournal/internal/config"
	"github.com/at-ishikawa/dreamjournal/internal/dream"
	"github.com/at-ishikawa/dreamjournal/internal/errs"
	mock_dream "github.com/at-ishikawa/dreamjournal/internal/mocks/dream"
)

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:                   8000,
		CORS:                   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		ReadTimeoutSeconds:     5,
		WriteTimeoutSeconds:    5,
		ShutdownTimeoutSeconds: 5,
	}
}

func flyingRecord() *dream.Record {
	return &dream.Record{
		Dream: dream.Dream{
			ID:          1,
			Name:        "Flying",
			Description: "over the sea",
			DreamDate:   dream.NewDate(2024, time.March, 15),
			Lucidity:    true,
		},
		Emotions: []string{"joy", "joy", "fear"},
	}
}

const flyingJSON = `{
	"id": 1,
	"name": "Flying",
	"description": "over the sea",
	"dream_date": "2024-03-15",
	"lucidity": true,
	"sleep_duration": null,
	"recurring": false,
	"room_temp": null,
	"stress_before_sleep": null,
	"emotions": ["joy", "joy", "fear"]
}`

func TestServer_Dreams(t *testing.T) {
	busy := fmt.Errorf("tx.ExecContext(insert dream) > %w", sqlite3.Error{Code: sqlite3.ErrBusy})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		setup      func(repo *mock_dream.MockRepository)
		wantStatus int
		wantBody   string
		check      func(t *testing.T, body *errs.HTTPError)
	}{
		{
			name:   "list by month",
			method: http.MethodGet,
			target: "/dreams?year=2024&month=3",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().ListByMonth(gomock.Any(), 2024, 3).Return([]dream.Summary{
					{ID: 1, Name: "Flying", DreamDate: dream.NewDate(2024, time.March, 15), Emotions: []string{"joy"}},
				}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `[{"id":1,"name":"Flying","dream_date":"2024-03-15","emotions":["joy"]}]`,
		},
		{
			name:   "list with empty result",
			method: http.MethodGet,
			target: "/dreams?year=2024&month=7",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().ListByMonth(gomock.Any(), 2024, 7).Return([]dream.Summary{}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `[]`,
		},
		{
			name:   "list with month thirteen",
			method: http.MethodGet,
			target: "/dreams?year=2024&month=13",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().ListByMonth(gomock.Any(), 2024, 13).
					Return(nil, fmt.Errorf("list dreams for 2024-13: %w", dream.ErrInvalidMonth))
			},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Invalid month", body.Message)
				assert.Equal(t, "BAD_REQUEST", body.Code)
			},
		},
		{
			name:       "list without year",
			method:     http.MethodGet,
			target:     "/dreams?month=3",
			setup:      func(repo *mock_dream.MockRepository) {},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body *errs.HTTPError) {
				require.Len(t, body.Errors, 1)
				assert.Equal(t, "year", body.Errors[0].Field)
			},
		},
		{
			name:   "get by id",
			method: http.MethodGet,
			target: "/dreams/1",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByID(gomock.Any(), int64(1)).Return(flyingRecord(), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   flyingJSON,
		},
		{
			name:   "get missing id",
			method: http.MethodGet,
			target: "/dreams/99",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByID(gomock.Any(), int64(99)).Return(nil, fmt.Errorf("dream 99: %w", dream.ErrNotFound))
			},
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Dream not found", body.Message)
			},
		},
		{
			name:       "get malformed id",
			method:     http.MethodGet,
			target:     "/dreams/abc",
			setup:      func(repo *mock_dream.MockRepository) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "by emotion",
			method: http.MethodGet,
			target: "/dreams/by-emotion/fear",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "fear").Return([]dream.Dream{
					{ID: 1, Name: "Chased", DreamDate: dream.NewDate(2024, time.January, 10)},
					{ID: 2, Name: "Exam", DreamDate: dream.NewDate(2024, time.January, 11)},
				}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody: `[
				{"id":1,"name":"Chased","description":"","dream_date":"2024-01-10","lucidity":false,"sleep_duration":null,"recurring":false,"room_temp":null,"stress_before_sleep":null},
				{"id":2,"name":"Exam","description":"","dream_date":"2024-01-11","lucidity":false,"sleep_duration":null,"recurring":false,"room_temp":null,"stress_before_sleep":null}
			]`,
		},
		{
			name:   "by emotion with an encoded comma and space",
			method: http.MethodGet,
			target: "/dreams/by-emotion/love%2C%20hope",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "love, hope").Return([]dream.Dream{
					{ID: 3, Name: "Reunion", DreamDate: dream.NewDate(2024, time.May, 2)},
				}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `[{"id":3,"name":"Reunion","description":"","dream_date":"2024-05-02","lucidity":false,"sleep_duration":null,"recurring":false,"room_temp":null,"stress_before_sleep":null}]`,
		},
		{
			name:   "by emotion with an encoded ampersand",
			method: http.MethodGet,
			target: "/dreams/by-emotion/rage%26fear",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "rage&fear").Return([]dream.Dream{
					{ID: 3, Name: "Reunion", DreamDate: dream.NewDate(2024, time.May, 2)},
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "by emotion with an encoded slash",
			method: http.MethodGet,
			target: "/dreams/by-emotion/a%2Fb",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "a/b").Return([]dream.Dream{
					{ID: 4, Name: "Maze", DreamDate: dream.NewDate(2024, time.May, 3)},
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "by emotion with a literal percent sign",
			method: http.MethodGet,
			target: "/dreams/by-emotion/100%25",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "100%").Return([]dream.Dream{}, nil)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "by emotion without matches",
			method: http.MethodGet,
			target: "/dreams/by-emotion/bliss",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().FindByEmotion(gomock.Any(), "bliss").Return([]dream.Dream{}, nil)
			},
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "No dreams found with that emotion", body.Message)
			},
		},
		{
			name:   "create",
			method: http.MethodPost,
			target: "/dreams",
			body:   `{"name":"Flying","description":"over the sea","dream_date":"2024-03-15","lucidity":true,"emotions":["joy","joy","fear"]}`,
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Create(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, p dream.Payload) (*dream.Record, error) {
						assert.Equal(t, "Flying", p.Name)
						assert.Equal(t, "2024-03-15", p.DreamDate.String())
						assert.True(t, *p.Lucidity)
						assert.Nil(t, p.Recurring)
						assert.Equal(t, []string{"joy", "joy", "fear"}, p.Emotions)
						return flyingRecord(), nil
					})
			},
			wantStatus: http.StatusCreated,
			wantBody:   flyingJSON,
		},
		{
			name:       "create with invalid payload",
			method:     http.MethodPost,
			target:     "/dreams",
			body:       `{"name":"Flying"}`,
			setup:      func(repo *mock_dream.MockRepository) {},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Validation failed", body.Message)
				assert.Equal(t, []errs.FieldError{
					{Field: "description", Error: "is required"},
					{Field: "dream_date", Error: "is required"},
					{Field: "lucidity", Error: "is required"},
				}, body.Errors)
			},
		},
		{
			name:   "create while database is busy",
			method: http.MethodPost,
			target: "/dreams",
			body:   `{"name":"Flying","description":"over the sea","dream_date":"2024-03-15","lucidity":true}`,
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, busy)
			},
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Database is busy or not ready. Try again shortly.", body.Message)
			},
		},
		{
			name:   "update",
			method: http.MethodPut,
			target: "/dreams/1",
			body:   `{"id":42,"name":"Flying","description":"over the sea","dream_date":"2024-03-15","lucidity":true,"emotions":["joy","joy","fear"]}`,
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Update(gomock.Any(), int64(1), gomock.Any()).Return(flyingRecord(), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   flyingJSON,
		},
		{
			name:   "update missing dream",
			method: http.MethodPut,
			target: "/dreams/5",
			body:   `{"name":"Flying","description":"over the sea","dream_date":"2024-03-15","lucidity":false}`,
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Update(gomock.Any(), int64(5), gomock.Any()).Return(nil, fmt.Errorf("dream 5: %w", dream.ErrNotFound))
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "delete",
			method: http.MethodDelete,
			target: "/dreams/1",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Delete(gomock.Any(), int64(1)).Return(flyingRecord(), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   flyingJSON,
		},
		{
			name:   "delete with unexpected error",
			method: http.MethodDelete,
			target: "/dreams/1",
			setup: func(repo *mock_dream.MockRepository) {
				repo.EXPECT().Delete(gomock.Any(), int64(1)).Return(nil, fmt.Errorf("disk image is malformed"))
			},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Unexpected error: disk image is malformed", body.Message)
			},
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			target:     "/nightmares",
			setup:      func(repo *mock_dream.MockRepository) {},
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body *errs.HTTPError) {
				assert.Equal(t, "Route not found", body.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mock_dream.NewMockRepository(ctrl)
			tt.setup(repo)

			s := New(testServerConfig(), zerolog.Nop(), fakePinger{}, repo)

			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			if tt.check != nil {
				var got errs.HTTPError
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.wantStatus, got.Status)
				tt.check(t, &got)
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	tests := []struct {
		name       string
		pinger     fakePinger
		wantStatus int
		wantBody   string
	}{
		{
			name:       "database reachable",
			pinger:     fakePinger{},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok","database":"ok"}`,
		},
		{
			name:       "database unreachable",
			pinger:     fakePinger{err: fmt.Errorf("unable to open database file")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"degraded","database":"unreachable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			s := New(testServerConfig(), zerolog.Nop(), tt.pinger, mock_dream.NewMockRepository(ctrl))

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestServer_Middleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(testServerConfig(), zerolog.Nop(), fakePinger{}, mock_dream.NewMockRepository(ctrl))

	t.Run("request id is propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set(RequestIDHeader, "dream-123")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "dream-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("cors preflight from the frontend origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/dreams", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("cors rejects unknown origins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_HTTPServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(testServerConfig(), zerolog.Nop(), fakePinger{}, mock_dream.NewMockRepository(ctrl))

	srv := s.HTTPServer()
	assert.Equal(t, ":8000", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 5*time.Second, srv.WriteTimeout)
	assert.NotNil(t, srv.Handler)
}

func TestEmotionRequest_Bind(t *testing.T) {
	tests := []struct {
		name      string
		rawPath   string
		param     string
		wantLabel string
		wantErr   bool
	}{
		{name: "plain label", param: "fear", wantLabel: "fear"},
		{name: "decoded by net/url", param: "love, hope", wantLabel: "love, hope"},
		{name: "raw path is unescaped", rawPath: "/dreams/by-emotion/rage%26fear", param: "rage%26fear", wantLabel: "rage&fear"},
		{name: "malformed escape", rawPath: "/dreams/by-emotion/bad%zz", param: "bad%zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/dreams/by-emotion/x", nil)
			req.URL.RawPath = tt.rawPath
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("label")
			c.SetParamValues(tt.param)

			var r emotionRequest
			err := r.Bind(c)
			if tt.wantErr {
				var bindingErr *echo.BindingError
				require.ErrorAs(t, err, &bindingErr)
				assert.Equal(t, "label", bindingErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, r.Label)
		})
	}
}
