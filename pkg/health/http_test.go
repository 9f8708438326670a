package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name    string
	healthy bool
}

func (c staticChecker) Name() string { return c.name }

func (c staticChecker) Check(ctx context.Context) Result {
	return Result{Healthy: c.healthy, CheckedAt: time.Now()}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "all healthy",
			checkers:   []Checker{staticChecker{"a", true}, staticChecker{"b", true}},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "one failing",
			checkers:   []Checker{staticChecker{"a", true}, staticChecker{"b", false}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     false,
		},
		{
			name:       "no checkers",
			checkers:   nil,
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			Handler(tt.checkers...).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var rep report
			require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
			assert.Equal(t, tt.wantOK, rep.Healthy)
			assert.Len(t, rep.Checks, len(tt.checkers))
		})
	}
}

func TestDiskChecker(t *testing.T) {
	c := NewDiskChecker(t.TempDir())
	result := c.Check(context.Background())
	assert.True(t, result.Healthy)

	c = NewDiskChecker("/nonexistent/path")
	result = c.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Message)
}
