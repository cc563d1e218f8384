package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestNew_AddsServiceAndInstance(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", ServiceName: "babble-live", InstanceID: "node-1", Output: &buf})

	logger.Debug().Msg("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "babble-live", lines[0][FieldService])
	assert.Equal(t, "node-1", lines[0][FieldInstance])
	assert.Equal(t, "hello", lines[0]["message"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Output: &buf}))
	ctx = WithFields(ctx, FieldRoomID, "r1", FieldUserID, "u1", "dangling")

	l := Ctx(ctx)
	l.Info().Msg("x")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "r1", lines[0][FieldRoomID])
	assert.Equal(t, "u1", lines[0][FieldUserID])
	assert.NotContains(t, lines[0], "dangling")
}

func TestGinMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	r := gin.New()
	r.Use(GinMiddleware(New(Config{Output: &buf})))
	r.GET("/ping", func(c *gin.Context) {
		c.Set(FieldUserID, "u-9")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-123", lines[0][FieldRequestID])
	assert.Equal(t, "u-9", lines[0][FieldUserID])
	assert.EqualValues(t, http.StatusNoContent, lines[0][FieldStatus])
}

func TestHTTPMiddleware_GeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := HTTPMiddleware(New(Config{Output: &buf}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, http.StatusTeapot, lines[0][FieldStatus])
}
