package protalk

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:    srv.URL,
		BotID:      "123",
		BotToken:   "secret",
		FunctionID: "609",
		Timeout:    5 * time.Second,
	}, slog.Default())
}

func TestGenerateImageReturnsBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/run_function_get", r.URL.Path)
		assert.Equal(t, "609", r.URL.Query().Get("function_id"))
		assert.Equal(t, "image", r.URL.Query().Get("output"))
		assert.Equal(t, "неоновый фон", r.URL.Query().Get("prompt"))
		_, _ = w.Write([]byte("raw-image-bytes"))
	}))

	data, err := c.GenerateImage(context.Background(), "неоновый фон")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-image-bytes"), data)
}

func TestGenerateImageStatusError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))

	_, err := c.GenerateImage(context.Background(), "фон")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Status)
}

func TestGenerateImageEmptyBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.GenerateImage(context.Background(), "фон")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestGenerateGreetingParsesChoices(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/completion", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "123", payload["bot_id"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" С днём рождения! "}}]}`))
	}))

	text, err := c.GenerateGreeting(context.Background(), "Мария", "день рождения")
	require.NoError(t, err)
	assert.Equal(t, "С днём рождения!", text)
}

func TestGenerateGreetingRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"response":"Поздравляю!"}`))
	}))

	text, err := c.GenerateGreeting(context.Background(), "Мария", "свадьбу")
	require.NoError(t, err)
	assert.Equal(t, "Поздравляю!", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateGreetingGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	_, err := c.GenerateGreeting(context.Background(), "Мария", "свадьбу")
	require.Error(t, err)
	assert.Equal(t, int32(greetingAttempts), calls.Load())
}

func TestGenerateGreetingStopsOnContextCancel(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GenerateGreeting(ctx, "Мария", "свадьбу")
	require.Error(t, err)
	// The backoff wait must respect the deadline instead of sleeping it out.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractTextVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"choices", `{"choices":[{"message":{"content":"привет"}}]}`, "привет"},
		{"result field", `{"result":"текст"}`, "текст"},
		{"text field", `{"text":"текст"}`, "текст"},
		{"response field", `{"response":"текст"}`, "текст"},
		{"plain text", "просто текст", "просто текст"},
		{"empty json", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText([]byte(tt.raw)))
		})
	}
}
