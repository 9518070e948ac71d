package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	var got sendMessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botBOT-TOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"ok": true}))
	}))
	defer ts.Close()

	tg := NewTelegram("BOT-TOKEN", "12345").WithBaseURL(ts.URL).WithTimeout(time.Second)

	err := tg.Send(Message{Title: "set-solar succeeded", Body: "attempt 1 of 3", Success: true})
	require.NoError(t, err)

	assert.Equal(t, "12345", got.ChatID)
	assert.Contains(t, got.Text, "set-solar succeeded")
	assert.Contains(t, got.Text, "attempt 1 of 3")
}

func TestTelegramSendRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"description": "Bad Request: chat not found",
		}))
	}))
	defer ts.Close()

	tg := NewTelegram("BOT-TOKEN", "12345").WithBaseURL(ts.URL)

	err := tg.Send(Message{Title: "set-sbu FAILED", Success: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tg := NewTelegram("BOT-TOKEN", "12345").WithBaseURL(ts.URL)

	err := tg.Send(Message{Title: "set-sbu FAILED", Success: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200 code")
}

func TestNoopSend(t *testing.T) {
	require.NoError(t, Noop{}.Send(Message{Title: "anything"}))
}
