package notifications

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

func TestTelegramNotifyPostsSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram(srv.URL+"/", "123:abc", "-1001", time.Second)
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), Message{Subject: "New paid order", Body: "Total: 30.00 USD"}))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "-1001", gotBody["chat_id"])
	assert.Equal(t, "New paid order\n\nTotal: 30.00 USD", gotBody["text"])
	assert.Equal(t, true, gotBody["disable_web_page_preview"])
}

func TestTelegramNotifyReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram(srv.URL, "123:abc", "-1001", time.Second)
	require.NoError(t, err)
	err = tg.Notify(context.Background(), Message{Body: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifyRedactsTokenOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	tg, err := NewTelegram(url, "123:secret-token", "-1001", time.Second)
	require.NoError(t, err)
	err = tg.Notify(context.Background(), Message{Body: "hello"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNewTelegramValidates(t *testing.T) {
	_, err := NewTelegram("", "", "-1001", 0)
	assert.Error(t, err)
	_, err = NewTelegram("", "token", " ", 0)
	assert.Error(t, err)

	tg, err := NewTelegram("", "token", "chat", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTelegramBaseURL, tg.baseURL)
	assert.Equal(t, 5*time.Second, tg.http.Timeout)
}
