package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, h http.HandlerFunc) *SlackConnector {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api := slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	return NewSlackConnector(api)
}

func TestSlackConnectorPostMessage(t *testing.T) {
	var gotPath, gotChannel, gotText string
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"D42","ts":"1700000000.000100"}`))
	})

	posted, err := c.PostMessage(context.Background(), Message{
		Channel: "U42",
		Text:    "hello",
		Blocks:  []slack.Block{slack.NewDividerBlock()},
	})
	require.NoError(t, err)
	assert.Equal(t, "/chat.postMessage", gotPath)
	assert.Equal(t, "U42", gotChannel)
	assert.Equal(t, "hello", gotText)
	assert.Equal(t, Posted{Channel: "D42", Timestamp: "1700000000.000100"}, posted)
}

func TestSlackConnectorRateLimitedBecomesThrottleError(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.PostMessage(context.Background(), Message{Channel: "U42", Text: "hello"})
	require.Error(t, err)

	var tErr *ThrottleError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, time.Second, tErr.RetryAfter)
}

func TestSlackConnectorAPIErrorIsWrapped(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	})

	err := c.UpdateMessage(context.Background(), Update{Channel: "C1", Timestamp: "1.2", Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.update")
	assert.Contains(t, err.Error(), "channel_not_found")

	var tErr *ThrottleError
	assert.False(t, errors.As(err, &tErr))
}
