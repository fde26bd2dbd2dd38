package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browsercontext/pkg/log"
)

func wsURL(u string) string {
	return "ws" + strings.TrimPrefix(u, "http")
}

// echoBrowser answers every frame with "ack:" + frame
func echoBrowser(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("ack:"), msg...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxyRelays(t *testing.T) {
	t.Parallel()

	browser := echoBrowser(t)
	p := NewServer(wsURL(browser.URL), log.NewNullLogger())
	front := httptest.NewServer(http.HandlerFunc(p.HandleDevTools))
	t.Cleanup(front.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(front.URL), nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	for _, msg := range []string{`{"id":1,"method":"Target.getTargets"}`, `{"id":2}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		mt, got, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Equal(t, "ack:"+msg, string(got))
	}
}

func TestProxyUnavailable(t *testing.T) {
	t.Parallel()

	p := NewServer("", log.NewNullLogger())
	assert.False(t, p.Available())

	rec := httptest.NewRecorder()
	p.HandleDevTools(rec, httptest.NewRequest(http.MethodGet, "/v1/devtools", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxyBrowserDown(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsURL(dead.URL)
	dead.Close()

	p := NewServer(endpoint, log.NewNullLogger())
	rec := httptest.NewRecorder()
	p.HandleDevTools(rec, httptest.NewRequest(http.MethodGet, "/v1/devtools", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
