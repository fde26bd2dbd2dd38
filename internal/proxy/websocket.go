package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/browsercontext/pkg/log"
)

const dialTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server relays DevTools websocket connections to the browser
type Server struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *log.Logger
}

// NewServer creates a proxy to the DevTools endpoint. An empty endpoint
// makes every connection fail with 404.
func NewServer(endpoint string, logger *log.Logger) *Server {
	return &Server{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
}

// Available reports whether there is an endpoint to proxy to
func (s *Server) Available() bool {
	return s.endpoint != ""
}

// HandleDevTools upgrades the request and relays frames in both directions
// until either side closes.
func (s *Server) HandleDevTools(w http.ResponseWriter, r *http.Request) {
	if !s.Available() {
		http.Error(w, "devtools proxy is not available for this engine", http.StatusNotFound)
		return
	}

	// Dial first so a dead browser turns into a plain HTTP error
	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	browserConn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		s.logger.Errorf("Proxy:Dial", "connecting to %s: %v", s.endpoint, err)
		http.Error(w, "failed to connect to browser", http.StatusBadGateway)
		return
	}
	defer browserConn.Close() //nolint:errcheck

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Proxy:Upgrade", "upgrading connection: %v", err)
		return
	}
	defer clientConn.Close() //nolint:errcheck

	s.logger.Debugf("Proxy:Connect", "client %s connected", r.RemoteAddr)

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.relay(clientConn, browserConn, "client→browser")
	}()
	go func() {
		errChan <- s.relay(browserConn, clientConn, "browser→client")
	}()

	// Wait for either direction to close
	err = <-errChan
	var closeErr *websocket.CloseError
	if err != nil && !errors.As(err, &closeErr) {
		s.logger.Warnf("Proxy:Relay", "client %s: %v", r.RemoteAddr, err)
	}

	s.logger.Debugf("Proxy:Disconnect", "client %s disconnected", r.RemoteAddr)
}

func (s *Server) relay(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugf("Proxy:Relay", "read (%s): %v", direction, err)
			}
			// pass the close on so the other side's reader returns too
			_ = dst.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}
