package testutils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// PushServer is a websocket endpoint that writes the frames it is given to
// every connected client. Closing Hangup drops connections from the server
// side.
type PushServer struct {
	*httptest.Server
	Frames chan []byte
	Hangup chan struct{}
	Header chan http.Header
}

// NewPushServer starts a PushServer that is closed when the test ends
func NewPushServer(t *testing.T) *PushServer {
	t.Helper()
	ps := &PushServer{
		Frames: make(chan []byte, 256),
		Hangup: make(chan struct{}),
		Header: make(chan http.Header, 1),
	}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case ps.Header <- r.Header.Clone():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain client control frames so the close handshake completes.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case f := <-ps.Frames:
				if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
					return
				}
			case <-ps.Hangup:
				return
			case <-gone:
				return
			}
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

// WSURL returns the ws:// address of the server
func (ps *PushServer) WSURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}
