package live

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
	dialWait   = 10 * time.Second
)

// WebSocketTransport reads JSON envelopes {event, data} from a websocket and
// reconnects with backoff until closed.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer
	log    logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
}

// NewWebSocketTransport creates a transport dialing url.
func NewWebSocketTransport(url string, log logrus.FieldLogger) *WebSocketTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebSocketTransport{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: dialWait, Proxy: http.ProxyFromEnvironment},
		log:    log.WithFields(logrus.Fields{"transport": "websocket", "url": url}),
	}
}

func (t *WebSocketTransport) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &api.Error{Kind: api.KindUnauthorized, Status: resp.StatusCode, Message: "live channel rejected the credential", Err: err}
		}
		return nil, &api.Error{Kind: api.KindNetwork, Err: err}
	}
	return conn, nil
}

// Connect dials the endpoint and starts reading.
func (t *WebSocketTransport) Connect(ctx context.Context, token string, deliver func(Message)) error {
	conn, err := t.dial(ctx, token)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.stop = stop
	t.mu.Unlock()

	go t.run(conn, token, deliver, stop)
	return nil
}

func (t *WebSocketTransport) run(conn *websocket.Conn, token string, deliver func(Message), stop chan struct{}) {
	for {
		err := read(conn, deliver)
		select {
		case <-stop:
			return
		default:
		}
		t.log.WithError(err).Warn("Live connection lost, reconnecting")
		if conn = t.redial(token, stop); conn == nil {
			return
		}
	}
}

func read(conn *websocket.Conn, deliver func(Message)) error {
	defer conn.Close()
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			return err
		}
		if m.Event == "" {
			continue
		}
		deliver(m)
	}
}

// redial retries until it connects, the credential is rejected or stop closes.
func (t *WebSocketTransport) redial(token string, stop chan struct{}) *websocket.Conn {
	backoff := minBackoff
	for {
		select {
		case <-stop:
			return nil
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialWait)
		conn, err := t.dial(ctx, token)
		cancel()
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				t.log.WithError(err).Error("Live reconnect rejected, giving up")
				return nil
			}
			t.log.WithError(err).WithField("backoff", backoff).Debug("Live reconnect failed")
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		t.mu.Lock()
		select {
		case <-stop:
			t.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		t.conn = conn
		t.mu.Unlock()
		t.log.Info("Live connection restored")
		return conn
	}
}

// Close stops reading and reconnecting. It does not wait for an event being
// delivered to return.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn, stop := t.conn, t.stop
	t.conn, t.stop = nil, nil
	if stop != nil {
		close(stop)
	}
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
