// README: Websocket push channel (one socket per identity).
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// TokenFunc supplies the bearer token presented on dial.
type TokenFunc func(ctx context.Context) (string, error)

type WebsocketChannel struct {
	URL    string
	Token  TokenFunc
	Dialer *websocket.Dialer
}

func (c *WebsocketChannel) Open(ctx context.Context, identity string) (Stream, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("push token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}
	url := strings.TrimRight(c.URL, "/") + "/" + identity
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pingLoop()
	return s, nil
}

type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func (s *wsStream) Next(ctx context.Context) (Message, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func (s *wsStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
