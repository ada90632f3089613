package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebsocketChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotPath := make(chan string, 1)
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.Path
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"matched","trip_id":"t1","driver_id":"d1"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"completed","trip_id":"t1"}`))
		// hold until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := &WebsocketChannel{
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/passengers/",
		Token: func(context.Context) (string, error) { return "tok", nil },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := ch.Open(ctx, "rider-42")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer stream.Close()

	if p := <-gotPath; p != "/ws/passengers/rider-42" {
		t.Fatalf("path = %q", p)
	}
	if a := <-gotAuth; a != "Bearer tok" {
		t.Fatalf("authorization = %q", a)
	}

	m, err := stream.Next(ctx)
	if err != nil || m.Event != "matched" || m.DriverID != "d1" {
		t.Fatalf("first = %+v, %v", m, err)
	}
	if _, err := stream.Next(ctx); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	m, err = stream.Next(ctx)
	if err != nil || m.Event != "completed" {
		t.Fatalf("third = %+v, %v", m, err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
