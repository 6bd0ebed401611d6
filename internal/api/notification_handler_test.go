package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"craftcv/internal/auth"
	"craftcv/internal/worker"
)

type stubAccessParser map[string]*auth.Claims

func (s stubAccessParser) ParseAccess(raw string) (*auth.Claims, error) {
	if claims, ok := s[raw]; ok {
		return claims, nil
	}
	return nil, auth.ErrInvalidToken
}

func newNotificationServer(t *testing.T) (*httptest.Server, *worker.Notifier) {
	t.Helper()
	_, client := newTestRedis(t)
	tokens := stubAccessParser{
		"good":   {UserID: 7},
		"locked": {UserID: 8, MustChangePassword: true},
	}
	h := NewNotificationHandler(client, tokens, nil, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, worker.NewNotifier(client)
}

func dialNotifications(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestNotificationStreamForwardsMessages(t *testing.T) {
	srv, notifier := newNotificationServer(t)
	conn := dialNotifications(t, srv)

	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: "good"}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	var ready map[string]string
	if err := conn.ReadJSON(&ready); err != nil || ready["type"] != "ready" {
		t.Fatalf("expected ready message, got %v (%v)", ready, err)
	}

	msg := worker.NotifyMessage{Type: worker.NotifyCVParsed, Status: "success", CVID: "cv-1"}
	if err := notifier.Publish(context.Background(), 7, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var got worker.NotifyMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if got.CVID != "cv-1" || got.Type != worker.NotifyCVParsed {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestNotificationStreamRejectsBadAuth(t *testing.T) {
	srv, _ := newNotificationServer(t)

	for _, token := range []string{"bad", "locked"} {
		conn := dialNotifications(t, srv)
		if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: token}); err != nil {
			t.Fatalf("write auth: %v", err)
		}
		_, _, err := conn.ReadMessage()
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
			t.Fatalf("token %q: expected policy violation close, got %v", token, err)
		}
	}
}
