package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"craftcv/internal/api/middleware"
	"craftcv/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsWriteWait    = 5 * time.Second
	wsReadLimit    = 4 << 10
)

var errPasswordChangePending = errors.New("password change required")

// NotificationHandler 通过 WebSocket 推送简历解析与品牌化的完成通知。
// 客户端连接后的第一条消息必须是 {"type":"auth","token":"<access token>"}。
type NotificationHandler struct {
	redis    redis.UniversalClient
	tokens   middleware.AccessTokenParser
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewNotificationHandler(client redis.UniversalClient, tokens middleware.AccessTokenParser, logger *slog.Logger, allowedOrigins []string) *NotificationHandler {
	return &NotificationHandler{
		redis:  client,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker 未配置白名单时只接受同源连接。
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Stream GET /ws
func (h *NotificationHandler) Stream(c *gin.Context) {
	logger := loggerFor(c, h.logger).With(slog.String("client_ip", c.ClientIP()))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	userID, err := h.authenticate(conn)
	if err != nil {
		logger.Info("websocket authentication failed", slog.Any("error", err))
		closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return
	}
	logger = logger.With(slog.Uint64("user_id", uint64(userID)))

	ctx := c.Request.Context()
	channel := worker.NotifyChannel(userID)
	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("subscribe notifications failed", slog.Any("error", err))
		closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	if err := writeJSON(conn, gin.H{"type": "ready"}); err != nil {
		return
	}
	logger.Info("notification stream opened", slog.String("channel", channel))

	err = h.pump(conn, pubsub.Channel(), drain(conn))
	logger.Info("notification stream closed", slog.Any("reason", err))
}

// authenticate 在超时内读取鉴权消息并返回用户 ID。
func (h *NotificationHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, errors.New("first message must be an auth message")
	}
	claims, err := h.tokens.ParseAccess(msg.Token)
	if err != nil {
		return 0, err
	}
	if claims.MustChangePassword {
		return 0, errPasswordChangePending
	}
	return claims.UserID, nil
}

// drain 持续读取客户端帧以处理 pong 与关闭，连接断开时关闭返回的通道。
func drain(conn *websocket.Conn) <-chan error {
	done := make(chan error, 1)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				done <- err
				close(done)
				return
			}
		}
	}()
	return done
}

// pump 把 Redis 消息写给客户端并定期发送 ping。只有它写连接。
func (h *NotificationHandler) pump(conn *websocket.Conn, messages <-chan *redis.Message, closed <-chan error) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-closed:
			return err
		case msg, ok := <-messages:
			if !ok {
				closeWith(conn, websocket.CloseGoingAway, "notifications unavailable")
				return errors.New("pubsub channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
