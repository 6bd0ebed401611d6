package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"craftcv/internal/errcode"
)

// 通知类型。
const (
	NotifyCVParsed  = "cv_parsed"
	NotifyCVBranded = "cv_branded"
)

// NotifyMessage 是统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type NotifyMessage struct {
	Type          string       `json:"type"`
	Status        string       `json:"status"`
	CVID          string       `json:"cv_id"`
	CorrelationID string       `json:"correlation_id"`
	ErrorCode     errcode.Code `json:"error_code"`
	ErrorMessage  string       `json:"error_message"`
	UserFixable   bool         `json:"user_fixable,omitempty"`
}

// Notifier 把任务结果发布到用户频道 user_notify:<id>。
type Notifier struct {
	redis redis.UniversalClient
}

func NewNotifier(client redis.UniversalClient) *Notifier {
	return &Notifier{redis: client}
}

// NotifyChannel 返回用户的通知频道名。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// Publish 发布一条通知。
func (n *Notifier) Publish(ctx context.Context, userID uint, msg NotifyMessage) error {
	msg.UserFixable = msg.ErrorCode.UserFixable()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := n.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
