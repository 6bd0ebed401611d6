package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"craftcv/internal/designer"
)

const (
	editorKeyPrefix    = "designer:draft:"
	editorSavingPrefix = "designer:saving:"
	defaultEditorTTL   = 24 * time.Hour
	defaultSaveLockTTL = 30 * time.Second
)

// RedisEditorStore 在 Redis 中保存每个用户唯一的设计器会话。
// 保存中的标记使用 SETNX，保证同一用户同一时刻最多一个保存请求在途。
type RedisEditorStore struct {
	redis       redis.UniversalClient
	ttl         time.Duration
	saveLockTTL time.Duration
}

// NewRedisEditorStore 构造会话存储，ttl 为 0 时使用默认值。
func NewRedisEditorStore(client redis.UniversalClient, ttl, saveLockTTL time.Duration) *RedisEditorStore {
	if ttl <= 0 {
		ttl = defaultEditorTTL
	}
	if saveLockTTL <= 0 {
		saveLockTTL = defaultSaveLockTTL
	}
	return &RedisEditorStore{
		redis:       client,
		ttl:         ttl,
		saveLockTTL: saveLockTTL,
	}
}

// Load 读取用户会话，不存在时返回新的空会话。
func (s *RedisEditorStore) Load(ctx context.Context, userID uint) (*designer.Editor, error) {
	raw, err := s.redis.Get(ctx, editorKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return designer.NewEditor(), nil
		}
		return nil, fmt.Errorf("load editor session: %w", err)
	}

	var editor designer.Editor
	if err := json.Unmarshal(raw, &editor); err != nil {
		return nil, fmt.Errorf("decode editor session: %w", err)
	}
	if editor.Draft == nil {
		editor.Draft = designer.NewDraft()
	}
	return &editor, nil
}

// Store 写回会话并刷新过期时间。
func (s *RedisEditorStore) Store(ctx context.Context, userID uint, editor *designer.Editor) error {
	raw, err := json.Marshal(editor)
	if err != nil {
		return fmt.Errorf("encode editor session: %w", err)
	}
	if err := s.redis.Set(ctx, editorKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store editor session: %w", err)
	}
	return nil
}

// SaveLease 是一次成功占用的保存标记。
type SaveLease struct {
	Token string
	TTL   time.Duration
}

// Budget 返回持有者完成保存可用的时长，留出余量保证在标记过期前结束。
func (l SaveLease) Budget() time.Duration {
	return l.TTL - l.TTL/5
}

// 只删除仍属于调用方的标记。
var releaseSaveScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireSave 尝试占用保存标记，已被占用时返回 false。
func (s *RedisEditorStore) AcquireSave(ctx context.Context, userID uint) (SaveLease, bool, error) {
	lease := SaveLease{Token: uuid.NewString(), TTL: s.saveLockTTL}
	ok, err := s.redis.SetNX(ctx, savingKey(userID), lease.Token, s.saveLockTTL).Result()
	if err != nil {
		return SaveLease{}, false, fmt.Errorf("acquire save lock: %w", err)
	}
	if !ok {
		return SaveLease{}, false, nil
	}
	return lease, true, nil
}

// ReleaseSave 释放 lease 对应的保存标记。标记已过期或已被他人占用时不做任何事。
func (s *RedisEditorStore) ReleaseSave(ctx context.Context, userID uint, lease SaveLease) error {
	if err := releaseSaveScript.Run(ctx, s.redis, []string{savingKey(userID)}, lease.Token).Err(); err != nil {
		return fmt.Errorf("release save lock: %w", err)
	}
	return nil
}

func editorKey(userID uint) string {
	return fmt.Sprintf("%s%d", editorKeyPrefix, userID)
}

func savingKey(userID uint) string {
	return fmt.Sprintf("%s%d", editorSavingPrefix, userID)
}
