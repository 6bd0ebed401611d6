package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"craftcv/internal/database"
)

// ErrAccountExists 表示用户名或邮箱已被占用。
var ErrAccountExists = errors.New("username or email already taken")

// UserStore 管理账号。每个账号注册时同时创建其组织。
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Register 在一个事务内创建账号与默认品牌设置的组织。
func (s *UserStore) Register(ctx context.Context, user *database.User, orgName string) (*database.Organization, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	var org database.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.User{}).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAccountExists
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		org = database.NewOrganization(user.ID, orgName)
		return tx.Create(&org).Error
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		return nil, fmt.Errorf("register user: %w", err)
	}
	return &org, nil
}

// ByLogin 按用户名或邮箱查找账号，并带出组织。
func (s *UserStore) ByLogin(ctx context.Context, login string) (*database.User, error) {
	login = strings.TrimSpace(login)
	var user database.User
	err := s.db.WithContext(ctx).
		Preload("Organization").
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) ByID(ctx context.Context, id uint) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Preload("Organization").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// SetPassword 更新口令哈希并清除强制改密标记。
func (s *UserStore) SetPassword(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	})
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ForcePasswordReset 设置临时口令，账号下次登录后必须改密。
func (s *UserStore) ForcePasswordReset(ctx context.Context, login, hash string) (*database.User, error) {
	user, err := s.ByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": true,
	}).Error; err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	return user, nil
}
