package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"craftcv/internal/database"
)

// CVStore 读写上传的简历记录，所有查询都限定在用户范围内。
type CVStore struct {
	db *gorm.DB
}

func NewCVStore(db *gorm.DB) *CVStore {
	return &CVStore{db: db}
}

func (s *CVStore) Create(ctx context.Context, cv *database.CV) error {
	if err := s.db.WithContext(ctx).Create(cv).Error; err != nil {
		return fmt.Errorf("create cv: %w", err)
	}
	return nil
}

// ListByUser 按上传时间倒序返回用户的简历。
func (s *CVStore) ListByUser(ctx context.Context, userID uint) ([]database.CV, error) {
	var cvs []database.CV
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&cvs).Error; err != nil {
		return nil, fmt.Errorf("list cvs: %w", err)
	}
	return cvs, nil
}

func (s *CVStore) GetForUser(ctx context.Context, id string, userID uint) (*database.CV, error) {
	var cv database.CV
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&cv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cv: %w", err)
	}
	return &cv, nil
}

// Get 不做归属校验，供后台任务使用。
func (s *CVStore) Get(ctx context.Context, id string) (*database.CV, error) {
	var cv database.CV
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&cv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cv: %w", err)
	}
	return &cv, nil
}

func (s *CVStore) Update(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&database.CV{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update cv: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
