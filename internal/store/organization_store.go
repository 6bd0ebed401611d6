package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"craftcv/internal/database"
)

// OrganizationStore 读写账号所属组织的品牌设置。
type OrganizationStore struct {
	db *gorm.DB
}

func NewOrganizationStore(db *gorm.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// ByUser 返回用户的组织。
func (s *OrganizationStore) ByUser(ctx context.Context, userID uint) (*database.Organization, error) {
	var org database.Organization
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return &org, nil
}

// ByID 按主键返回组织。
func (s *OrganizationStore) ByID(ctx context.Context, id uint) (*database.Organization, error) {
	var org database.Organization
	if err := s.db.WithContext(ctx).First(&org, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return &org, nil
}

// Update 按字段更新组织设置。
func (s *OrganizationStore) Update(ctx context.Context, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&database.Organization{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update organization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CVTemplateURL 返回组织上传的模板文件对象键，未上传时为空。
func (s *OrganizationStore) CVTemplateURL(ctx context.Context, orgID uint) (string, error) {
	org, err := s.ByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.CVTemplateObjectKey, nil
}
