package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"craftcv/internal/database"
	"craftcv/internal/designer"
)

// ErrNotFound 表示记录不存在或不属于当前组织。
var ErrNotFound = errors.New("record not found")

// TemplateStore 基于 GORM 保存组织模板，实现 designer.Store。
type TemplateStore struct {
	db *gorm.DB
}

// NewTemplateStore 构造 TemplateStore。
func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

var _ designer.Store = (*TemplateStore)(nil)

// List 按创建时间返回组织的全部模板。
func (s *TemplateStore) List(ctx context.Context, orgID uint) ([]designer.Template, error) {
	var rows []database.Template
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]designer.Template, 0, len(rows))
	for _, row := range rows {
		tpl, err := toDesignerTemplate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}

// Get 返回组织内指定模板。
func (s *TemplateStore) Get(ctx context.Context, orgID uint, id string) (designer.Template, error) {
	var row database.Template
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return designer.Template{}, ErrNotFound
		}
		return designer.Template{}, fmt.Errorf("get template: %w", err)
	}
	return toDesignerTemplate(row)
}

// Default 返回组织的默认模板。
func (s *TemplateStore) Default(ctx context.Context, orgID uint) (designer.Template, error) {
	var row database.Template
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_default = ?", orgID, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return designer.Template{}, ErrNotFound
		}
		return designer.Template{}, fmt.Errorf("get default template: %w", err)
	}
	return toDesignerTemplate(row)
}

// Create 写入模板。组织的第一个模板成为默认模板，调用方传入的 IsDefault 被忽略。
// 组织行在事务内加锁，同一组织的并发创建按顺序计数。
func (s *TemplateStore) Create(ctx context.Context, tpl designer.Template) (designer.Template, error) {
	row, err := fromDesignerTemplate(tpl)
	if err != nil {
		return designer.Template{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orgs []database.Organization
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", row.OrganizationID).
			Find(&orgs).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&database.Template{}).
			Where("organization_id = ?", row.OrganizationID).
			Count(&count).Error; err != nil {
			return err
		}
		row.IsDefault = count == 0
		return tx.Create(&row).Error
	})
	if err != nil {
		return designer.Template{}, fmt.Errorf("create template: %w", err)
	}
	return toDesignerTemplate(row)
}

// SetDefault 把指定模板设为组织唯一的默认模板。
func (s *TemplateStore) SetDefault(ctx context.Context, orgID uint, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.Template{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&database.Template{}).
			Where("organization_id = ? AND id <> ?", orgID, id).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&database.Template{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Update("is_default", true).Error
	})
	if err != nil {
		return fmt.Errorf("set default template: %w", err)
	}
	return nil
}

// Delete 删除组织内的模板。
func (s *TemplateStore) Delete(ctx context.Context, orgID uint, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&database.Template{})
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func toDesignerTemplate(row database.Template) (designer.Template, error) {
	sections := []designer.Section{}
	if len(row.Sections) > 0 {
		if err := json.Unmarshal(row.Sections, &sections); err != nil {
			return designer.Template{}, fmt.Errorf("decode template %s sections: %w", row.ID, err)
		}
	}
	return designer.Template{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		Name:           row.Name,
		Layout:         designer.Layout(row.Layout),
		Sections:       sections,
		IsDefault:      row.IsDefault,
		CreatedAt:      row.CreatedAt,
	}, nil
}

func fromDesignerTemplate(tpl designer.Template) (database.Template, error) {
	sections := tpl.Sections
	if sections == nil {
		sections = []designer.Section{}
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		return database.Template{}, fmt.Errorf("encode template sections: %w", err)
	}
	return database.Template{
		ID:             tpl.ID,
		OrganizationID: tpl.OrganizationID,
		Name:           tpl.Name,
		Layout:         string(tpl.Layout),
		Sections:       datatypes.JSON(raw),
		IsDefault:      tpl.IsDefault,
		CreatedAt:      tpl.CreatedAt,
	}, nil
}
