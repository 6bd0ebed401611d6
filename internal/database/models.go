package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CV 处理状态。
const (
	CVStatusProcessing = "processing"
	CVStatusParsed     = "parsed"
	CVStatusBranded    = "branded"
	CVStatusFailed     = "failed"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username           string        `gorm:"uniqueIndex;size:64"`
	Email              string        `gorm:"uniqueIndex;size:255"`
	PasswordHash       string        `gorm:"size:255"`
	MustChangePassword bool          `gorm:"default:false"`
	Organization       *Organization `gorm:"constraint:OnDelete:CASCADE"`
}

// Organization 表示账号对应的组织及其品牌设置，每个账号一个。
type Organization struct {
	gorm.Model
	UserID              uint   `gorm:"uniqueIndex"`
	Name                string `gorm:"size:255"`
	LogoObjectKey       string `gorm:"size:512"`
	PrimaryColor        string `gorm:"size:7;default:#2563eb"`
	SecondaryColor      string `gorm:"size:7;default:#1e40af"`
	Font                string `gorm:"size:255;default:Inter"`
	CVTemplateObjectKey string `gorm:"size:512"`
}

// 新组织的默认品牌设置。
const (
	DefaultPrimaryColor   = "#2563eb"
	DefaultSecondaryColor = "#1e40af"
	DefaultFont           = "Inter"
)

// NewOrganization 返回带默认品牌设置的组织。
func NewOrganization(userID uint, name string) Organization {
	return Organization{
		UserID:         userID,
		Name:           name,
		PrimaryColor:   DefaultPrimaryColor,
		SecondaryColor: DefaultSecondaryColor,
		Font:           DefaultFont,
	}
}

// CV 表示用户上传的简历文件及解析结果。
type CV struct {
	ID               string         `gorm:"primaryKey;size:36"`
	UserID           uint           `gorm:"index"`
	OrganizationID   uint           `gorm:"index"`
	OriginalFilename string         `gorm:"size:255"`
	ObjectKey        string         `gorm:"size:512"`
	ContentType      string         `gorm:"size:128"`
	Status           string         `gorm:"size:32;index"`
	ParsedData       datatypes.JSON `gorm:"type:jsonb"`
	TemplateID       *string        `gorm:"size:36"`
	BrandedObjectKey string         `gorm:"size:512"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Template 表示组织保存的简历模板。Sections 以 JSONB 存储有序区块快照。
// 同一组织内至多一个 IsDefault 为 true。
type Template struct {
	ID             string         `gorm:"primaryKey;size:36"`
	OrganizationID uint           `gorm:"index"`
	Name           string         `gorm:"size:255"`
	Layout         string         `gorm:"size:16"`
	Sections       datatypes.JSON `gorm:"type:jsonb"`
	IsDefault      bool           `gorm:"default:false;index"`
	CreatedAt      time.Time
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{&User{}, &Organization{}, &CV{}, &Template{}}
}
