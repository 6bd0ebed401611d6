package designer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template 是组织保存下来的模板。Sections 是保存时的快照，与任何草稿互不共享。
type Template struct {
	ID             string    `json:"id"`
	OrganizationID uint      `json:"organization_id"`
	Name           string    `json:"name"`
	Layout         Layout    `json:"layout"`
	Sections       []Section `json:"sections"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store 是组织模板集合的外部存储。
type Store interface {
	List(ctx context.Context, orgID uint) ([]Template, error)
	// Create 写入模板，并在同一事务内决定 IsDefault：组织尚无模板时为 true。
	Create(ctx context.Context, tpl Template) (Template, error)
	SetDefault(ctx context.Context, orgID uint, id string) error
	Delete(ctx context.Context, orgID uint, id string) error
}

// Gateway 负责把草稿转换为持久化的模板，并处理默认模板与删除。
// 所有存储失败都以 *PersistenceError 返回，不做本地重试。
type Gateway struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGateway 构造 Gateway。
func NewGateway(store Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Save 以草稿的布局与区块快照创建模板。组织下没有模板时新模板成为默认模板。
func (g *Gateway) Save(ctx context.Context, orgID uint, layout Layout, sections []Section, name string) (Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Template{}, ErrNameRequired
	}
	if layout == "" {
		return Template{}, ErrLayoutRequired
	}

	tpl := Template{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Layout:         layout,
		Sections:       cloneSections(sections),
		CreatedAt:      g.now().UTC(),
	}
	if tpl.Sections == nil {
		tpl.Sections = []Section{}
	}

	saved, err := g.store.Create(ctx, tpl)
	if err != nil {
		return Template{}, &PersistenceError{Op: "create", Err: err}
	}
	if saved.ID == "" || !saved.Layout.Valid() {
		return Template{}, &PersistenceError{Op: "create", Err: errMalformedRecord}
	}

	g.logger.Info("template saved",
		slog.String("template_id", saved.ID),
		slog.Uint64("organization_id", uint64(orgID)),
		slog.Bool("is_default", saved.IsDefault),
	)
	return saved, nil
}

// SetDefault 把指定模板设为默认，其余模板同时取消默认。
func (g *Gateway) SetDefault(ctx context.Context, orgID uint, id string) error {
	if err := g.store.SetDefault(ctx, orgID, id); err != nil {
		return &PersistenceError{Op: "set_default", Err: err}
	}
	g.logger.Info("default template changed",
		slog.String("template_id", id),
		slog.Uint64("organization_id", uint64(orgID)),
	)
	return nil
}

// Remove 删除模板。被删除的若是默认模板，不会自动提升其他模板为默认。
func (g *Gateway) Remove(ctx context.Context, orgID uint, id string) error {
	if err := g.store.Delete(ctx, orgID, id); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	g.logger.Info("template removed",
		slog.String("template_id", id),
		slog.Uint64("organization_id", uint64(orgID)),
	)
	return nil
}

// List 返回组织的全部模板。
func (g *Gateway) List(ctx context.Context, orgID uint) ([]Template, error) {
	templates, err := g.store.List(ctx, orgID)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return templates, nil
}
