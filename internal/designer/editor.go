package designer

import (
	"context"
	"fmt"
	"strings"
)

// Editor 是一个编辑会话：持有唯一的草稿、草稿代数与保存中的标记。
// 每次草稿被丢弃或保存完成，Generation 递增，用于识别过期的保存响应。
// 上传模板路径与设计器在同一会话内互斥。
type Editor struct {
	Draft               *Draft `json:"draft"`
	Generation          uint64 `json:"generation"`
	Saving              bool   `json:"saving"`
	UploadedTemplateURL string `json:"uploaded_template_url,omitempty"`
}

// SaveTicket 记录一次进行中的保存，完成时凭它判断响应是否过期。
type SaveTicket struct {
	Generation uint64
	Name       string
	Layout     Layout
	Sections   []Section
}

// NewEditor 返回一个持有空草稿的会话。
func NewEditor() *Editor {
	return &Editor{Draft: NewDraft()}
}

// Current 返回会话中的草稿。
func (e *Editor) Current() *Draft {
	if e.Draft == nil {
		e.Draft = NewDraft()
	}
	return e.Draft
}

// ChooseLayout 为草稿选择布局。会话正在使用上传模板时拒绝。
func (e *Editor) ChooseLayout(layout Layout) error {
	if e.UploadedTemplateURL != "" {
		return ErrUploadedTemplateActive
	}
	return e.Current().ChooseLayout(layout)
}

// UseUploadedTemplate 切换到组织上传的模板文件，同时丢弃设计中的草稿。
// url 为空表示回到设计器。
func (e *Editor) UseUploadedTemplate(url string) {
	url = strings.TrimSpace(url)
	if url == e.UploadedTemplateURL && e.Current().CurrentState() == StateEmpty {
		return
	}
	e.discard()
	e.UploadedTemplateURL = url
}

// Reset 把会话恢复到 Empty。重复调用与调用一次效果相同。
func (e *Editor) Reset() {
	if e.Current().CurrentState() == StateEmpty && !e.Saving && e.UploadedTemplateURL == "" {
		return
	}
	e.discard()
	e.UploadedTemplateURL = ""
}

func (e *Editor) discard() {
	e.Current().Reset()
	e.Saving = false
	e.Generation++
}

// BeginSave 校验草稿并标记保存进行中，返回保存所需的快照。
func (e *Editor) BeginSave(name string) (SaveTicket, error) {
	if e.Saving {
		return SaveTicket{}, ErrSaveInProgress
	}
	d := e.Current()
	if err := d.checkSavable(name); err != nil {
		return SaveTicket{}, err
	}
	e.Saving = true
	return SaveTicket{
		Generation: e.Generation,
		Name:       strings.TrimSpace(name),
		Layout:     d.Layout,
		Sections:   d.SectionList(),
	}, nil
}

// FinishSave 应用保存结果。会话在保存期间被重置过则返回 false 并忽略结果；
// 保存失败时草稿原样保留以便重试；成功时草稿进入 Saved，会话换上新的空草稿。
func (e *Editor) FinishSave(ticket SaveTicket, saveErr error) bool {
	if ticket.Generation != e.Generation {
		return false
	}
	e.Saving = false
	if saveErr != nil {
		return true
	}
	e.Current().State = StateSaved
	e.Draft = NewDraft()
	e.Generation++
	return true
}

// Save 通过 Gateway 保存草稿。
func (e *Editor) Save(ctx context.Context, gw *Gateway, orgID uint, name string) (Template, error) {
	ticket, err := e.BeginSave(name)
	if err != nil {
		return Template{}, err
	}
	tpl, err := gw.Save(ctx, orgID, ticket.Layout, ticket.Sections, ticket.Name)
	e.FinishSave(ticket, err)
	if err != nil {
		return Template{}, fmt.Errorf("save template: %w", err)
	}
	return tpl, nil
}
