package designer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Section 是草稿中已放置的区块。ID 在放置时生成，草稿生命周期内保持不变。
type Section struct {
	ID     string      `json:"id"`
	Type   SectionType `json:"type"`
	Title  string      `json:"title"`
	Column Column      `json:"column"`
}

// State 表示草稿所处阶段。
type State string

const (
	StateEmpty        State = "empty"
	StateLayoutChosen State = "layout_chosen"
	StateEditing      State = "editing"
	StateSaved        State = "saved"
)

// newSectionID 生成区块 ID。
var newSectionID = uuid.NewString

// Draft 是正在编辑的模板。零值即为 Empty 状态的草稿。
// Draft 不是并发安全的，同一时刻只应有一个持有者修改它。
type Draft struct {
	Layout   Layout    `json:"layout,omitempty"`
	Sections []Section `json:"sections"`
	State    State     `json:"state"`
}

// NewDraft 返回一个空草稿。
func NewDraft() *Draft {
	return &Draft{State: StateEmpty}
}

func (d *Draft) state() State {
	if d.State == "" {
		return StateEmpty
	}
	return d.State
}

// ChooseLayout 选择布局，并以预设的默认区块填充草稿。
func (d *Draft) ChooseLayout(layout Layout) error {
	if d.state() != StateEmpty {
		return fmt.Errorf("%w: layout already chosen", ErrInvalidState)
	}
	placements, ok := DefaultPlacements(layout)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}

	sections := make([]Section, 0, len(placements))
	for _, p := range placements {
		sections = append(sections, Section{
			ID:     newSectionID(),
			Type:   p.Type,
			Title:  DefaultTitle(p.Type),
			Column: p.Column,
		})
	}

	d.Layout = layout
	d.Sections = sections
	d.State = StateLayoutChosen
	return nil
}

// AddSection 追加一个新区块并返回它。达到数量上限或栏位不合法时草稿不变。
func (d *Draft) AddSection(t SectionType, column Column) (Section, error) {
	if !d.editable() {
		return Section{}, fmt.Errorf("%w: choose a layout first", ErrInvalidState)
	}
	if _, ok := Lookup(t); !ok {
		return Section{}, fmt.Errorf("%w: %q", ErrUnknownSection, t)
	}
	if !CanAdd(t, d.Sections) {
		return Section{}, fmt.Errorf("%w: %s", ErrLimitReached, t)
	}
	if !ColumnAllowedInLayout(d.Layout, t, column) {
		return Section{}, fmt.Errorf("%w: %s in %q", ErrIllegalColumn, t, column)
	}

	s := Section{
		ID:     newSectionID(),
		Type:   t,
		Title:  DefaultTitle(t),
		Column: column,
	}
	d.Sections = append(d.Sections, s)
	d.State = StateEditing
	return s, nil
}

// RemoveSection 移除指定区块，ID 不存在时什么也不做。
func (d *Draft) RemoveSection(id string) {
	if !d.editable() {
		return
	}
	i := indexOf(d.Sections, id)
	if i < 0 {
		return
	}
	d.Sections = removeAt(d.Sections, i)
	d.State = StateEditing
}

// MoveSection 调整区块的栏位和/或在栏位内的位置。
// targetColumn 为空时只在原栏位内重排；非法栏位被拒绝，区块保持原位。
func (d *Draft) MoveSection(id string, targetColumn Column, targetIndex int) error {
	if !d.editable() {
		return fmt.Errorf("%w: choose a layout first", ErrInvalidState)
	}
	if indexOf(d.Sections, id) < 0 {
		return nil
	}
	sections, err := Move(d.Layout, d.Sections, id, targetColumn, targetIndex)
	if err != nil {
		return err
	}
	d.Sections = sections
	d.State = StateEditing
	return nil
}

// Drop 应用一次已解析的拖放手势。
func (d *Draft) Drop(draggedID string, target DropTarget) error {
	if !d.editable() {
		return fmt.Errorf("%w: choose a layout first", ErrInvalidState)
	}
	if indexOf(d.Sections, draggedID) < 0 {
		return nil
	}
	sections, err := ApplyDrop(d.Layout, d.Sections, draggedID, target)
	if err != nil {
		return err
	}
	d.Sections = sections
	d.State = StateEditing
	return nil
}

// Reset 丢弃未保存的内容，回到 Empty。
func (d *Draft) Reset() {
	d.Layout = ""
	d.Sections = nil
	d.State = StateEmpty
}

// SectionList 返回区块序列的副本。
func (d *Draft) SectionList() []Section {
	return cloneSections(d.Sections)
}

// SelectedLayout 返回已选布局，未选择时为空串。
func (d *Draft) SelectedLayout() Layout {
	return d.Layout
}

// CurrentState 返回草稿所处阶段。
func (d *Draft) CurrentState() State {
	return d.state()
}

// CanAddSection 判断当前草稿是否还能添加该类型区块。
func (d *Draft) CanAddSection(t SectionType) bool {
	return d.editable() && CanAdd(t, d.Sections)
}

// AddableSections 返回每种区块当前是否可添加。
func (d *Draft) AddableSections() map[SectionType]bool {
	out := make(map[SectionType]bool, len(catalog))
	for _, desc := range catalog {
		out[desc.Type] = d.CanAddSection(desc.Type)
	}
	return out
}

// checkSavable 校验保存前置条件。
func (d *Draft) checkSavable(name string) error {
	if !d.editable() || d.Layout == "" {
		return ErrLayoutRequired
	}
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	return nil
}

func (d *Draft) editable() bool {
	switch d.state() {
	case StateLayoutChosen, StateEditing:
		return true
	}
	return false
}
