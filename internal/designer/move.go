package designer

import "fmt"

// DropTarget 是交互层解析完成的拖放目标，二者取其一：
// SectionID 指向某个区块，Column 指向某一栏的空白区域。
// After 为 true 时插入到目标区块之后，否则插入到其之前。
type DropTarget struct {
	SectionID string `json:"section_id,omitempty"`
	Column    Column `json:"column,omitempty"`
	After     bool   `json:"after,omitempty"`
}

// ApplyDrop 根据一次拖放手势重新计算区块顺序与栏位，返回新的切片。
// 找不到被拖拽区块或目标区块时手势被忽略；非法的跨栏移动返回 ErrIllegalColumn，
// 此时返回的序列与输入一致。
func ApplyDrop(layout Layout, sections []Section, draggedID string, target DropTarget) ([]Section, error) {
	out := cloneSections(sections)
	from := indexOf(out, draggedID)
	if from < 0 {
		return out, nil
	}
	dragged := out[from]

	switch {
	case target.SectionID != "":
		if target.SectionID == draggedID {
			return out, nil
		}
		to := indexOf(out, target.SectionID)
		if to < 0 {
			return out, nil
		}
		column := out[to].Column
		if column != dragged.Column {
			if err := checkColumnChange(layout, dragged, column); err != nil {
				return out, err
			}
			dragged.Column = column
		}
		rest := removeAt(out, from)
		at := indexOf(rest, target.SectionID)
		if target.After {
			at++
		}
		return insertAt(rest, at, dragged), nil

	case target.Column != "":
		if layout != LayoutTwoColumn || target.Column == dragged.Column {
			return out, nil
		}
		if err := checkColumnChange(layout, dragged, target.Column); err != nil {
			return out, err
		}
		dragged.Column = target.Column
		rest := removeAt(out, from)
		return insertAt(rest, tailPosition(rest, target.Column, from), dragged), nil
	}

	return out, nil
}

// Move 把区块移动到 targetColumn 内的第 targetIndex 个位置（按该栏成员计数）。
// targetColumn 为空表示保持原栏位。其余栏位成员在底层序列中的相对次序不变。
func Move(layout Layout, sections []Section, id string, targetColumn Column, targetIndex int) ([]Section, error) {
	out := cloneSections(sections)
	from := indexOf(out, id)
	if from < 0 {
		return out, nil
	}
	moved := out[from]

	if targetColumn == "" {
		targetColumn = moved.Column
	}
	if targetColumn != moved.Column {
		if err := checkColumnChange(layout, moved, targetColumn); err != nil {
			return out, err
		}
		moved.Column = targetColumn
	}

	rest := removeAt(out, from)
	members := columnPositions(rest, targetColumn)

	var at int
	switch {
	case len(members) == 0:
		at = min(from, len(rest))
	case targetIndex <= 0:
		at = members[0]
	case targetIndex >= len(members):
		at = members[len(members)-1] + 1
	default:
		at = members[targetIndex]
	}
	return insertAt(rest, at, moved), nil
}

func checkColumnChange(layout Layout, s Section, to Column) error {
	if layout != LayoutTwoColumn || isPinned(s.Type) || !to.Valid() || !IsLegalColumn(s.Type, to) {
		return fmt.Errorf("%w: %s cannot move to %q", ErrIllegalColumn, s.Type, to)
	}
	return nil
}

// tailPosition 返回栏位最后一个成员之后的位置；栏位为空时退回 fallback。
func tailPosition(sections []Section, column Column, fallback int) int {
	members := columnPositions(sections, column)
	if len(members) == 0 {
		return min(fallback, len(sections))
	}
	return members[len(members)-1] + 1
}

func columnPositions(sections []Section, column Column) []int {
	var positions []int
	for i, s := range sections {
		if s.Column == column {
			positions = append(positions, i)
		}
	}
	return positions
}

func indexOf(sections []Section, id string) int {
	for i, s := range sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(sections []Section, i int) []Section {
	out := make([]Section, 0, len(sections)-1)
	out = append(out, sections[:i]...)
	return append(out, sections[i+1:]...)
}

func insertAt(sections []Section, i int, s Section) []Section {
	out := make([]Section, 0, len(sections)+1)
	out = append(out, sections[:i]...)
	out = append(out, s)
	return append(out, sections[i:]...)
}

func cloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}
