package designer

import "fmt"

// CanAdd 判断在当前区块序列上是否还能再添加一个该类型的区块。
// 未知类型一律返回 false。
func CanAdd(t SectionType, current []Section) bool {
	d, ok := Lookup(t)
	if !ok {
		return false
	}
	return countType(current, t) < d.MaxInstances
}

// IsLegalColumn 判断栏位是否在该区块允许的集合内。
func IsLegalColumn(t SectionType, c Column) bool {
	d, ok := Lookup(t)
	if !ok {
		return false
	}
	return d.Allows(c)
}

// ColumnAllowedInLayout 在 IsLegalColumn 之上叠加布局约束：单栏布局只接受 full。
func ColumnAllowedInLayout(layout Layout, t SectionType, c Column) bool {
	if !IsLegalColumn(t, c) {
		return false
	}
	if layout == LayoutOneColumn {
		return c == ColumnFull
	}
	return true
}

// isPinned 表示页眉页脚，两栏布局下始终占满整行。
func isPinned(t SectionType) bool {
	return t == SectionHeader || t == SectionFooter
}

// ValidateSections 校验直接提交的完整区块序列。
func ValidateSections(layout Layout, sections []Section) error {
	if layout == "" {
		return ErrLayoutRequired
	}
	if !layout.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}

	seenIDs := make(map[string]struct{}, len(sections))
	counts := make(map[SectionType]int, len(sections))
	for _, s := range sections {
		if s.ID == "" {
			return fmt.Errorf("%w: section id is required", ErrInvalidSections)
		}
		if _, dup := seenIDs[s.ID]; dup {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidSections, s.ID)
		}
		seenIDs[s.ID] = struct{}{}

		d, ok := Lookup(s.Type)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSection, s.Type)
		}
		if !ColumnAllowedInLayout(layout, s.Type, s.Column) {
			return fmt.Errorf("%w: %s in %q", ErrIllegalColumn, s.Type, s.Column)
		}
		counts[s.Type]++
		if counts[s.Type] > d.MaxInstances {
			return fmt.Errorf("%w: %s", ErrLimitReached, s.Type)
		}
	}
	return nil
}

func countType(sections []Section, t SectionType) int {
	n := 0
	for _, s := range sections {
		if s.Type == t {
			n++
		}
	}
	return n
}
