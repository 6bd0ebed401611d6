package designer

// SectionType 标识简历模板中的区块种类。
type SectionType string

const (
	SectionHeader         SectionType = "header"
	SectionPersonalInfo   SectionType = "personal-info"
	SectionSummary        SectionType = "summary"
	SectionExperience     SectionType = "experience"
	SectionEducation      SectionType = "education"
	SectionSkills         SectionType = "skills"
	SectionCertifications SectionType = "certifications"
	SectionFooter         SectionType = "footer"
)

// Column 表示区块所在的栏位。
type Column string

const (
	ColumnLeft  Column = "left"
	ColumnRight Column = "right"
	ColumnFull  Column = "full"
)

// Valid 判断栏位取值是否合法。
func (c Column) Valid() bool {
	switch c {
	case ColumnLeft, ColumnRight, ColumnFull:
		return true
	}
	return false
}

// Layout 表示模板的整体布局。
type Layout string

const (
	LayoutOneColumn Layout = "1-column"
	LayoutTwoColumn Layout = "2-column"
)

// Valid 判断布局是否属于内置预设。
func (l Layout) Valid() bool {
	_, ok := presetIndex[l]
	return ok
}

// SectionDescriptor 描述一种区块的放置约束。
type SectionDescriptor struct {
	Type           SectionType `json:"type"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	AllowedColumns []Column    `json:"allowed_columns"`
	Required       bool        `json:"required"`
	MaxInstances   int         `json:"max_instances"`
}

// Allows 判断该区块是否允许放在指定栏位。
func (d SectionDescriptor) Allows(c Column) bool {
	for _, allowed := range d.AllowedColumns {
		if allowed == c {
			return true
		}
	}
	return false
}

// Placement 是布局预设中的一个默认区块位置。
type Placement struct {
	Type   SectionType `json:"type"`
	Column Column      `json:"column"`
}

// LayoutPreset 描述一种布局及其默认区块。
type LayoutPreset struct {
	Layout      Layout      `json:"layout"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Placements  []Placement `json:"default_sections"`
}

// 与渲染模板中的区块变量保持一致，进程启动后不再变化。
var catalog = []SectionDescriptor{
	{
		Type:           SectionHeader,
		Title:          "Header",
		Description:    "Organization logo and name",
		AllowedColumns: []Column{ColumnFull},
		Required:       true,
		MaxInstances:   1,
	},
	{
		Type:           SectionPersonalInfo,
		Title:          "Personal Information",
		Description:    "Name, contact details, and location",
		AllowedColumns: []Column{ColumnLeft, ColumnFull},
		Required:       true,
		MaxInstances:   1,
	},
	{
		Type:           SectionSummary,
		Title:          "Professional Summary",
		Description:    "Brief career overview",
		AllowedColumns: []Column{ColumnRight, ColumnFull},
		MaxInstances:   1,
	},
	{
		Type:           SectionExperience,
		Title:          "Work Experience",
		Description:    "Professional history",
		AllowedColumns: []Column{ColumnRight, ColumnFull},
		Required:       true,
		MaxInstances:   1,
	},
	{
		Type:           SectionEducation,
		Title:          "Education",
		Description:    "Academic background",
		AllowedColumns: []Column{ColumnRight, ColumnFull},
		Required:       true,
		MaxInstances:   1,
	},
	{
		Type:           SectionSkills,
		Title:          "Skills",
		Description:    "Technical and soft skills",
		AllowedColumns: []Column{ColumnLeft, ColumnFull},
		Required:       true,
		MaxInstances:   1,
	},
	{
		Type:           SectionCertifications,
		Title:          "Certifications",
		Description:    "Professional certifications",
		AllowedColumns: []Column{ColumnLeft, ColumnFull},
		MaxInstances:   1,
	},
	{
		Type:           SectionFooter,
		Title:          "Footer",
		Description:    "Additional information",
		AllowedColumns: []Column{ColumnFull},
		MaxInstances:   1,
	},
}

var presets = []LayoutPreset{
	{
		Layout:      LayoutOneColumn,
		Name:        "Single Column",
		Description: "Traditional layout with sections stacked vertically",
		Placements: []Placement{
			{Type: SectionHeader, Column: ColumnFull},
			{Type: SectionPersonalInfo, Column: ColumnFull},
			{Type: SectionSummary, Column: ColumnFull},
			{Type: SectionExperience, Column: ColumnFull},
			{Type: SectionEducation, Column: ColumnFull},
			{Type: SectionSkills, Column: ColumnFull},
			{Type: SectionCertifications, Column: ColumnFull},
			{Type: SectionFooter, Column: ColumnFull},
		},
	},
	{
		Layout:      LayoutTwoColumn,
		Name:        "Two Columns",
		Description: "Modern layout with sidebar for personal info and skills",
		Placements: []Placement{
			{Type: SectionHeader, Column: ColumnFull},
			{Type: SectionPersonalInfo, Column: ColumnLeft},
			{Type: SectionSkills, Column: ColumnLeft},
			{Type: SectionCertifications, Column: ColumnLeft},
			{Type: SectionSummary, Column: ColumnRight},
			{Type: SectionExperience, Column: ColumnRight},
			{Type: SectionEducation, Column: ColumnRight},
			{Type: SectionFooter, Column: ColumnFull},
		},
	},
}

var (
	catalogIndex = indexCatalog()
	presetIndex  = indexPresets()
)

func indexCatalog() map[SectionType]int {
	idx := make(map[SectionType]int, len(catalog))
	for i, d := range catalog {
		idx[d.Type] = i
	}
	return idx
}

func indexPresets() map[Layout]int {
	idx := make(map[Layout]int, len(presets))
	for i, p := range presets {
		idx[p.Layout] = i
	}
	return idx
}

// Lookup 返回区块类型对应的描述。
func Lookup(t SectionType) (SectionDescriptor, bool) {
	i, ok := catalogIndex[t]
	if !ok {
		return SectionDescriptor{}, false
	}
	return cloneDescriptor(catalog[i]), true
}

// Catalog 按目录顺序返回全部区块描述的副本。
func Catalog() []SectionDescriptor {
	out := make([]SectionDescriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, cloneDescriptor(d))
	}
	return out
}

// DefaultPlacements 返回布局的默认区块序列。
func DefaultPlacements(layout Layout) ([]Placement, bool) {
	i, ok := presetIndex[layout]
	if !ok {
		return nil, false
	}
	return append([]Placement(nil), presets[i].Placements...), true
}

// Layouts 返回全部布局预设。
func Layouts() []LayoutPreset {
	out := make([]LayoutPreset, 0, len(presets))
	for _, p := range presets {
		p.Placements = append([]Placement(nil), p.Placements...)
		out = append(out, p)
	}
	return out
}

// DefaultTitle 返回区块的默认展示名称，未知类型退回类型本身。
func DefaultTitle(t SectionType) string {
	if d, ok := Lookup(t); ok {
		return d.Title
	}
	return string(t)
}

func cloneDescriptor(d SectionDescriptor) SectionDescriptor {
	d.AllowedColumns = append([]Column(nil), d.AllowedColumns...)
	return d
}
