package pdf

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"craftcv/internal/designer"
	"craftcv/internal/resume"
)

func twoColumnSections() []designer.Section {
	placements, _ := designer.DefaultPlacements(designer.LayoutTwoColumn)
	sections := make([]designer.Section, 0, len(placements))
	for _, p := range placements {
		sections = append(sections, designer.Section{
			ID:     string(p.Type),
			Type:   p.Type,
			Title:  designer.DefaultTitle(p.Type),
			Column: p.Column,
		})
	}
	return sections
}

func blockShape(blocks []block) []string {
	var out []string
	for _, b := range blocks {
		if b.Full != nil {
			out = append(out, "full:"+b.Full.ID)
			continue
		}
		var left, right []string
		for _, s := range b.Left {
			left = append(left, s.ID)
		}
		for _, s := range b.Right {
			right = append(right, s.ID)
		}
		out = append(out, "split:"+strings.Join(left, ",")+"|"+strings.Join(right, ","))
	}
	return out
}

func TestBuildBlocksTwoColumn(t *testing.T) {
	got := blockShape(buildBlocks(designer.LayoutTwoColumn, twoColumnSections()))
	want := []string{
		"full:header",
		"split:personal-info,skills,certifications|summary,experience,education",
		"full:footer",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildBlocksOneColumnKeepsOrder(t *testing.T) {
	sections := []designer.Section{
		{ID: "a", Type: designer.SectionHeader, Column: designer.ColumnFull},
		{ID: "b", Type: designer.SectionSkills, Column: designer.ColumnFull},
	}
	got := blockShape(buildBlocks(designer.LayoutOneColumn, sections))
	if diff := cmp.Diff([]string{"full:a", "full:b"}, got); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Document{
		Layout:   designer.LayoutTwoColumn,
		Sections: twoColumnSections(),
		CV: resume.Parsed{
			PersonalInfo: resume.PersonalInfo{Name: "<Jane>", Email: "jane@example.com"},
			Skills:       []string{"Go"},
		},
		Branding: Branding{PrimaryColor: "#ff0000"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"&lt;Jane&gt;", "jane@example.com", "#ff0000", "#1e40af", "Work Experience"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
	if strings.Contains(html, "<Jane>") {
		t.Fatalf("expected name to be escaped")
	}
	if strings.Index(html, `data-section-id="header"`) > strings.Index(html, `data-section-id="footer"`) {
		t.Fatalf("expected header before footer")
	}
}
