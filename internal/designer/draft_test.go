package designer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func placementsOf(sections []Section) []Placement {
	out := make([]Placement, 0, len(sections))
	for _, s := range sections {
		out = append(out, Placement{Type: s.Type, Column: s.Column})
	}
	return out
}

func findSection(t *testing.T, sections []Section, typ SectionType) Section {
	t.Helper()
	for _, s := range sections {
		if s.Type == typ {
			return s
		}
	}
	t.Fatalf("section %s not found", typ)
	return Section{}
}

func newTwoColumnDraft(t *testing.T) *Draft {
	t.Helper()
	d := NewDraft()
	if err := d.ChooseLayout(LayoutTwoColumn); err != nil {
		t.Fatalf("choose layout: %v", err)
	}
	return d
}

func TestDraftChooseLayoutSeedsPreset(t *testing.T) {
	d := NewDraft()
	if err := d.ChooseLayout(LayoutOneColumn); err != nil {
		t.Fatalf("choose layout: %v", err)
	}
	if d.CurrentState() != StateLayoutChosen {
		t.Fatalf("expected layout_chosen got %s", d.CurrentState())
	}

	want, _ := DefaultPlacements(LayoutOneColumn)
	if diff := cmp.Diff(want, placementsOf(d.SectionList())); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}

	ids := map[string]struct{}{}
	for _, s := range d.Sections {
		if s.ID == "" {
			t.Fatalf("section %s has empty id", s.Type)
		}
		if _, dup := ids[s.ID]; dup {
			t.Fatalf("duplicate id %s", s.ID)
		}
		ids[s.ID] = struct{}{}
		if s.Title != DefaultTitle(s.Type) {
			t.Fatalf("unexpected title %q for %s", s.Title, s.Type)
		}
	}

	if err := d.ChooseLayout(LayoutTwoColumn); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second choose, got %v", err)
	}
}

func TestDraftChooseUnknownLayout(t *testing.T) {
	d := NewDraft()
	if err := d.ChooseLayout("grid"); !errors.Is(err, ErrUnknownLayout) {
		t.Fatalf("expected unknown layout, got %v", err)
	}
	if d.CurrentState() != StateEmpty || len(d.Sections) != 0 {
		t.Fatalf("draft changed on failed choose: %+v", d)
	}
}

func TestDraftRemoveAndReAddHeader(t *testing.T) {
	d := NewDraft()
	if err := d.ChooseLayout(LayoutOneColumn); err != nil {
		t.Fatalf("choose layout: %v", err)
	}
	header := findSection(t, d.Sections, SectionHeader)

	d.RemoveSection(header.ID)
	if len(d.Sections) != 7 {
		t.Fatalf("expected 7 sections got %d", len(d.Sections))
	}
	for _, s := range d.Sections {
		if s.Type == SectionHeader {
			t.Fatalf("header still present")
		}
	}

	added, err := d.AddSection(SectionHeader, ColumnFull)
	if err != nil {
		t.Fatalf("add header: %v", err)
	}
	if len(d.Sections) != 8 {
		t.Fatalf("expected 8 sections got %d", len(d.Sections))
	}
	if added.ID == header.ID {
		t.Fatalf("expected fresh id for re-added header")
	}
	if d.CurrentState() != StateEditing {
		t.Fatalf("expected editing got %s", d.CurrentState())
	}
}

func TestDraftAddSectionRespectsLimit(t *testing.T) {
	for _, desc := range Catalog() {
		t.Run(string(desc.Type), func(t *testing.T) {
			d := newTwoColumnDraft(t)
			existing := findSection(t, d.Sections, desc.Type)
			d.RemoveSection(existing.ID)

			column := desc.AllowedColumns[0]
			if _, err := d.AddSection(desc.Type, column); err != nil {
				t.Fatalf("first add: %v", err)
			}
			before := len(d.Sections)

			if d.CanAddSection(desc.Type) {
				t.Fatalf("expected CanAddSection false after first add")
			}
			if _, err := d.AddSection(desc.Type, column); !errors.Is(err, ErrLimitReached) {
				t.Fatalf("expected limit reached got %v", err)
			}
			if len(d.Sections) != before {
				t.Fatalf("sections length changed on rejected add")
			}
		})
	}
}

func TestDraftAddSectionIllegalColumn(t *testing.T) {
	d := newTwoColumnDraft(t)
	summary := findSection(t, d.Sections, SectionSummary)
	d.RemoveSection(summary.ID)
	before := d.SectionList()

	if _, err := d.AddSection(SectionSummary, ColumnLeft); !errors.Is(err, ErrIllegalColumn) {
		t.Fatalf("expected illegal column got %v", err)
	}
	if diff := cmp.Diff(before, d.Sections); diff != "" {
		t.Fatalf("draft changed on rejected add (-want +got):\n%s", diff)
	}
}

func TestDraftAddRequiresLayout(t *testing.T) {
	d := NewDraft()
	if _, err := d.AddSection(SectionSkills, ColumnFull); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state got %v", err)
	}
	if d.CanAddSection(SectionSkills) {
		t.Fatalf("empty draft should not report addable sections")
	}
}

func TestDraftRemoveMissingIsNoop(t *testing.T) {
	d := newTwoColumnDraft(t)
	before := d.SectionList()
	d.RemoveSection("missing")
	if diff := cmp.Diff(before, d.Sections); diff != "" {
		t.Fatalf("draft changed (-want +got):\n%s", diff)
	}
	if d.CurrentState() != StateLayoutChosen {
		t.Fatalf("state changed on no-op remove: %s", d.CurrentState())
	}
}

func TestDraftMoveSectionRejectsIllegalColumn(t *testing.T) {
	d := newTwoColumnDraft(t)
	before := d.SectionList()
	personal := findSection(t, d.Sections, SectionPersonalInfo)

	err := d.MoveSection(personal.ID, ColumnRight, 0)
	if !errors.Is(err, ErrIllegalColumn) {
		t.Fatalf("expected illegal column got %v", err)
	}
	if diff := cmp.Diff(before, d.Sections); diff != "" {
		t.Fatalf("draft changed on rejected move (-want +got):\n%s", diff)
	}
	if got := findSection(t, d.Sections, SectionPersonalInfo); got.Column != ColumnLeft {
		t.Fatalf("personal info moved to %s", got.Column)
	}
}

func TestDraftMoveSectionWithinColumn(t *testing.T) {
	d := newTwoColumnDraft(t)
	certs := findSection(t, d.Sections, SectionCertifications)

	if err := d.MoveSection(certs.ID, "", 0); err != nil {
		t.Fatalf("move: %v", err)
	}

	want := []Placement{
		{Type: SectionHeader, Column: ColumnFull},
		{Type: SectionCertifications, Column: ColumnLeft},
		{Type: SectionPersonalInfo, Column: ColumnLeft},
		{Type: SectionSkills, Column: ColumnLeft},
		{Type: SectionSummary, Column: ColumnRight},
		{Type: SectionExperience, Column: ColumnRight},
		{Type: SectionEducation, Column: ColumnRight},
		{Type: SectionFooter, Column: ColumnFull},
	}
	if diff := cmp.Diff(want, placementsOf(d.Sections)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestDraftMoveSectionToFullColumn(t *testing.T) {
	d := newTwoColumnDraft(t)
	skills := findSection(t, d.Sections, SectionSkills)

	if err := d.MoveSection(skills.ID, ColumnFull, 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []Placement{
		{Type: SectionHeader, Column: ColumnFull},
		{Type: SectionPersonalInfo, Column: ColumnLeft},
		{Type: SectionCertifications, Column: ColumnLeft},
		{Type: SectionSummary, Column: ColumnRight},
		{Type: SectionExperience, Column: ColumnRight},
		{Type: SectionEducation, Column: ColumnRight},
		{Type: SectionSkills, Column: ColumnFull},
		{Type: SectionFooter, Column: ColumnFull},
	}
	if diff := cmp.Diff(want, placementsOf(d.Sections)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestDraftMovePinnedSection(t *testing.T) {
	d := newTwoColumnDraft(t)
	header := findSection(t, d.Sections, SectionHeader)
	if err := d.MoveSection(header.ID, ColumnLeft, 0); !errors.Is(err, ErrIllegalColumn) {
		t.Fatalf("expected header to stay pinned, got %v", err)
	}
}

func TestDraftResetIsIdempotent(t *testing.T) {
	d := newTwoColumnDraft(t)
	d.Reset()
	once := *d
	d.Reset()
	if diff := cmp.Diff(once, *d); diff != "" {
		t.Fatalf("second reset changed draft (-want +got):\n%s", diff)
	}
	if d.CurrentState() != StateEmpty || d.SelectedLayout() != "" || len(d.Sections) != 0 {
		t.Fatalf("expected empty draft got %+v", d)
	}
}

func TestDraftAddableSections(t *testing.T) {
	d := newTwoColumnDraft(t)
	summary := findSection(t, d.Sections, SectionSummary)
	d.RemoveSection(summary.ID)

	addable := d.AddableSections()
	for typ, ok := range addable {
		if want := typ == SectionSummary; ok != want {
			t.Fatalf("addable[%s] = %v want %v", typ, ok, want)
		}
	}
}
