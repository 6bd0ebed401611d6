package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"craftcv/internal/database"
	"craftcv/internal/designer"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTemplate(id string, orgID uint) designer.Template {
	return designer.Template{
		ID:             id,
		OrganizationID: orgID,
		Name:           "Template " + id,
		Layout:         designer.LayoutTwoColumn,
		Sections: []designer.Section{
			{ID: "h", Type: designer.SectionHeader, Title: "Header", Column: designer.ColumnFull},
			{ID: "sk", Type: designer.SectionSkills, Title: "Skills", Column: designer.ColumnLeft},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func defaultsOf(t *testing.T, s *TemplateStore, orgID uint) []string {
	t.Helper()
	list, err := s.List(context.Background(), orgID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, tpl := range list {
		if tpl.IsDefault {
			ids = append(ids, tpl.ID)
		}
	}
	return ids
}

func TestTemplateStoreCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore(newTestDB(t))

	want := newTemplate("t1", 1)
	if _, err := s.Create(ctx, want); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, 1, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(want.Sections, got.Sections); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
	if got.Layout != designer.LayoutTwoColumn || !got.IsDefault {
		t.Fatalf("unexpected template %+v", got)
	}

	if _, err := s.Get(ctx, 2, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for other org got %v", err)
	}
}

func TestTemplateStoreCreateDefaultsFirstPerOrganization(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore(newTestDB(t))

	b := newTemplate("b", 1)
	b.IsDefault = true
	for _, tpl := range []designer.Template{newTemplate("a", 1), b, newTemplate("other", 2)} {
		if _, err := s.Create(ctx, tpl); err != nil {
			t.Fatalf("create %s: %v", tpl.ID, err)
		}
	}

	if diff := cmp.Diff([]string{"a"}, defaultsOf(t, s, 1)); diff != "" {
		t.Fatalf("org 1 defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"other"}, defaultsOf(t, s, 2)); diff != "" {
		t.Fatalf("org 2 defaults (-want +got):\n%s", diff)
	}
}

func TestTemplateStoreSetDefaultKeepsSingleDefault(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore(newTestDB(t))

	for _, tpl := range []designer.Template{
		newTemplate("a", 1),
		newTemplate("b", 1),
		newTemplate("c", 1),
	} {
		if _, err := s.Create(ctx, tpl); err != nil {
			t.Fatalf("create %s: %v", tpl.ID, err)
		}
	}

	for _, id := range []string{"c", "b", "b"} {
		if err := s.SetDefault(ctx, 1, id); err != nil {
			t.Fatalf("set default %s: %v", id, err)
		}
		if diff := cmp.Diff([]string{id}, defaultsOf(t, s, 1)); diff != "" {
			t.Fatalf("defaults after %s (-want +got):\n%s", id, diff)
		}
	}

	if err := s.SetDefault(ctx, 1, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, defaultsOf(t, s, 1)); diff != "" {
		t.Fatalf("failed set default changed state (-want +got):\n%s", diff)
	}
}

func TestTemplateStoreDeleteDefaultDoesNotPromote(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore(newTestDB(t))

	if _, err := s.Create(ctx, newTemplate("a", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, newTemplate("b", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Delete(ctx, 1, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := defaultsOf(t, s, 1); len(got) != 0 {
		t.Fatalf("expected no default after removal got %v", got)
	}
	if _, err := s.Default(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no default template got %v", err)
	}
	if err := s.Delete(ctx, 1, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete got %v", err)
	}
}

func TestTemplateStoreBacksGateway(t *testing.T) {
	ctx := context.Background()
	gw := designer.NewGateway(NewTemplateStore(newTestDB(t)), nil)

	first, err := gw.Save(ctx, 5, designer.LayoutOneColumn, nil, "First")
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	second, err := gw.Save(ctx, 5, designer.LayoutOneColumn, nil, "Second")
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if !first.IsDefault || second.IsDefault {
		t.Fatalf("expected only first template default: %v %v", first.IsDefault, second.IsDefault)
	}

	if err := gw.SetDefault(ctx, 5, second.ID); err != nil {
		t.Fatalf("set default: %v", err)
	}
	list, err := gw.List(ctx, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defaults := 0
	for _, tpl := range list {
		if tpl.IsDefault {
			defaults++
			if tpl.ID != second.ID {
				t.Fatalf("unexpected default %s", tpl.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default got %d", defaults)
	}

	var perr *designer.PersistenceError
	if err := gw.Remove(ctx, 5, "missing"); !errors.As(err, &perr) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected persistence error wrapping not found got %v", err)
	}
}
