package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"craftcv/internal/database"
	"craftcv/internal/designer"
	"craftcv/internal/store"
)

type designerFixture struct {
	engine    *gin.Engine
	org       *database.Organization
	sessions  *store.RedisEditorStore
	templates *store.TemplateStore
	orgs      *store.OrganizationStore
}

func newDesignerFixture(t *testing.T, wrap func(*designerFixture, designer.Store) designer.Store) *designerFixture {
	t.Helper()
	return newDesignerFixtureWithLock(t, 30*time.Second, wrap)
}

func newDesignerFixtureWithLock(t *testing.T, lockTTL time.Duration, wrap func(*designerFixture, designer.Store) designer.Store) *designerFixture {
	t.Helper()
	db := newTestDB(t)
	_, client := newTestRedis(t)
	org := seedOrganization(t, db)

	f := &designerFixture{
		org:       org,
		sessions:  store.NewRedisEditorStore(client, time.Hour, lockTTL),
		templates: store.NewTemplateStore(db),
		orgs:      store.NewOrganizationStore(db),
	}
	var backing designer.Store = f.templates
	if wrap != nil {
		backing = wrap(f, backing)
	}
	h := NewDesignerHandler(f.sessions, designer.NewGateway(backing, nil), f.orgs, newFakeStorage(), nil)

	r := newScopedEngine(org)
	r.GET("/designer", h.GetSession)
	r.DELETE("/designer", h.Reset)
	r.GET("/designer/catalog", h.GetCatalog)
	r.POST("/designer/layout", h.ChooseLayout)
	r.POST("/designer/sections", h.AddSection)
	r.DELETE("/designer/sections/:sectionID", h.RemoveSection)
	r.POST("/designer/sections/:sectionID/move", h.MoveSection)
	r.POST("/designer/drop", h.Drop)
	r.POST("/designer/uploaded-template", h.UseUploadedTemplate)
	r.POST("/designer/save", h.Save)
	f.engine = r
	return f
}

type draftEnvelope struct {
	Draft   designerView     `json:"draft"`
	Section designer.Section `json:"section"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func sectionIDOf(t *testing.T, v designerView, st designer.SectionType) string {
	t.Helper()
	for _, s := range v.Sections {
		if s.Type == st {
			return s.ID
		}
	}
	t.Fatalf("section %s not found in %+v", st, v.Sections)
	return ""
}

func TestDesignerFlowSavesTemplateAndStartsFreshDraft(t *testing.T) {
	f := newDesignerFixture(t, nil)

	var view designerView
	w := doJSON(t, f.engine, http.MethodGet, "/designer", nil)
	decodeBody(t, w, &view)
	if view.State != designer.StateEmpty || len(view.Sections) != 0 {
		t.Fatalf("expected empty draft got %+v", view)
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "2-column"})
	if w.Code != http.StatusOK {
		t.Fatalf("choose layout: %d %s", w.Code, w.Body.String())
	}
	var env draftEnvelope
	decodeBody(t, w, &env)
	if env.Draft.State != designer.StateLayoutChosen || len(env.Draft.Sections) != 8 {
		t.Fatalf("unexpected draft after layout %+v", env.Draft)
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/sections", gin.H{"type": "footer"})
	var eb errorBody
	decodeBody(t, w, &eb)
	if w.Code != http.StatusUnprocessableEntity || eb.Code != "limit_reached" {
		t.Fatalf("expected limit_reached got %d %s", w.Code, w.Body.String())
	}

	certID := sectionIDOf(t, env.Draft, designer.SectionCertifications)
	w = doJSON(t, f.engine, http.MethodDelete, "/designer/sections/"+certID, nil)
	env = draftEnvelope{}
	decodeBody(t, w, &env)
	if !env.Draft.Addable[designer.SectionCertifications] {
		t.Fatalf("expected certifications to be addable after removal")
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/sections", gin.H{"type": "certifications"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add section: %d %s", w.Code, w.Body.String())
	}
	env = draftEnvelope{}
	decodeBody(t, w, &env)
	if env.Section.Column != designer.ColumnLeft || env.Draft.State != designer.StateEditing {
		t.Fatalf("unexpected added section %+v state %s", env.Section, env.Draft.State)
	}

	summaryID := sectionIDOf(t, env.Draft, designer.SectionSummary)
	w = doJSON(t, f.engine, http.MethodPost, "/designer/sections/"+summaryID+"/move", gin.H{"column": "left", "index": 0})
	eb = errorBody{}
	decodeBody(t, w, &eb)
	if w.Code != http.StatusUnprocessableEntity || eb.Code != "illegal_column" {
		t.Fatalf("expected illegal_column got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "  "})
	eb = errorBody{}
	decodeBody(t, w, &eb)
	if w.Code != http.StatusUnprocessableEntity || eb.Code != "name_required" {
		t.Fatalf("expected name_required got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "Corporate"})
	if w.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	var tpl designer.Template
	decodeBody(t, w, &tpl)
	if !tpl.IsDefault || tpl.Layout != designer.LayoutTwoColumn || len(tpl.Sections) != 8 {
		t.Fatalf("unexpected saved template %+v", tpl)
	}

	view = designerView{}
	decodeBody(t, doJSON(t, f.engine, http.MethodGet, "/designer", nil), &view)
	if view.State != designer.StateEmpty || view.Generation != 1 {
		t.Fatalf("expected fresh draft after save got %+v", view)
	}

	list, err := f.templates.List(context.Background(), f.org.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one stored template got %d (%v)", len(list), err)
	}
}

func TestDesignerSaveRejectsConcurrentSave(t *testing.T) {
	f := newDesignerFixture(t, nil)
	doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "1-column"})

	_, ok, err := f.sessions.AcquireSave(context.Background(), f.org.UserID)
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}

	w := doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "Second"})
	var eb errorBody
	decodeBody(t, w, &eb)
	if w.Code != http.StatusConflict || eb.Code != "save_in_progress" {
		t.Fatalf("expected 409 save_in_progress got %d %s", w.Code, w.Body.String())
	}
}

type failingTemplateStore struct {
	designer.Store
}

func (failingTemplateStore) Create(context.Context, designer.Template) (designer.Template, error) {
	return designer.Template{}, errors.New("connection refused")
}

func TestDesignerSaveFailureKeepsDraft(t *testing.T) {
	f := newDesignerFixture(t, func(_ *designerFixture, s designer.Store) designer.Store {
		return failingTemplateStore{s}
	})
	doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "1-column"})

	w := doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "Retry me"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d %s", w.Code, w.Body.String())
	}

	var view designerView
	decodeBody(t, doJSON(t, f.engine, http.MethodGet, "/designer", nil), &view)
	if view.State != designer.StateLayoutChosen || len(view.Sections) != 8 {
		t.Fatalf("expected draft preserved got %+v", view)
	}

	// 锁已释放，可以立即重试。
	_, ok, err := f.sessions.AcquireSave(context.Background(), f.org.UserID)
	if err != nil || !ok {
		t.Fatalf("expected save lock released, got %v %v", ok, err)
	}
}

// blockingTemplateStore 的 Create 一直等到调用方的 context 结束。
type blockingTemplateStore struct {
	designer.Store
}

func (blockingTemplateStore) Create(ctx context.Context, _ designer.Template) (designer.Template, error) {
	<-ctx.Done()
	return designer.Template{}, ctx.Err()
}

func TestDesignerSaveBoundedByLockLease(t *testing.T) {
	f := newDesignerFixtureWithLock(t, 500*time.Millisecond, func(_ *designerFixture, s designer.Store) designer.Store {
		return blockingTemplateStore{s}
	})
	doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "1-column"})

	start := time.Now()
	w := doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "Slow"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d %s", w.Code, w.Body.String())
	}
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Fatalf("save outlived its lock: %s", elapsed)
	}

	var view designerView
	decodeBody(t, doJSON(t, f.engine, http.MethodGet, "/designer", nil), &view)
	if view.State != designer.StateLayoutChosen {
		t.Fatalf("expected draft preserved got %+v", view)
	}
	if _, ok, err := f.sessions.AcquireSave(context.Background(), f.org.UserID); err != nil || !ok {
		t.Fatalf("expected save lock released, got %v %v", ok, err)
	}
}

// resettingStore 在保存期间模拟另一个请求重置会话并重新选择布局。
type resettingStore struct {
	designer.Store
	sessions *store.RedisEditorStore
	userID   uint
}

func (s resettingStore) Create(ctx context.Context, tpl designer.Template) (designer.Template, error) {
	e, err := s.sessions.Load(ctx, s.userID)
	if err != nil {
		return designer.Template{}, err
	}
	e.Reset()
	if err := e.ChooseLayout(designer.LayoutOneColumn); err != nil {
		return designer.Template{}, err
	}
	if err := s.sessions.Store(ctx, s.userID, e); err != nil {
		return designer.Template{}, err
	}
	return s.Store.Create(ctx, tpl)
}

func TestDesignerStaleSaveResultIsNotApplied(t *testing.T) {
	f := newDesignerFixture(t, func(f *designerFixture, s designer.Store) designer.Store {
		return resettingStore{Store: s, sessions: f.sessions, userID: f.org.UserID}
	})
	doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "2-column"})

	w := doJSON(t, f.engine, http.MethodPost, "/designer/save", gin.H{"name": "Stale"})
	if w.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}

	var view designerView
	decodeBody(t, doJSON(t, f.engine, http.MethodGet, "/designer", nil), &view)
	if view.Layout != designer.LayoutOneColumn || view.State != designer.StateLayoutChosen || view.Generation != 1 {
		t.Fatalf("expected concurrent draft to survive, got %+v", view)
	}
}

func TestDesignerUploadedTemplateBlocksLayout(t *testing.T) {
	f := newDesignerFixture(t, nil)

	w := doJSON(t, f.engine, http.MethodPost, "/designer/uploaded-template", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without uploaded template got %d", w.Code)
	}

	if err := f.orgs.Update(context.Background(), f.org.ID, map[string]any{"cv_template_object_key": "org-assets/1/cv-template.pdf"}); err != nil {
		t.Fatalf("update org: %v", err)
	}
	w = doJSON(t, f.engine, http.MethodPost, "/designer/uploaded-template", nil)
	var env draftEnvelope
	decodeBody(t, w, &env)
	if w.Code != http.StatusOK || !env.Draft.UploadedTemplate || env.Draft.UploadedPreviewURL == "" {
		t.Fatalf("expected uploaded template active got %d %+v", w.Code, env.Draft)
	}

	w = doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "1-column"})
	var eb errorBody
	decodeBody(t, w, &eb)
	if eb.Code != "uploaded_template_active" {
		t.Fatalf("expected uploaded_template_active got %d %s", w.Code, w.Body.String())
	}

	env = draftEnvelope{}
	decodeBody(t, doJSON(t, f.engine, http.MethodDelete, "/designer", nil), &env)
	if env.Draft.UploadedTemplate || env.Draft.State != designer.StateEmpty {
		t.Fatalf("expected reset to designer, got %+v", env.Draft)
	}
}

func TestDesignerDropRequiresTarget(t *testing.T) {
	f := newDesignerFixture(t, nil)
	w := doJSON(t, f.engine, http.MethodPost, "/designer/drop", gin.H{"dragged_id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestDesignerDropReordersWithinColumn(t *testing.T) {
	f := newDesignerFixture(t, nil)
	var env draftEnvelope
	decodeBody(t, doJSON(t, f.engine, http.MethodPost, "/designer/layout", gin.H{"layout": "2-column"}), &env)

	eduID := sectionIDOf(t, env.Draft, designer.SectionEducation)
	summaryID := sectionIDOf(t, env.Draft, designer.SectionSummary)
	w := doJSON(t, f.engine, http.MethodPost, "/designer/drop", gin.H{
		"dragged_id": eduID,
		"target":     gin.H{"section_id": summaryID},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("drop: %d %s", w.Code, w.Body.String())
	}
	env = draftEnvelope{}
	decodeBody(t, w, &env)

	var right []designer.SectionType
	for _, s := range env.Draft.Sections {
		if s.Column == designer.ColumnRight {
			right = append(right, s.Type)
		}
	}
	want := []designer.SectionType{designer.SectionEducation, designer.SectionSummary, designer.SectionExperience}
	if len(right) != len(want) {
		t.Fatalf("unexpected right column %v", right)
	}
	for i := range want {
		if right[i] != want[i] {
			t.Fatalf("unexpected right column %v", right)
		}
	}
}
