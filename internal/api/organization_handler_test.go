package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"craftcv/internal/database"
	"craftcv/internal/store"
)

func newOrganizationFixture(t *testing.T, prepare func(*database.Organization)) (*gin.Engine, *store.OrganizationStore, *fakeStorage, *database.Organization) {
	t.Helper()
	db := newTestDB(t)
	org := seedOrganization(t, db)
	if prepare != nil {
		prepare(org)
		if err := db.Save(org).Error; err != nil {
			t.Fatalf("save org: %v", err)
		}
	}
	orgs := store.NewOrganizationStore(db)
	objects := newFakeStorage()
	h := NewOrganizationHandler(orgs, objects, fakeScanner{}, nil, 1<<20)

	r := newScopedEngine(org)
	r.GET("/organization", h.GetOrganization)
	r.PATCH("/organization", h.UpdateOrganization)
	r.POST("/organization/logo", h.UploadLogo)
	r.POST("/organization/cv-template", h.UploadCVTemplate)
	r.DELETE("/organization/cv-template", h.DeleteCVTemplate)
	return r, orgs, objects, org
}

func TestGetOrganizationReturnsDefaults(t *testing.T) {
	r, _, _, _ := newOrganizationFixture(t, nil)
	var resp organizationResponse
	decodeBody(t, doJSON(t, r, http.MethodGet, "/organization", nil), &resp)
	if resp.Name != "Acme" || resp.PrimaryColor != database.DefaultPrimaryColor || resp.Font != database.DefaultFont || resp.HasCVTemplate {
		t.Fatalf("unexpected organization %+v", resp)
	}
}

func TestUpdateOrganizationValidatesColors(t *testing.T) {
	r, orgs, _, org := newOrganizationFixture(t, nil)

	w := doJSON(t, r, http.MethodPatch, "/organization", gin.H{"primary_color": "blue"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPatch, "/organization", gin.H{"primary_color": "#FF8800", "name": " Acme Ltd "})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", w.Code, w.Body.String())
	}
	var resp organizationResponse
	decodeBody(t, w, &resp)
	if resp.PrimaryColor != "#ff8800" || resp.Name != "Acme Ltd" || resp.SecondaryColor != database.DefaultSecondaryColor {
		t.Fatalf("unexpected organization %+v", resp)
	}

	stored, err := orgs.ByID(context.Background(), org.ID)
	if err != nil || stored.PrimaryColor != "#ff8800" {
		t.Fatalf("expected stored color, got %+v (%v)", stored, err)
	}
}

func TestUploadLogoReplacesPreviousObject(t *testing.T) {
	r, _, objects, _ := newOrganizationFixture(t, func(o *database.Organization) {
		o.LogoObjectKey = "org-assets/1/logo-old.png"
	})

	w := doUpload(t, r, "/organization/logo", "logo.gif", "image/gif", []byte("GIF89a"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 got %d", w.Code)
	}

	w = doUpload(t, r, "/organization/logo", "logo.png", "image/png", []byte("png-bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", w.Code, w.Body.String())
	}
	var resp organizationResponse
	decodeBody(t, w, &resp)
	if !strings.Contains(resp.LogoURL, "/logo-") || !strings.HasSuffix(resp.LogoURL, ".png") {
		t.Fatalf("unexpected logo url %q", resp.LogoURL)
	}
	if len(objects.uploaded) != 1 {
		t.Fatalf("expected one stored object got %d", len(objects.uploaded))
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "org-assets/1/logo-old.png" {
		t.Fatalf("expected old logo deleted, got %v", objects.deleted)
	}
}

func TestCVTemplateUploadAndDelete(t *testing.T) {
	r, orgs, objects, org := newOrganizationFixture(t, nil)

	if w := doJSON(t, r, http.MethodDelete, "/organization/cv-template", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without template got %d", w.Code)
	}

	w := doUpload(t, r, "/organization/cv-template", "template.exe", "application/octet-stream", []byte("MZ"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 got %d", w.Code)
	}

	w = doUpload(t, r, "/organization/cv-template", "Brand.HTML", "application/octet-stream", []byte("<html></html>"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", w.Code, w.Body.String())
	}
	var resp organizationResponse
	decodeBody(t, w, &resp)
	if !resp.HasCVTemplate || resp.CVTemplateFileURL == "" {
		t.Fatalf("expected uploaded template in response %+v", resp)
	}

	stored, err := orgs.ByID(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("load org: %v", err)
	}
	if objects.types[stored.CVTemplateObjectKey] != "text/html" {
		t.Fatalf("expected html content type, got %q", objects.types[stored.CVTemplateObjectKey])
	}

	// 上下文中的组织快照需要带上新的对象键，删除才会生效。
	org.CVTemplateObjectKey = stored.CVTemplateObjectKey
	w = doJSON(t, r, http.MethodDelete, "/organization/cv-template", nil)
	decodeBody(t, w, &resp)
	if w.Code != http.StatusOK || resp.HasCVTemplate {
		t.Fatalf("expected template removed got %d %+v", w.Code, resp)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != stored.CVTemplateObjectKey {
		t.Fatalf("expected object deleted, got %v", objects.deleted)
	}
}
