package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestReadinessHandler(t *testing.T) {
	healthy := ReadinessProbe{Name: "redis", Check: func(context.Context) error { return nil }}
	broken := ReadinessProbe{Name: "storage", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}

	var body struct {
		Ready        bool              `json:"ready"`
		Dependencies map[string]string `json:"dependencies"`
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", ReadinessHandler(time.Second, healthy))
	r.GET("/degraded", ReadinessHandler(time.Second, healthy, broken))

	w := doJSON(t, r, http.MethodGet, "/ok", nil)
	decodeBody(t, w, &body)
	if w.Code != http.StatusOK || !body.Ready {
		t.Fatalf("expected ready, got %d %s", w.Code, w.Body.String())
	}

	body.Dependencies = nil
	w = doJSON(t, r, http.MethodGet, "/degraded", nil)
	decodeBody(t, w, &body)
	if w.Code != http.StatusServiceUnavailable || body.Ready {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body.Dependencies["redis"] != "ok" || body.Dependencies["storage"] != "unavailable" {
		t.Fatalf("unexpected dependency report %v", body.Dependencies)
	}
}
