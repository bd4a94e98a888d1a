package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
)

func newTestRouter(reg *registry.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterReadOnlyRoutes(r, reg, nil)
	return r
}

func TestListSessionsReturnsRegistrySnapshot(t *testing.T) {
	reg := registry.New(nil, time.Minute)
	reg.CreateOrRebind(context.Background(), "123456789012345", "conn-1", "1.2.3.4:1", registry.VariantV5)

	r := newTestRouter(reg)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Sessions []SessionView `json:"sessions"`
		Count    int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 || len(body.Sessions) != 1 {
		t.Fatalf("count = %d, sessions = %d, want 1/1", body.Count, len(body.Sessions))
	}
	if body.Sessions[0].IMEI != "123456789012345" {
		t.Errorf("imei = %q", body.Sessions[0].IMEI)
	}
}

func TestGetSessionByIMEINotFound(t *testing.T) {
	reg := registry.New(nil, time.Minute)
	r := newTestRouter(reg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/sessions/000000000000000", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetSessionByIMEIFound(t *testing.T) {
	reg := registry.New(nil, time.Minute)
	reg.CreateOrRebind(context.Background(), "999999999999999", "conn-9", "9.9.9.9:9", registry.VariantGT06Standard)

	r := newTestRouter(reg)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/sessions/999999999999999", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var view SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.DeviceVariant != string(registry.VariantGT06Standard) {
		t.Errorf("variant = %q", view.DeviceVariant)
	}
}
