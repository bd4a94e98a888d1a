// Package api exposes the gateway's read-only admin HTTP surface
// (spec §5 supplemented "Admin read surface"): snapshots of the
// session registry for operators, with no mutation endpoints.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
)

// SessionView is the JSON shape returned for one device session. It
// carries every registry.DeviceSession field and renders the
// variant/timestamps in a stable wire form.
type SessionView struct {
	ID                      string            `json:"id"`
	IMEI                    string            `json:"imei"`
	ConnectionID            string            `json:"connection_id"`
	RemoteAddress           string            `json:"remote_address"`
	CreatedAt               string            `json:"created_at"`
	LastActivityAt          string            `json:"last_activity_at"`
	Authenticated           bool              `json:"authenticated"`
	DeviceVariant           string            `json:"device_variant"`
	HasReceivedLocation     bool              `json:"has_received_location"`
	HasReceivedStatusAdvice bool              `json:"has_received_status_advice"`
	Attributes              map[string]string `json:"attributes,omitempty"`
}

func toView(s *registry.DeviceSession) SessionView {
	return SessionView{
		ID:                      s.ID,
		IMEI:                    s.IMEI,
		ConnectionID:            s.ConnectionID,
		RemoteAddress:           s.RemoteAddress,
		CreatedAt:               s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastActivityAt:          s.LastActivityAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Authenticated:           s.Authenticated,
		DeviceVariant:           string(s.DeviceVariant),
		HasReceivedLocation:     s.HasReceivedLocation,
		HasReceivedStatusAdvice: s.HasReceivedStatusAdvice,
		Attributes:              s.Attributes,
	}
}

// ReadOnlyHandler serves registry snapshots over HTTP.
type ReadOnlyHandler struct {
	reg *registry.Registry
	log *zap.Logger
}

// NewReadOnlyHandler constructs a ReadOnlyHandler bound to reg.
func NewReadOnlyHandler(reg *registry.Registry, log *zap.Logger) *ReadOnlyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReadOnlyHandler{reg: reg, log: log}
}

// ListSessions returns the currently registered sessions (an
// in-memory snapshot — it does not include records that live in the
// persistent store but this process has not yet touched).
//
// @Summary List device sessions
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /admin/sessions [get]
func (h *ReadOnlyHandler) ListSessions(c *gin.Context) {
	sessions := h.reg.ListAll()
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "count": len(views)})
}

// GetSessionByIMEI looks up a single session's detail by IMEI.
//
// @Summary Get a device session by IMEI
// @Tags admin
// @Produce json
// @Param imei path string true "device IMEI"
// @Success 200 {object} SessionView
// @Failure 404 {object} map[string]interface{}
// @Router /admin/sessions/{imei} [get]
func (h *ReadOnlyHandler) GetSessionByIMEI(c *gin.Context) {
	imei := c.Param("imei")
	sess, ok := h.reg.GetByIMEI(c.Request.Context(), imei)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for imei"})
		return
	}
	c.JSON(http.StatusOK, toView(sess))
}
