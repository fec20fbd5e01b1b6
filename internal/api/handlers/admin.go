package handlers

import (
	"net/http"
	"strconv"

	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/reaper"
)

type AdminHandler struct {
	audit  *audit.Service
	reaper *reaper.Reaper
}

func NewAdminHandler(auditSvc *audit.Service, r *reaper.Reaper) *AdminHandler {
	return &AdminHandler{audit: auditSvc, reaper: r}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}

	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

// Sweep triggers one reaper pass on demand, outside the cron schedule.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.reaper.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}
