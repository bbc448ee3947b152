package api

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/model"
)

// listAudit serves GET /api/audit, optionally narrowed by ?action=.
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	log := s.svc.Audit()

	var (
		entries []model.AuditEntry
		err     error
	)
	if raw := r.URL.Query().Get("action"); raw != "" && !strings.EqualFold(raw, "all") {
		action := model.AuditAction(strings.ToUpper(raw))
		if !action.Valid() {
			writeError(w, r, invalid(eris.Errorf("unknown action %q", raw)))
			return
		}
		entries, err = log.ListByAction(r.Context(), action)
	} else {
		entries, err = log.List(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) auditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := audit.Statistics(r.Context(), s.svc.Audit())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) clearAudit(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Audit().Clear(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
