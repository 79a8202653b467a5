package api

import (
	"net/http"
	"strconv"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/audit"
)

// handleListAudit returns paginated command audit entries with optional filters.
//
// Query parameters:
//   - site_id: filter by site
//   - kind: scan, connect, disconnect, remove, inject
//   - outcome: dispatched, succeeded, failed, rejected, expired
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "command audit not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		SiteID:  q.Get("site_id"),
		Kind:    q.Get("kind"),
		Outcome: q.Get("outcome"),
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid "+name+": "+v)
			return
		}
		*dst = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command audit", "error", err)
		writeInternalError(w, "failed to list command audit")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
