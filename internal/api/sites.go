package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleListSites returns the cached state of every known site.
func (s *Server) handleListSites(w http.ResponseWriter, _ *http.Request) {
	sites := s.store.Sites()
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": sites,
		"count": len(sites),
	})
}

// handleGetSite returns one site's cached state.
func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	siteID := strings.TrimSpace(chi.URLParam(r, "siteID"))
	if siteID == "" {
		writeBadRequest(w, "site id is required")
		return
	}

	state, ok := s.store.Site(siteID)
	if !ok {
		writeNotFound(w, "site not found: "+siteID)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleListPending returns the outstanding correlation entries, optionally
// narrowed to one site with ?site_id=.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")

	pending := s.tracker.Pending()
	if siteID != "" {
		kept := pending[:0]
		for _, p := range pending {
			if p.SiteID == siteID {
				kept = append(kept, p)
			}
		}
		pending = kept
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending":     pending,
		"count":       len(pending),
		"scan_window": s.tracker.ScanWindow().String(),
	})
}
