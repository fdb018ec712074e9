package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pewpi-infinity/spark/internal/analytics"
	"github.com/pewpi-infinity/spark/internal/search"
	"github.com/pewpi-infinity/spark/internal/site"
)

func parseFilters(r *http.Request) (search.Filters, error) {
	q := r.URL.Query()
	typ, err := search.ParseType(q.Get("type"))
	if err != nil {
		return search.Filters{}, err
	}
	f := search.Filters{Type: typ}
	if f.Promoted, err = parseBoolParam(r, "promoted"); err != nil {
		return search.Filters{}, err
	}
	for key, dst := range map[string]*int64{"from": &f.From, "to": &f.To} {
		s := q.Get(key)
		if s == "" {
			continue
		}
		if *dst, err = strconv.ParseInt(s, 10, 64); err != nil {
			return search.Filters{}, err
		}
	}
	return f, nil
}

func handleFind(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilters(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid filter: %v", err)
			return
		}
		ctx := r.Context()
		items := search.Search(deps.Workflow.Tokens(ctx), deps.Workflow.Pages(ctx), r.URL.Query().Get("q"), f)
		items = limit(items, parseIntParam(r, "limit", 0, 0))

		if track, _ := parseBoolParam(r, "track"); track != nil && *track {
			var ids []string
			for _, it := range items {
				if it.Kind == search.KindToken {
					ids = append(ids, it.ID())
				}
			}
			if err := deps.Workflow.TrackSearchHits(ctx, ids); err != nil {
				deps.Logger.Warn("failed to record search hits", "error", err)
			}
		}
		if items == nil {
			items = []search.Item{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleLeaderboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		board := analytics.Leaderboard(deps.Workflow.Tokens(ctx), deps.Workflow.Pages(ctx))
		writeJSON(w, http.StatusOK, limit(board, parseIntParam(r, "limit", 10, 100)))
	}
}

func handleRegistry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Publisher.Registry(r.Context()))
	}
}

func handleGetSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Site.Get(r.Context()))
	}
}

func handlePatchSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch site.Patch
		if !decodeBody(w, r, &patch) {
			return
		}
		cfg, err := deps.Site.Update(r.Context(), patch)
		if err != nil {
			writeError(w, err, "failed to update site")
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

type CredentialRequest struct {
	Token string `json:"token"`
}

func handleSetCredential(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CredentialRequest
		if !decodeBody(w, r, &req) {
			return
		}
		token := strings.TrimSpace(req.Token)
		if err := deps.Site.SetCredential(r.Context(), token); err != nil {
			writeError(w, err, "failed to store credential")
			return
		}
		status := "stored"
		if token == "" {
			status = "cleared"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func handleVerifyCredential(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Verifier == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "credential verification not available")
			return
		}
		check, err := deps.Verifier.Verify(r.Context(), deps.Site.Get(r.Context()))
		if err != nil {
			writeError(w, err, "credential check failed")
			return
		}
		writeJSON(w, http.StatusOK, check)
	}
}
