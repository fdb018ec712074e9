// Package api serves spark's management REST API and its MCP tools.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pewpi-infinity/spark/internal/metrics"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// CredentialVerifier checks the stored GitHub credential against a site.
type CredentialVerifier interface {
	Verify(ctx context.Context, cfg site.Config) (publish.CredentialCheck, error)
}

type Deps struct {
	Workflow  *workflow.Workflow
	Publisher *publish.Publisher
	Site      *site.Store
	Verifier  CredentialVerifier // optional; credential verify answers 501 without it
	Metrics   *metrics.Metrics
	Token     string
	Logger    *slog.Logger
}

// NewHandler returns the full router. /health and /metrics are open; every
// other route requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/search", handleSearch(deps))
		r.Get("/tokens", handleListTokens(deps))
		r.Get("/tokens/{id}", handleGetToken(deps))
		r.Post("/tokens/{id}/view", handleViewToken(deps))
		r.Post("/tokens/{id}/share", handleShareToken(deps))
		r.Post("/tokens/{id}/promote", handlePromote(deps))
		r.Post("/tokens/{id}/expand", handleExpand(deps))

		r.Get("/pages", handleListPages(deps))
		r.Post("/pages/verify", handleVerifyPending(deps))
		r.Get("/pages/{id}", handleGetPage(deps))
		r.Post("/pages/{id}/view", handleViewPage(deps))
		r.Post("/pages/{id}/share", handleSharePage(deps))
		r.Post("/pages/{id}/edit", handleEditPage(deps))
		r.Post("/pages/{id}/publish", handlePublish(deps))
		r.Post("/pages/{id}/verify", handleVerify(deps))
		r.Get("/pages/{id}/files", handleFiles(deps))
		r.Get("/export", handleExport(deps))

		r.Get("/find", handleFind(deps))
		r.Get("/leaderboard", handleLeaderboard(deps))
		r.Get("/registry", handleRegistry(deps))

		r.Get("/site", handleGetSite(deps))
		r.Patch("/site", handlePatchSite(deps))
		r.Put("/credential", handleSetCredential(deps))
		r.Post("/credential/verify", handleVerifyCredential(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if deps.Publisher != nil {
			resp["strategy"] = deps.Publisher.Active(r.Context()).Name()
			resp["pendingRechecks"] = deps.Publisher.Pending()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseBoolParam(r *http.Request, key string) (*bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// limit truncates items to n when n > 0.
func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
