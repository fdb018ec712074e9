package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

type SearchRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

type SearchResponse struct {
	Token  model.Token        `json:"token"`
	Result model.SearchResult `json:"result"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}

		tok, sr, err := deps.Workflow.SearchWith(r.Context(), generator.Request{
			Query:   req.Query,
			Context: req.Context,
			Mode:    req.Mode,
		})
		if err != nil {
			writeError(w, err, "search failed")
			return
		}
		writeJSON(w, http.StatusCreated, SearchResponse{Token: tok, Result: sr})
	}
}

func handleListTokens(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		promoted, err := parseBoolParam(r, "promoted")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid promoted: %v", err)
			return
		}

		tokens := []model.Token{}
		for _, t := range deps.Workflow.Tokens(r.Context()) {
			if promoted == nil || t.Promoted == *promoted {
				tokens = append(tokens, t)
			}
		}
		writeJSON(w, http.StatusOK, limit(tokens, parseIntParam(r, "limit", 0, 0)))
	}
}

func handleGetToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := deps.Workflow.Token(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to get token")
			return
		}
		writeJSON(w, http.StatusOK, tok)
	}
}

func handleViewToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := deps.Workflow.ViewToken(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to record view")
			return
		}
		writeJSON(w, http.StatusOK, tok)
	}
}

func handleShareToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := deps.Workflow.ShareToken(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to record share")
			return
		}
		writeJSON(w, http.StatusOK, tok)
	}
}

// PromoteRequest selects a structure and optionally adjusts its preset.
// Features replaces the preset entirely; Toggle then flips named features.
type PromoteRequest struct {
	Structure string          `json:"structure"`
	Title     string          `json:"title,omitempty"`
	Features  *model.Features `json:"features,omitempty"`
	Toggle    []string        `json:"toggle,omitempty"`
}

func handlePromote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PromoteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		structure, err := model.ParseStructure(req.Structure)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		p, err := deps.Workflow.Promote(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to promote token")
			return
		}
		finalize(w, r, deps, p, structure, req)
	}
}

// ExpandRequest generates content for a follow-up query and promotes it into
// another page of the same token.
type ExpandRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Mode    string `json:"mode,omitempty"`
	PromoteRequest
}

func handleExpand(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExpandRequest
		if !decodeBody(w, r, &req) {
			return
		}
		structure, err := model.ParseStructure(req.Structure)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		p, err := deps.Workflow.ExpandWith(r.Context(), chi.URLParam(r, "id"), generator.Request{
			Query:   req.Query,
			Context: req.Context,
			Mode:    req.Mode,
		})
		if err != nil {
			writeError(w, err, "failed to expand token")
			return
		}
		finalize(w, r, deps, p, structure, req.PromoteRequest)
	}
}

func finalize(w http.ResponseWriter, r *http.Request, deps Deps, p *workflow.Promotion, structure model.Structure, req PromoteRequest) {
	p.SelectStructure(structure, req.Title)
	if req.Features != nil {
		p.SetFeatures(*req.Features)
	}
	for _, name := range req.Toggle {
		if err := p.Toggle(name); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
	}

	page, err := deps.Workflow.FinalizePage(r.Context(), p)
	if err != nil {
		writeError(w, err, "failed to create page")
		return
	}
	writeJSON(w, http.StatusCreated, page)
}
