package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

func handleListPages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := model.PublishStatus(r.URL.Query().Get("status"))

		pages := []model.BuildPage{}
		for _, p := range deps.Workflow.Pages(r.Context()) {
			if status == "" || p.State.Status() == status {
				pages = append(pages, p)
			}
		}
		writeJSON(w, http.StatusOK, limit(pages, parseIntParam(r, "limit", 0, 0)))
	}
}

func handleGetPage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := deps.Workflow.Page(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to get page")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleViewPage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := deps.Workflow.ViewPage(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to record view")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleSharePage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := deps.Workflow.SharePage(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to record share")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleEditPage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var edit workflow.PageEdit
		if !decodeBody(w, r, &edit) {
			return
		}
		page, err := deps.Workflow.EditPage(r.Context(), chi.URLParam(r, "id"), edit)
		if err != nil {
			writeError(w, err, "failed to edit page")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handlePublish(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Publisher.Publish(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "publish failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleVerify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := deps.Publisher.Verify(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "verify failed")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleVerifyPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pages, err := deps.Publisher.VerifyPending(r.Context())
		if err != nil {
			writeError(w, err, "verify failed")
			return
		}
		writeJSON(w, http.StatusOK, pages)
	}
}

func handleFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Publisher.Files(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "failed to get files")
			return
		}
		writeJSON(w, http.StatusOK, files)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Publisher.ExportAll(r.Context())
		if err != nil {
			writeError(w, err, "export failed")
			return
		}
		writeJSON(w, http.StatusOK, files)
	}
}
