package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/ingress"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

var errBadID = errors.New("invalid employee id")

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadID, chi.URLParam(r, "id"))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"employees": s.store.Len(),
		"liveViews": s.views.Live(),
	})
}

func (s *Server) handleListEmployees(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, slices.Collect(s.store.List()))
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	e, ok := s.store.Get(id)
	if !ok {
		respondError(w, r, fmt.Errorf("get %d: %w", id, core.ErrNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDepartments(w http.ResponseWriter, _ *http.Request) {
	depts := s.store.DistinctDepartments()
	if depts == nil {
		depts = []string{}
	}
	writeJSON(w, http.StatusOK, depts)
}

// handleEditCells applies a cell edit as if raised by the view named in the
// ?view= query parameter. The body holds the edited fields keyed by field
// name; the id always comes from the URL.
func (s *Server) handleEditCells(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	row := map[string]any{}
	if err := decodeJSON(w, r, &row); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	row[view.FieldID] = id

	if _, ok := s.store.Get(id); !ok {
		respondError(w, r, fmt.Errorf("edit %d: %w", id, core.ErrNotFound), http.StatusNotFound)
		return
	}

	viewID := r.URL.Query().Get("view")
	if viewID == "" {
		viewID = view.InlineEditTable
	}
	changed := s.ingress.OnCellEdited(r.Context(), viewID, row)

	e, ok := s.store.Get(id)
	if !ok {
		respondError(w, r, fmt.Errorf("edit %d: %w", id, core.ErrNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "employee": e})
}

func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if !s.ingress.OnDeleteRequested(r.Context(), id) {
		respondError(w, r, fmt.Errorf("delete %d: %w", id, core.ErrNotFound), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDialogState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ingress.Dialog().State())
}

func (s *Server) handleDialogNew(w http.ResponseWriter, _ *http.Request) {
	s.ingress.Dialog().OpenNew()
	writeJSON(w, http.StatusOK, s.ingress.Dialog().State())
}

func (s *Server) handleDialogEdit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if _, ok := s.ingress.OnEditRequested(r.Context(), id); !ok {
		respondError(w, r, fmt.Errorf("edit %d: %w", id, core.ErrNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.ingress.Dialog().State())
}

// dialogUpdate carries the dialog form fields. Absent fields are unchanged.
type dialogUpdate struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
	JoinDate   *string `json:"joinDate"`
}

func (s *Server) handleDialogUpdate(w http.ResponseWriter, r *http.Request) {
	var req dialogUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var patch core.Patch
	patch.Name = req.Name
	patch.Department = req.Department
	if req.JoinDate != nil {
		d, ok := core.ParseDate(*req.JoinDate)
		if !ok {
			respondError(w, r, fmt.Errorf("invalid date %q", *req.JoinDate), http.StatusBadRequest)
			return
		}
		patch.JoinDate = &d
	}

	if _, err := s.ingress.Dialog().Update(patch.Apply); err != nil {
		respondError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.ingress.Dialog().State())
}

func (s *Server) handleDialogSave(w http.ResponseWriter, r *http.Request) {
	saved, err := s.ingress.Dialog().Save(r.Context())
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, core.ErrNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDialogCancel(w http.ResponseWriter, _ *http.Request) {
	s.ingress.Dialog().Cancel()
	writeJSON(w, http.StatusOK, ingress.DialogState{Mode: ingress.Closed})
}
