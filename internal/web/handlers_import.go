package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/download"
	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/logging"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope. Files just over the limit reach the pipeline and get
// a FILE001 report; bodies beyond the slack are cut off here.
const multipartOverhead = 1 << 20

var errNoFile = errors.New("no file provided")

// handleImport imports an uploaded CSV (form field "file"). With
// ?dryRun=true the file is checked without touching the store. The report
// is returned with 200 even when rows failed; only a refused import slot or
// an unreadable request is an HTTP error.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.importer.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(min(maxSize, 32<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %w", core.ErrTooLarge, err)
		}
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errNoFile, err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	// Import and Check both close file.
	if dry, _ := strconv.ParseBool(r.URL.Query().Get("dryRun")); dry {
		writeJSON(w, http.StatusOK, s.importer.Check(ctx, header.Filename, file))
		return
	}

	report, err := s.importer.Import(ctx, header.Filename, file)
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	if report.SuccessCount > 0 {
		res := s.views.Broadcast(ctx)
		if len(res.Failed) > 0 {
			logging.FromContext(ctx).Warn("import broadcast incomplete",
				"import_id", report.ID, "failed_views", len(res.Failed))
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport downloads every employee as CSV and, when configured, keeps
// a copy in the export archive.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := importer.ExportBytes(s.store.List())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.deliver(w, r, importer.ExportFileName, payload)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	s.deliver(w, r, importer.TemplateFileName, importer.TemplateBytes())
}

// deliver sends payload to the browser and the archive. The response is
// already written when the archive runs, so archive failures are logged
// only.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, fileName string, payload []byte) {
	sink := download.Tee{download.HTTP{W: w}}
	if s.archive != nil {
		sink = append(sink, s.archive)
	}
	if err := sink.Download(r.Context(), fileName, importer.CSVMimeType, payload); err != nil {
		logging.FromContext(r.Context()).Error("download delivery failed", "file", fileName, "error", err)
	}
}
