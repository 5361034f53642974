package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/exporter"
	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/middleware"
	"adaptiveclean/internal/services"
)

// multipartMemory is how much of an upload is kept in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// DatasetHandler handles dataset uploads and lookups.
type DatasetHandler struct {
	datasets  *services.DatasetService
	cleaning  *services.CleaningService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	maxUpload int64
	logger    *slog.Logger
}

// NewDatasetHandler creates a dataset handler. maxUpload bounds multipart
// bodies; zero means DefaultMaxBodySize.
func NewDatasetHandler(datasets *services.DatasetService, cleaning *services.CleaningService, v *middleware.Validator, errs *apierrors.ErrorHandler, maxUpload int64, logger *slog.Logger) *DatasetHandler {
	if maxUpload <= 0 {
		maxUpload = middleware.DefaultMaxBodySize
	}
	return &DatasetHandler{
		datasets:  datasets,
		cleaning:  cleaning,
		validator: v,
		errors:    errs,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("handler", "datasets")),
	}
}

// Upload handles POST /api/datasets. The file goes in the "file" form field;
// "sheet", "table" and "delimiter" tune the loaders.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errors.HandleError(w, r, err)
			return
		}
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errors.HandleError(w, r, apierrors.ErrValidation("file", "a file upload is required"))
		return
	}
	defer file.Close()

	opts, err := uploadOptions(r)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	sum, err := h.datasets.Upload(r.Context(), middleware.ScopeFrom(r.Context()), header.Filename, file, opts)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sum)
}

func uploadOptions(r *http.Request) (ingest.Options, error) {
	opts := ingest.Options{Sheet: r.FormValue("sheet")}
	if v := r.FormValue("table"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, apierrors.ErrValidation("table", "must be a non-negative integer")
		}
		opts.Table = n
	}
	if v := r.FormValue("delimiter"); v != "" {
		c, size := utf8.DecodeRuneInString(v)
		if size != len(v) || c == utf8.RuneError {
			return opts, apierrors.ErrValidation("delimiter", "must be a single character")
		}
		opts.Comma = c
	}
	return opts, nil
}

// ImportSheet handles POST /api/datasets/import/sheets
func (h *DatasetHandler) ImportSheet(w http.ResponseWriter, r *http.Request) {
	var req services.SheetImport
	if err := h.validator.Decode(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	sum, err := h.datasets.ImportSheet(r.Context(), middleware.ScopeFrom(r.Context()), req)
	if errors.Is(err, services.ErrSheetsUnavailable) {
		h.errors.HandleError(w, r, apierrors.New(http.StatusServiceUnavailable, "SHEETS_UNAVAILABLE", err.Error()))
		return
	}
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sum)
}

// Get handles GET /api/datasets/{id}
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	sum, err := h.datasets.Get(r.Context(), middleware.ScopeFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, sum)
}

// Profile handles GET /api/datasets/{id}/profile
func (h *DatasetHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.datasets.Profile(r.Context(), middleware.ScopeFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, p)
}

// Variants handles GET /api/datasets/{id}/variants
func (h *DatasetHandler) Variants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	variants, err := h.cleaning.Variants(r.Context(), middleware.ScopeFrom(r.Context()), id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"dataset_id": id,
		"variants":   variants,
		"count":      len(variants),
	})
}

// ExportVariant handles GET /api/datasets/{id}/variants/{name}/csv. Adding
// ?bom=true prefixes a UTF-8 BOM for spreadsheet tools.
func (h *DatasetHandler) ExportVariant(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "name")
	scope := middleware.ScopeFrom(r.Context())

	// Resolve first so a missing variant still gets a problem response.
	variants, err := h.cleaning.Variants(r.Context(), scope, id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	found := false
	for _, v := range variants {
		found = found || v.AlgorithmName == name
	}
	if !found {
		h.errors.HandleError(w, r, apierrors.NotFoundError(fmt.Sprintf("variant %s", name)))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	opts := exporter.WriteOptions{BOMPrefix: r.URL.Query().Get("bom") == "true"}
	if err := h.cleaning.ExportVariant(r.Context(), scope, id, name, w, opts); err != nil {
		// Headers are gone; all that is left is to log.
		h.logger.ErrorContext(r.Context(), "variant_export_failed",
			slog.String("dataset_id", id),
			slog.String("variant", name),
			slog.String("error", err.Error()))
	}
}
