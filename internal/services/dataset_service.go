package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"adaptiveclean/internal/dataset"
	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/storage"
)

// DatasetStore stores and loads source datasets.
type DatasetStore interface {
	storage.DatasetProvider
	SaveDataset(ctx context.Context, rec *storage.DatasetRecord) error
}

// DatasetService handles source datasets.
type DatasetService struct {
	store  DatasetStore
	sheets ingest.SheetReader
	logger *slog.Logger
	now    func() time.Time
}

// NewDatasetService creates the service. sheets may be nil, in which case
// ImportSheet returns ErrSheetsUnavailable.
func NewDatasetService(store DatasetStore, sheets ingest.SheetReader, logger *slog.Logger) *DatasetService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &DatasetService{
		store:  store,
		sheets: sheets,
		logger: infrastructure.WithComponent(logger, "dataset_service"),
		now:    time.Now,
	}
}

// DatasetSummary is what callers see of a stored dataset.
type DatasetSummary struct {
	storage.DatasetRecord
	Format  string   `json:"format,omitempty"`
	Size    int      `json:"size,omitempty"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

func summarize(rec *storage.DatasetRecord) *DatasetSummary {
	s := &DatasetSummary{DatasetRecord: *rec, Columns: []string{}}
	if rec.Data != nil {
		s.Rows = rec.Data.Len()
		s.Columns = rec.Data.Schema().Names()
	}
	return s
}

// Upload parses r by the extension of name and stores it owned by the
// caller.
func (s *DatasetService) Upload(ctx context.Context, scope storage.Scope, name string, r io.Reader, opts ingest.Options) (*DatasetSummary, error) {
	up, err := ingest.Load(name, r, opts)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, apierrors.NewParsingError("could not parse "+name, err).WithContext("file", name)
	}
	rec := &storage.DatasetRecord{
		Name:      up.Name,
		Scope:     scope.Owner,
		Checksum:  up.Checksum,
		Data:      up.Data,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveDataset(ctx, rec); err != nil {
		return nil, apierrors.NewStorageError("save dataset", err)
	}

	s.logger.InfoContext(ctx, "dataset_uploaded",
		slog.String("dataset_id", rec.ID),
		slog.String("name", rec.Name),
		slog.String("format", string(up.Format)),
		slog.Int("size", up.Size),
		slog.Int("rows", up.Data.Len()),
		slog.Int("columns", up.Data.Width()))

	infrastructure.AddSpanEvent(ctx, "dataset.stored", map[string]interface{}{
		"dataset.id": rec.ID,
		"format":     string(up.Format),
		"rows":       up.Data.Len(),
	})

	sum := summarize(rec)
	sum.Format = string(up.Format)
	sum.Size = up.Size
	return sum, nil
}

// SheetImport selects a Google Sheets range to import.
type SheetImport struct {
	SpreadsheetID string `json:"spreadsheet_id" validate:"required"`
	Range         string `json:"range" validate:"required"`
	Name          string `json:"name,omitempty" validate:"omitempty,max=255"`
}

// ImportSheet reads a sheet range and stores it owned by the caller. The
// checksum covers the encoded rows since there is no raw file.
func (s *DatasetService) ImportSheet(ctx context.Context, scope storage.Scope, req SheetImport) (*DatasetSummary, error) {
	if s.sheets == nil {
		return nil, ErrSheetsUnavailable
	}
	d, err := ingest.ImportSheet(ctx, remoteSheet{s.sheets}, req.SpreadsheetID, req.Range)
	if err != nil {
		return nil, err
	}
	schemaJSON, rowsJSON, err := storage.EncodeDataset(d)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = req.Range
	}
	rec := &storage.DatasetRecord{
		Name:      name,
		Scope:     scope.Owner,
		Checksum:  ingest.Checksum(bytes.Join([][]byte{schemaJSON, rowsJSON}, nil)),
		Data:      d,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveDataset(ctx, rec); err != nil {
		return nil, apierrors.NewStorageError("save dataset", err)
	}

	s.logger.InfoContext(ctx, "sheet_imported",
		slog.String("dataset_id", rec.ID),
		slog.String("spreadsheet_id", req.SpreadsheetID),
		slog.String("range", req.Range),
		slog.Int("rows", d.Len()))

	sum := summarize(rec)
	sum.Format = "sheets"
	return sum, nil
}

// Get returns a dataset summary the caller may read.
func (s *DatasetService) Get(ctx context.Context, scope storage.Scope, id string) (*DatasetSummary, error) {
	rec, err := s.store.GetDataset(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	return summarize(rec), nil
}

// Profile computes per-column statistics of a dataset.
func (s *DatasetService) Profile(ctx context.Context, scope storage.Scope, id string) (*dataset.Profile, error) {
	rec, err := s.store.GetDataset(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	return dataset.ProfileDataset(ctx, rec.Data)
}

// remoteSheet marks read failures as upstream errors so callers see 502.
type remoteSheet struct {
	ingest.SheetReader
}

func (r remoteSheet) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	values, err := r.SheetReader.ReadRange(ctx, spreadsheetID, readRange)
	if err != nil && ctx.Err() == nil {
		return nil, apierrors.NewNetworkError("google sheets read failed", err).
			WithContext("spreadsheet_id", spreadsheetID).
			WithContext("range", readRange)
	}
	return values, err
}
