package ingest

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"adaptiveclean/internal/dataset"
)

// SheetReader fetches a range of cell values.
type SheetReader interface {
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
}

// SheetsClient reads ranges through the Google Sheets API.
type SheetsClient struct {
	svc *sheets.Service
}

// NewSheetsClient creates a client with explicit client options.
func NewSheetsClient(ctx context.Context, opts ...option.ClientOption) (*SheetsClient, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsClient{svc: svc}, nil
}

// NewSheetsClientFromFile authenticates with a service account key file.
func NewSheetsClientFromFile(ctx context.Context, credentialsFile string) (*SheetsClient, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	return NewSheetsClient(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope))
}

// ReadRange implements SheetReader.
func (c *SheetsClient) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet range %s: %w", readRange, err)
	}
	return resp.Values, nil
}

// ImportSheet reads a range whose first row is the header.
func ImportSheet(ctx context.Context, r SheetReader, spreadsheetID, readRange string) (*dataset.Dataset, error) {
	values, err := r.ReadRange(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				rows[i][j] = fmt.Sprint(cell)
			}
		}
	}
	return FromStrings(rows[0], rows[1:])
}
