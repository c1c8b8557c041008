package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/farmledger/internal/config"
)

// Row is one spreadsheet data row keyed by its normalized header.
type Row struct {
	// Number is the 1-based sheet row, used to reference the row in logs.
	Number int
	Values map[string]string
}

// Get returns the trimmed cell under the first matching header, or "".
func (r Row) Get(headers ...string) string {
	for _, header := range headers {
		if v, ok := r.Values[NormalizeHeader(header)]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Repository defines the operations supported by the Google Sheets adapter.
type Repository interface {
	ReadTable(ctx context.Context, tab string) ([]Row, error)
	AppendRow(ctx context.Context, tab string, values []interface{}) error
}

// GoogleSheetRepository implements the Repository interface using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// ReadTable reads a whole tab whose first row holds the column headers.
// Empty rows are skipped.
func (r *GoogleSheetRepository) ReadTable(ctx context.Context, tab string) ([]Row, error) {
	if tab == "" {
		return nil, fmt.Errorf("tab must not be empty")
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, tab).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read tab %s: %w", tab, err)
	}

	rows := ParseTable(resp.Values)
	r.logger.Debug("tab read", zap.String("tab", tab), zap.Int("rows", len(rows)))
	return rows, nil
}

// AppendRow appends the provided values to the tab.
func (r *GoogleSheetRepository) AppendRow(ctx context.Context, tab string, values []interface{}) error {
	if tab == "" {
		return fmt.Errorf("tab must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, tab, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into %s: %w", tab, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("tab", tab))
	return nil
}

// ParseTable turns raw cell values into header-keyed rows.
func ParseTable(values [][]interface{}) []Row {
	if len(values) < 2 {
		return nil
	}

	headers := make([]string, len(values[0]))
	for i, cell := range values[0] {
		headers[i] = NormalizeHeader(fmt.Sprint(cell))
	}

	rows := make([]Row, 0, len(values)-1)
	for i, raw := range values[1:] {
		row := Row{Number: i + 2, Values: make(map[string]string, len(headers))}
		empty := true
		for col, cell := range raw {
			if col >= len(headers) || headers[col] == "" {
				continue
			}
			value := strings.TrimSpace(fmt.Sprint(cell))
			if value != "" {
				empty = false
			}
			row.Values[headers[col]] = value
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}

// NormalizeHeader lowercases a header and joins its words with underscores.
func NormalizeHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), "_")
}
