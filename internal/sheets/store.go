// Package sheets stores submission rows in Google Sheets.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

const (
	valueInputRaw     = "RAW"
	insertDataRows    = "INSERT_ROWS"
	defaultCredsScope = sheets.SpreadsheetsScope
)

// Store reads, clears and appends rows through the Sheets v4 API
type Store struct {
	srv *sheets.Service
}

// NewStore creates a store authenticated with a service account key file
func NewStore(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(defaultCredsScope),
	}, opts...)

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Store{srv: srv}, nil
}

// NewStoreWithService wraps an existing service
func NewStoreWithService(srv *sheets.Service) *Store {
	return &Store{srv: srv}
}

// ReadRows returns the rows in rng. An empty sheet yields no rows.
func (s *Store) ReadRows(ctx context.Context, sheetID, rng string) ([]models.SheetRow, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}

	rows := make([]models.SheetRow, 0, len(resp.Values))
	for _, values := range resp.Values {
		if len(values) == 0 {
			continue
		}
		rows = append(rows, models.SheetRowFromValues(values))
	}
	return rows, nil
}

// ClearRows clears the values in rng, keeping formatting
func (s *Store) ClearRows(ctx context.Context, sheetID, rng string) error {
	_, err := s.srv.Spreadsheets.Values.Clear(sheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", rng, err)
	}
	return nil
}

// AppendRows inserts rows after the table found at rng
func (s *Store) AppendRows(ctx context.Context, sheetID, rng string, rows []models.SheetRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Values())
	}

	_, err := s.srv.Spreadsheets.Values.Append(sheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertDataRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append %d rows to %s: %w", len(rows), rng, err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a service account key file.
// Users must share their sheet with this address.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return "", fmt.Errorf("failed to parse credentials: %w", err)
	}
	if key.ClientEmail == "" {
		return "", fmt.Errorf("credentials file has no client_email")
	}
	return key.ClientEmail, nil
}
