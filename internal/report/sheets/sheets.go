// Package sheets implements report.Sink on top of the Google Sheets API.
package sheets

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/report"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultSheet is the tab name used when none is configured.
const DefaultSheet = "Report"

// valuesClient abstracts the spreadsheets.values calls we use, enabling test
// fakes.
type valuesClient interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

// realValues wraps *sheetsapi.Service to implement valuesClient.
type realValues struct {
	svc *sheetsapi.Service
}

func (r *realValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (r *realValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := r.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (r *realValues) Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := r.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// Sink appends report rows to one tab of a spreadsheet.
type Sink struct {
	values        valuesClient
	spreadsheetID string
	sheet         string

	mu          sync.Mutex
	headerReady bool
}

// SinkOpts holds parameters for creating a Sink.
type SinkOpts struct {
	SpreadsheetID   string
	Sheet           string // defaults to DefaultSheet
	CredentialsFile string // service account JSON key
	// For testing: inject a fake values client instead of the real API.
	Values valuesClient
}

// New creates a Sink. Without an injected client it loads service account
// credentials from CredentialsFile.
func New(ctx context.Context, opts SinkOpts) (*Sink, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	sheet := opts.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	values := opts.Values
	if values == nil {
		if opts.CredentialsFile == "" {
			return nil, fmt.Errorf("sheets: credentials file is required")
		}
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets: parse credentials: %w", err)
		}
		svc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("sheets: create service: %w", err)
		}
		values = &realValues{svc: svc}
	}

	return &Sink{
		values:        values,
		spreadsheetID: opts.SpreadsheetID,
		sheet:         sheet,
	}, nil
}

// EnsureHeader reads the header range and writes the header row when the
// range is empty. Once the header is known to exist further calls return
// without contacting the API.
func (s *Sink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureHeaderLocked(ctx)
}

func (s *Sink) ensureHeaderLocked(ctx context.Context) error {
	if s.headerReady {
		return nil
	}
	rng := report.HeaderRange(s.sheet)
	cur, err := s.values.Get(ctx, s.spreadsheetID, rng)
	if err != nil {
		return fmt.Errorf("sheets: read header: %w", err)
	}
	if len(cur) > 0 {
		s.headerReady = true
		return nil
	}
	if err := s.values.Update(ctx, s.spreadsheetID, rng, [][]interface{}{report.HeaderRow()}); err != nil {
		return fmt.Errorf("sheets: write header: %w", err)
	}
	s.headerReady = true
	log.Printf("sheets: header created on %q", s.sheet)
	return nil
}

// Append writes rec as a new row, ensuring the header first if needed.
func (s *Sink) Append(ctx context.Context, rec intake.Record) error {
	s.mu.Lock()
	err := s.ensureHeaderLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.values.Append(ctx, s.spreadsheetID, report.AppendRange(s.sheet), [][]interface{}{report.Row(rec)}); err != nil {
		return fmt.Errorf("sheets: append row: %w", err)
	}
	return nil
}
