package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/models"
	"github.com/zulandar/tally/internal/report"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// headerSeparator joins header cells in ReportHeader.Columns.
const headerSeparator = "|"

// TableSink appends report rows to the report_rows table under a logical
// sheet name.
type TableSink struct {
	db    *gorm.DB
	sheet string

	mu          sync.Mutex
	headerReady bool
}

// NewTableSink creates a TableSink. The tables must already be migrated.
func NewTableSink(db *gorm.DB, sheet string) (*TableSink, error) {
	if db == nil {
		return nil, fmt.Errorf("db: table sink: db is required")
	}
	if sheet == "" {
		return nil, fmt.Errorf("db: table sink: sheet is required")
	}
	return &TableSink{db: db, sheet: sheet}, nil
}

// EnsureHeader records the header for the sheet unless it already exists.
func (s *TableSink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureHeaderLocked(ctx)
}

func (s *TableSink) ensureHeaderLocked(ctx context.Context) error {
	if s.headerReady {
		return nil
	}
	var existing models.ReportHeader
	err := s.db.WithContext(ctx).Where("sheet = ?", s.sheet).First(&existing).Error
	if err == nil {
		s.headerReady = true
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: read header: %w", err)
	}

	header := models.ReportHeader{
		Sheet:   s.sheet,
		Columns: strings.Join(report.Header, headerSeparator),
	}
	// DoNothing keeps a header written concurrently by another process.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&header).Error; err != nil {
		return fmt.Errorf("db: write header: %w", err)
	}
	s.headerReady = true
	log.Printf("db: header created for sheet %q", s.sheet)
	return nil
}

// Append inserts rec as a new row, ensuring the header first if needed.
func (s *TableSink) Append(ctx context.Context, rec intake.Record) error {
	s.mu.Lock()
	err := s.ensureHeaderLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	row := models.ReportRow{
		Sheet:      s.sheet,
		Supervisor: rec.Supervisor,
		Client:     rec.Client,
		Department: rec.Department,
		Item:       rec.Item,
		Quantity:   rec.Quantity,
		Timestamp:  rec.Timestamp.UTC().Format(intake.TimestampLayout),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("db: append row: %w", err)
	}
	return nil
}

// Header returns the stored header cells for the sheet, or nil when the
// header has not been written.
func (s *TableSink) Header(ctx context.Context) ([]string, error) {
	var h models.ReportHeader
	err := s.db.WithContext(ctx).Where("sheet = ?", s.sheet).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: read header: %w", err)
	}
	return strings.Split(h.Columns, headerSeparator), nil
}

// Recent returns up to limit rows of the sheet, newest first.
func (s *TableSink) Recent(ctx context.Context, limit int) ([]models.ReportRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.ReportRow
	err := s.db.WithContext(ctx).
		Where("sheet = ?", s.sheet).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("db: recent rows: %w", err)
	}
	return rows, nil
}
