// Package report defines the destination of completed intake records: a
// tabular sink with a fixed six-column header.
package report

import (
	"context"
	"fmt"

	"github.com/zulandar/tally/internal/intake"
)

// Header is the first row of every report table, in column order.
var Header = []string{"Supervisor", "Client", "Department", "Item", "Quantity", "Timestamp"}

// Sink persists completed records. Implementations must make EnsureHeader
// idempotent and must not append a record before the header is in place.
type Sink interface {
	// EnsureHeader writes the header row if the table does not have one.
	EnsureHeader(ctx context.Context) error
	// Append writes one record as a new row.
	Append(ctx context.Context, rec intake.Record) error
}

// Row converts a record into cell values in Header order.
func Row(rec intake.Record) []interface{} {
	return []interface{}{
		rec.Supervisor,
		rec.Client,
		rec.Department,
		rec.Item,
		rec.Quantity,
		rec.Timestamp.UTC().Format(intake.TimestampLayout),
	}
}

// HeaderRow returns Header as cell values.
func HeaderRow() []interface{} {
	row := make([]interface{}, len(Header))
	for i, h := range Header {
		row[i] = h
	}
	return row
}

// HeaderRange is the A1 range holding the header of sheet.
func HeaderRange(sheet string) string {
	return fmt.Sprintf("'%s'!A1:F1", sheet)
}

// AppendRange is the A1 range rows are appended to.
func AppendRange(sheet string) string {
	return fmt.Sprintf("'%s'!A:F", sheet)
}
