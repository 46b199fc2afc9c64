// Package models holds the GORM models of the SQL report store.
package models

import "time"

// ReportHeader records that the header row of a logical report sheet has
// been written. One row per sheet name.
type ReportHeader struct {
	Sheet     string `gorm:"primaryKey;size:128"`
	Columns   string `gorm:"size:512;not null"` // header cells joined with "|"
	CreatedAt time.Time
}

// ReportRow is one persisted intake record. Columns mirror the report header
// order: Supervisor, Client, Department, Item, Quantity, Timestamp.
type ReportRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Sheet      string `gorm:"size:128;not null;index"`
	Supervisor string `gorm:"size:256"`
	Client     string `gorm:"size:256"`
	Department string `gorm:"size:256"`
	Item       string `gorm:"size:256"`
	Quantity   int
	Timestamp  string `gorm:"size:16;index"` // yyyy-MM-dd HH:mm
	CreatedAt  time.Time
}
