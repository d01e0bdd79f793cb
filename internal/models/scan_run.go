package models

import (
	"time"
)

type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// ScanRun records one pass over the tracked item list
type ScanRun struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	StartedAt  time.Time  `json:"started_at" gorm:"not null;index"`
	FinishedAt *time.Time `json:"finished_at"`
	Items      int        `json:"items"`
	Unreadable int        `json:"unreadable"`
	Restarts   int        `json:"restarts"`
	Resumed    bool       `json:"resumed"`
	Status     ScanStatus `json:"status" gorm:"not null;default:'running'"`
	Error      string     `json:"error,omitempty"`
}
