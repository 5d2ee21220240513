package health

import (
	"context"
	"time"
)

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Report is the health payload.
type Report struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Storage  string `json:"storage"`
	Queue    string `json:"queue"`
}

// Service encapsulates health-related checks.
type Service struct {
	DB           Pinger
	StorageType  string
	QueueEnabled bool
	Timeout      time.Duration
}

// NewService constructs a new health service. db may be nil when the
// in-memory repositories are used.
func NewService(db Pinger, storageType string, queueEnabled bool) *Service {
	return &Service{DB: db, StorageType: storageType, QueueEnabled: queueEnabled, Timeout: 2 * time.Second}
}

// Status reports the dependencies the API is running with.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Database: "memory", Storage: s.StorageType, Queue: "disabled"}
	if s.QueueEnabled {
		report.Queue = "sqs"
	}
	if s.DB != nil {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			report.OK = false
			report.Database = "unreachable"
		} else {
			report.Database = "postgres"
		}
	}
	return report
}
