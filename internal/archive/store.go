// Package archive persists reconciliation summaries and ledger
// snapshots to PostgreSQL for later inspection. Archival is optional;
// the engine runs fully without it.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/schema"
)

var ErrClosed = errors.New("archive store is closed")

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option defines the PostgreSQL connection. ConnString wins over the
// individual fields when set.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// DSN assembles the connection string.
func (opt Option) DSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// SummaryRecord is one archived reconciliation summary. Payload holds
// the full summary JSON; the indexed columns exist for querying.
type SummaryRecord struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"index;size:64"`
	SessionID   string    `gorm:"size:64"`
	StrategyID  string    `gorm:"size:64"`
	Timestamp   time.Time `gorm:"index"`
	MaxSeverity string    `gorm:"size:16"`
	TotalDiffs  int
	HasCritical bool
	HasFail     bool
	Payload     []byte
	CreatedAt   time.Time
}

// SnapshotRecord is one archived ledger snapshot.
type SnapshotRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"index;size:64"`
	Timestamp time.Time `gorm:"index"`
	Payload   []byte
	CreatedAt time.Time
}

// Store wraps the archive database.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the archive tables.
func Open(opt Option) (*Store, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(opt.DSN()), config)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&SummaryRecord{}, &SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveSummary archives one reconciliation summary.
func (s *Store) SaveSummary(summary schema.ReconSummary) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	record := SummaryRecord{
		RunID:       summary.RunID,
		SessionID:   summary.SessionID,
		StrategyID:  summary.StrategyID,
		Timestamp:   summary.Timestamp,
		MaxSeverity: string(summary.MaxSeverity),
		TotalDiffs:  summary.TotalDiffs,
		HasCritical: summary.HasCritical,
		HasFail:     summary.HasFail,
		Payload:     payload,
	}
	return s.db.Create(&record).Error
}

// SaveSnapshot archives one ledger snapshot payload.
func (s *Store) SaveSnapshot(runID string, at time.Time, payload []byte) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	record := SnapshotRecord{RunID: runID, Timestamp: at, Payload: payload}
	return s.db.Create(&record).Error
}

// Summaries returns the archived summaries for one run, oldest first.
func (s *Store) Summaries(runID string) ([]SummaryRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var records []SummaryRecord
	err := s.db.Where("run_id = ?", runID).Order("id asc").Find(&records).Error
	return records, err
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}
