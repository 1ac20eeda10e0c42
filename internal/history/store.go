package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/heartmula/mula/internal/logger"
)

// DBFileName is the history database file name within the DB directory.
const DBFileName = "mula.db"

// Store provides access to the build and run history database.
type Store struct {
	db *gorm.DB
}

// Open opens the history database at dbPath, creating the file and its
// parent directory as needed, and migrates the schema.
//
// Parameters:
//   - dbPath: Absolute path to the SQLite database file
//
// Returns:
//   - Ready-to-use store
//   - Error if the database cannot be opened or migrated
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&BuildRecord{}, &RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	logger.Debug("History database ready at %s", dbPath)
	return &Store{db: db}, nil
}

// OpenDefault opens the history database at its standard location within
// the given DB directory.
func OpenDefault(dbDir string) (*Store, error) {
	return Open(filepath.Join(dbDir, DBFileName))
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// AppendBuild records a finished build.
//
// A missing ID is generated and a zero CreatedAt is set to now, so callers
// only fill in what they know.
func (s *Store) AppendBuild(ctx context.Context, record *BuildRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}

	logger.Debug("Recorded %s build of variant %s (%s)", record.Status, record.Variant, record.ID)
	return nil
}

// RecentBuilds returns build records, newest first.
//
// Parameters:
//   - limit: Maximum number of records, 0 for no limit
//   - variant: Restrict to one variant, empty for all
func (s *Store) RecentBuilds(ctx context.Context, limit int, variant string) ([]BuildRecord, error) {
	query := s.db.WithContext(ctx).Model(&BuildRecord{}).Order("created_at DESC")
	if variant != "" {
		query = query.Where("variant = ?", variant)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []BuildRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query build history: %w", err)
	}
	return records, nil
}

// StartRun records an instance start.
//
// A missing ID is generated, a zero StartedAt is set to now and an empty
// Status defaults to running.
func (s *Store) StartRun(ctx context.Context, record *RunRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now()
	}
	if record.Status == "" {
		record.Status = RunStatusRunning
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	logger.Debug("Recorded run of %s as %s (%s)", record.ModelID, record.Alias, record.InstanceID)
	return nil
}

// FinishRun marks the open run of an instance as finished.
//
// Only run records without a stop time are touched, so restarting an
// instance under the same ID starts a fresh record instead of rewriting
// the finished one.
//
// Parameters:
//   - instanceID: The instance whose open run to close
//   - status: Final status (stopped or error)
//   - errMsg: Failure message, empty on clean stops
func (s *Store) FinishRun(ctx context.Context, instanceID, status, errMsg string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&RunRecord{}).
		Where("instance_id = ? AND stopped_at IS NULL", instanceID).
		Updates(map[string]interface{}{
			"status":     status,
			"stopped_at": now,
			"error":      errMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close run record: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logger.Debug("Closed run record for instance %s (%s)", instanceID, status)
	}
	return nil
}

// RecentRuns returns run records, newest first.
//
// Parameters:
//   - limit: Maximum number of records, 0 for no limit
//   - alias: Restrict to one alias, empty for all
func (s *Store) RecentRuns(ctx context.Context, limit int, alias string) ([]RunRecord, error) {
	query := s.db.WithContext(ctx).Model(&RunRecord{}).Order("started_at DESC")
	if alias != "" {
		query = query.Where("alias = ?", alias)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []RunRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	return records, nil
}

// Prune deletes records older than the retention window.
//
// Open run records (no stop time yet) are never pruned regardless of age:
// they may belong to an instance that is still running.
//
// Returns:
//   - Number of records deleted
//   - Error if a delete fails
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	builds := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&BuildRecord{})
	if builds.Error != nil {
		return 0, fmt.Errorf("failed to prune build history: %w", builds.Error)
	}

	runs := s.db.WithContext(ctx).
		Where("started_at < ? AND stopped_at IS NOT NULL", cutoff).
		Delete(&RunRecord{})
	if runs.Error != nil {
		return builds.RowsAffected, fmt.Errorf("failed to prune run history: %w", runs.Error)
	}

	deleted := builds.RowsAffected + runs.RowsAffected
	if deleted > 0 {
		logger.Info("Pruned %d history record(s) older than %s", deleted, olderThan)
	}
	return deleted, nil
}
