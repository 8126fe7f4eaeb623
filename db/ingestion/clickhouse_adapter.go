// Package ingestion imports city datasets into ClickHouse snapshots.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"urban-greenery/db/clickhouse"
	"urban-greenery/decision/climate"
)

// SnapshotStore is the subset of *clickhouse.Store the importer needs.
type SnapshotStore interface {
	FindSnapshotByHash(ctx context.Context, hash string) (*clickhouse.Snapshot, error)
	CreateSnapshot(ctx context.Context, snap *clickhouse.Snapshot) error
	BulkInsertObservations(ctx context.Context, snapshotID uuid.UUID, offset int, recs []climate.CityRecord) error
	CountObservations(ctx context.Context, snapshotID uuid.UUID) (int, error)
	ActivateSnapshot(ctx context.Context, id uuid.UUID) error
}

// DefaultBatchSize is the number of rows per insert batch.
const DefaultBatchSize = 1000

// ClickHouseAdapter writes datasets as new snapshots and activates them.
type ClickHouseAdapter struct {
	store     SnapshotStore
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewClickHouseAdapter creates a new ClickHouse adapter
func NewClickHouseAdapter(store SnapshotStore, logger *zap.Logger) *ClickHouseAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseAdapter{store: store, batchSize: DefaultBatchSize, logger: logger, now: time.Now}
}

// WithBatchSize overrides DefaultBatchSize.
func (a *ClickHouseAdapter) WithBatchSize(n int) *ClickHouseAdapter {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// IngestionResult tracks the result of one import.
type IngestionResult struct {
	SnapshotID   uuid.UUID     `json:"snapshot_id"`
	Source       string        `json:"source"`
	Hash         string        `json:"hash"`
	Rows         int           `json:"rows"`
	Unchanged    bool          `json:"unchanged"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error,omitempty"`
}

// Ingest stores recs as a new active snapshot. Content identical to an
// earlier snapshot re-activates that snapshot instead of duplicating it.
func (a *ClickHouseAdapter) Ingest(ctx context.Context, source string, recs []climate.CityRecord) (*IngestionResult, error) {
	start := a.now()
	hash := clickhouse.HashRecords(recs)
	result := &IngestionResult{Source: source, Hash: hash, Rows: len(recs)}
	log := a.logger.With(zap.String("source", source), zap.Int("rows", len(recs)))

	existing, err := a.store.FindSnapshotByHash(ctx, hash)
	if err != nil {
		return a.fail(result, "failed to look up snapshot", err)
	}
	if existing != nil {
		result.SnapshotID = existing.ID
		result.Unchanged = true
		if !existing.IsActive {
			if err := a.store.ActivateSnapshot(ctx, existing.ID); err != nil {
				return a.fail(result, "failed to activate snapshot", err)
			}
		}
		log.Info("dataset unchanged, reusing snapshot", zap.String("snapshot_id", existing.ID.String()))
		result.Success = true
		result.Duration = a.now().Sub(start)
		return result, nil
	}

	snap := &clickhouse.Snapshot{
		ID:        uuid.New(),
		Source:    source,
		Hash:      hash,
		RowCount:  uint32(len(recs)),
		FetchedAt: start.UTC(),
		IsActive:  false, // activated after all rows land
	}
	if err := a.store.CreateSnapshot(ctx, snap); err != nil {
		return a.fail(result, "failed to create snapshot", err)
	}
	result.SnapshotID = snap.ID

	for i := 0; i < len(recs); i += a.batchSize {
		end := min(i+a.batchSize, len(recs))
		if err := a.store.BulkInsertObservations(ctx, snap.ID, i, recs[i:end]); err != nil {
			return a.fail(result, fmt.Sprintf("failed to insert batch %d", i/a.batchSize), err)
		}
	}

	if err := a.VerifyIngestion(ctx, snap.ID, len(recs)); err != nil {
		return a.fail(result, "verification failed", err)
	}
	if err := a.store.ActivateSnapshot(ctx, snap.ID); err != nil {
		return a.fail(result, "failed to activate snapshot", err)
	}

	result.Success = true
	result.Duration = a.now().Sub(start)
	log.Info("city dataset ingested", zap.String("snapshot_id", snap.ID.String()), zap.Duration("duration", result.Duration))
	return result, nil
}

// VerifyIngestion checks the snapshot holds the expected number of rows.
func (a *ClickHouseAdapter) VerifyIngestion(ctx context.Context, snapshotID uuid.UUID, want int) error {
	got, err := a.store.CountObservations(ctx, snapshotID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("snapshot %s has %d rows, expected %d", snapshotID, got, want)
	}
	return nil
}

func (a *ClickHouseAdapter) fail(result *IngestionResult, msg string, err error) (*IngestionResult, error) {
	result.ErrorMessage = fmt.Sprintf("%s: %v", msg, err)
	a.logger.Error(msg, zap.String("source", result.Source), zap.Error(err))
	return result, fmt.Errorf("%s: %w", msg, err)
}
