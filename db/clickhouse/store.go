// Package clickhouse provides a ClickHouse-backed city observation store.
// Observations are ingested as immutable snapshots; exactly one snapshot
// is active and serves reads.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"urban-greenery/decision/climate"
	gerrors "urban-greenery/pkg/errors"
)

// Snapshot is one ingested version of the city dataset.
type Snapshot struct {
	ID        uuid.UUID `ch:"id"`
	Source    string    `ch:"source"`
	Hash      string    `ch:"hash"`
	RowCount  uint32    `ch:"row_count"`
	FetchedAt time.Time `ch:"fetched_at"`
	IsActive  bool      `ch:"is_active"`
	CreatedAt time.Time `ch:"created_at"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "greenery",
		Username: "default",
	}
}

// Addr is the native protocol address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Store implements citydata.Store using ClickHouse
type Store struct {
	conn   driver.Conn
	cfg    *Config
	logger *zap.Logger
}

// NewStore opens a connection. The connection is lazy; use Ping to check it.
func NewStore(cfg *Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	logger.Info("clickhouse store opened", zap.String("addr", cfg.Addr()), zap.String("database", cfg.Database))
	return &Store{conn: conn, cfg: cfg, logger: logger}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Schema creates the snapshot and observation tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS city_snapshots (
		id UUID,
		source String,
		hash String,
		row_count UInt32,
		fetched_at DateTime,
		is_active UInt8,
		created_at DateTime,
		_version UInt64 DEFAULT 1,
		_deleted UInt8 DEFAULT 0
	) ENGINE = ReplacingMergeTree(_version)
	ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS city_observations (
		snapshot_id UUID,
		position UInt32,
		city String,
		lat Float64,
		lon Float64,
		temperature Nullable(Float64),
		humidity Nullable(Float64),
		rainfall Nullable(Float64),
		green_cover Nullable(Float64),
		created_at DateTime
	) ENGINE = MergeTree
	ORDER BY (snapshot_id, position)`,
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// SNAPSHOT OPERATIONS
// =============================================================================

const snapshotColumns = `id, source, hash, row_count, fetched_at, is_active, created_at`

// CreateSnapshot inserts an inactive snapshot.
func (s *Store) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	query := `INSERT INTO city_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	return s.conn.Exec(ctx, query,
		snap.ID,
		snap.Source,
		snap.Hash,
		snap.RowCount,
		snap.FetchedAt,
		boolToUInt8(snap.IsActive),
		time.Now().UTC(),
	)
}

func scanSnapshot(row driver.Row) (*Snapshot, error) {
	var snap Snapshot
	var isActive uint8
	err := row.Scan(&snap.ID, &snap.Source, &snap.Hash, &snap.RowCount, &snap.FetchedAt, &isActive, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.IsActive = isActive == 1
	return &snap, nil
}

// GetSnapshot retrieves a snapshot by ID
func (s *Store) GetSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM city_snapshots FINAL WHERE id = ? AND _deleted = 0`
	snap, err := scanSnapshot(s.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// GetActiveSnapshot returns the serving snapshot, or nil when none is active.
func (s *Store) GetActiveSnapshot(ctx context.Context) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM city_snapshots FINAL
		WHERE is_active = 1 AND _deleted = 0
		ORDER BY created_at DESC
		LIMIT 1`
	snap, err := scanSnapshot(s.conn.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("failed to get active snapshot: %w", err)
	}
	return snap, nil
}

// FindSnapshotByHash finds an earlier ingestion of identical content.
func (s *Store) FindSnapshotByHash(ctx context.Context, hash string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM city_snapshots FINAL
		WHERE hash = ? AND _deleted = 0
		ORDER BY created_at DESC
		LIMIT 1`
	snap, err := scanSnapshot(s.conn.QueryRow(ctx, query, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}
	return snap, nil
}

// ActivateSnapshot marks id active and every other snapshot inactive.
func (s *Store) ActivateSnapshot(ctx context.Context, id uuid.UUID) error {
	snap, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("snapshot not found: %s", id)
	}

	deactivateQuery := `
		INSERT INTO city_snapshots
		SELECT id, source, hash, row_count, fetched_at, 0 AS is_active, created_at,
			   _version + 1 AS _version, _deleted
		FROM city_snapshots FINAL
		WHERE is_active = 1 AND _deleted = 0 AND id != ?
	`
	if err := s.conn.Exec(ctx, deactivateQuery, id); err != nil {
		return fmt.Errorf("failed to deactivate snapshots: %w", err)
	}

	activateQuery := `
		INSERT INTO city_snapshots
		SELECT id, source, hash, row_count, fetched_at, 1 AS is_active, created_at,
			   _version + 1 AS _version, _deleted
		FROM city_snapshots FINAL
		WHERE id = ?
	`
	if err := s.conn.Exec(ctx, activateQuery, id); err != nil {
		return fmt.Errorf("failed to activate snapshot: %w", err)
	}
	s.logger.Info("city snapshot activated", zap.String("snapshot_id", id.String()), zap.Uint32("rows", snap.RowCount))
	return nil
}

// =============================================================================
// OBSERVATION OPERATIONS
// =============================================================================

// BulkInsertObservations appends records to a snapshot starting at offset.
func (s *Store) BulkInsertObservations(ctx context.Context, snapshotID uuid.UUID, offset int, recs []climate.CityRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO city_observations (
			snapshot_id, position, city, lat, lon,
			temperature, humidity, rainfall, green_cover, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for i, r := range recs {
		if err := batch.Append(
			snapshotID,
			uint32(offset+i),
			r.City,
			r.Lat,
			r.Lon,
			nullable(r, climate.FieldTemperature),
			nullable(r, climate.FieldHumidity),
			nullable(r, climate.FieldRainfall),
			nullable(r, climate.FieldGreenCover),
			now,
		); err != nil {
			return fmt.Errorf("failed to append %s: %w", r.City, err)
		}
	}
	return batch.Send()
}

// CountObservations returns the number of rows stored for a snapshot.
func (s *Store) CountObservations(ctx context.Context, snapshotID uuid.UUID) (int, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM city_observations WHERE snapshot_id = ?`, snapshotID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return int(count), nil
}

const observationColumns = `city, lat, lon, temperature, humidity, rainfall, green_cover`

type observationRow struct {
	City        string
	Lat, Lon    float64
	Temperature *float64
	Humidity    *float64
	Rainfall    *float64
	GreenCover  *float64
}

func (o observationRow) record() climate.CityRecord {
	rec := climate.CityRecord{City: o.City, Lat: o.Lat, Lon: o.Lon}
	for f, v := range map[climate.Field]*float64{
		climate.FieldTemperature: o.Temperature,
		climate.FieldHumidity:    o.Humidity,
		climate.FieldRainfall:    o.Rainfall,
		climate.FieldGreenCover:  o.GreenCover,
	} {
		if v != nil {
			rec = rec.With(f, *v)
		}
	}
	return rec
}

func (s *Store) activeID(ctx context.Context) (uuid.UUID, error) {
	snap, err := s.GetActiveSnapshot(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if snap == nil {
		return uuid.Nil, fmt.Errorf("no active city snapshot")
	}
	return snap.ID, nil
}

// List returns the active snapshot's records in ingestion order.
func (s *Store) List(ctx context.Context) ([]climate.CityRecord, error) {
	id, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, `SELECT `+observationColumns+` FROM city_observations
		WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	defer rows.Close()

	var out []climate.CityRecord
	for rows.Next() {
		var o observationRow
		if err := rows.Scan(&o.City, &o.Lat, &o.Lon, &o.Temperature, &o.Humidity, &o.Rainfall, &o.GreenCover); err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		out = append(out, o.record())
	}
	return out, rows.Err()
}

// Get returns one city from the active snapshot, matched case-insensitively.
func (s *Store) Get(ctx context.Context, city string) (climate.CityRecord, error) {
	id, err := s.activeID(ctx)
	if err != nil {
		return climate.CityRecord{}, err
	}
	row := s.conn.QueryRow(ctx, `SELECT `+observationColumns+` FROM city_observations
		WHERE snapshot_id = ? AND lower(city) = ?
		ORDER BY position
		LIMIT 1`, id, strings.ToLower(strings.TrimSpace(city)))

	var o observationRow
	err = row.Scan(&o.City, &o.Lat, &o.Lon, &o.Temperature, &o.Humidity, &o.Rainfall, &o.GreenCover)
	if errors.Is(err, sql.ErrNoRows) {
		return climate.CityRecord{}, gerrors.NewUnknownCityError(city)
	}
	if err != nil {
		return climate.CityRecord{}, fmt.Errorf("failed to get city: %w", err)
	}
	return o.record(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// HashRecords fingerprints a dataset so re-ingesting identical content
// can be skipped.
func HashRecords(recs []climate.CityRecord) string {
	h := sha256.New()
	for _, r := range recs {
		fmt.Fprintf(h, "%s|%g|%g", r.City, r.Lat, r.Lon)
		for _, f := range []climate.Field{climate.FieldTemperature, climate.FieldHumidity, climate.FieldRainfall, climate.FieldGreenCover} {
			if r.Has(f) {
				fmt.Fprintf(h, "|%g", r.Value(f))
			} else {
				h.Write([]byte("|-"))
			}
		}
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func nullable(r climate.CityRecord, f climate.Field) *float64 {
	if !r.Has(f) {
		return nil
	}
	v := r.Value(f)
	return &v
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
