// Package store persists spots durably in SQLite and serves the read-only
// queries the window aggregator and the monitor surface need.
//
// Writes arrive in bounded batches from the ingestion persister. Each batch is
// applied in one transaction with an idempotent upsert keyed on
// (source, natural_key), so redelivery from the best-effort feed updates the
// existing row instead of inflating counts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bandwatch/geo"
	"bandwatch/spot"
)

// Store wraps the SQLite spot database.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed, applies
// the WAL pragmas, and ensures the schema.
func Open(path string, busyTimeoutMS int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	if _, err := db.Exec(fmt.Sprintf(
		"pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=%d", busyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists spots (
		id integer primary key autoincrement,
		natural_key text not null,
		source text not null,
		band text not null,
		mode text not null,
		frequency_hz integer,
		snr integer,
		spotted_call text,
		spotted_grid text,
		spotter_call text,
		spotter_grid text,
		spotted_continent text,
		spotter_continent text,
		distance_km real,
		spotted_at integer not null,
		created_at integer not null
	);
	create unique index if not exists idx_spots_source_key on spots(source, natural_key);
	create index if not exists idx_spots_spotted_at on spots(spotted_at);
	create index if not exists idx_spots_band_mode_at on spots(band, mode, spotted_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	return nil
}

// UpsertBatch writes one batch inside a single transaction. Each spot is
// looked up by (source, natural_key) first: an existing row keeps its id and
// created_at and has its mutable columns refreshed, a new spot is inserted.
// Returns how many rows were inserted and how many were merged onto existing
// rows.
func (s *Store) UpsertBatch(ctx context.Context, batch []*spot.Spot) (inserted, merged int, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sel, err := tx.PrepareContext(ctx, `select id from spots where source = ? and natural_key = ?`)
	if err != nil {
		return 0, 0, fmt.Errorf("store: prepare select: %w", err)
	}
	defer sel.Close()

	ins, err := tx.PrepareContext(ctx, `insert into spots(
		natural_key, source, band, mode, frequency_hz, snr,
		spotted_call, spotted_grid, spotter_call, spotter_grid,
		spotted_continent, spotter_continent, distance_km,
		spotted_at, created_at
	) values(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer ins.Close()

	upd, err := tx.PrepareContext(ctx, `update spots set
		frequency_hz = ?, snr = ?,
		spotted_grid = ?, spotter_grid = ?,
		spotted_continent = ?, spotter_continent = ?, distance_km = ?
	where id = ?`)
	if err != nil {
		return 0, 0, fmt.Errorf("store: prepare update: %w", err)
	}
	defer upd.Close()

	now := time.Now().UTC().Unix()
	for _, sp := range batch {
		if sp == nil {
			continue
		}
		var id int64
		scanErr := sel.QueryRowContext(ctx, sp.Source, sp.NaturalKey()).Scan(&id)
		switch scanErr {
		case nil:
			if _, err = upd.ExecContext(ctx,
				nullInt64(sp.FrequencyHz), nullInt(sp.SNR),
				sp.SpottedGrid, sp.SpotterGrid,
				string(sp.SpottedContinent), string(sp.SpotterContinent),
				nullFloat(sp.DistanceKm), id,
			); err != nil {
				return 0, 0, fmt.Errorf("store: update: %w", err)
			}
			merged++
		case sql.ErrNoRows:
			if _, err = ins.ExecContext(ctx,
				sp.NaturalKey(), sp.Source, sp.Band, sp.Mode,
				nullInt64(sp.FrequencyHz), nullInt(sp.SNR),
				sp.SpottedCall, sp.SpottedGrid, sp.SpotterCall, sp.SpotterGrid,
				string(sp.SpottedContinent), string(sp.SpotterContinent),
				nullFloat(sp.DistanceKm),
				sp.SpottedAt.UTC().Unix(), now,
			); err != nil {
				return 0, 0, fmt.Errorf("store: insert: %w", err)
			}
			inserted++
		default:
			return 0, 0, fmt.Errorf("store: lookup: %w", scanErr)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("store: commit: %w", err)
	}
	return inserted, merged, nil
}

// CountSpots returns the total number of persisted rows.
func (s *Store) CountSpots(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from spots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// CountSpotsSince returns the number of rows with spotted_at >= since.
func (s *Store) CountSpotsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from spots where spotted_at >= ?`, since.UTC().Unix()).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count since: %w", err)
	}
	return n, nil
}

// LastSpotTime returns the newest spotted_at, or ok=false on an empty store.
func (s *Store) LastSpotTime(ctx context.Context) (time.Time, bool, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `select max(spotted_at) from spots`).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("store: last spot time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// ActiveBandModes lists the distinct (band, mode) pairs seen since the cutoff.
func (s *Store) ActiveBandModes(ctx context.Context, since time.Time) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select distinct band, mode from spots where spotted_at >= ? order by band, mode`,
		since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("store: active band/modes: %w", err)
	}
	defer rows.Close()

	var keys [][2]string
	for rows.Next() {
		var band, mode string
		if err := rows.Scan(&band, &mode); err != nil {
			return nil, fmt.Errorf("store: scan band/mode: %w", err)
		}
		keys = append(keys, [2]string{band, mode})
	}
	return keys, rows.Err()
}

// CountSpotsInWindow counts spots for one key with spotted_at in (from, to].
func (s *Store) CountSpotsInWindow(ctx context.Context, band, mode string, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from spots where band = ? and mode = ? and spotted_at > ? and spotted_at <= ?`,
		band, mode, from.UTC().Unix(), to.UTC().Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: window count: %w", err)
	}
	return n, nil
}

// MaxDistancePath returns the longest recorded distance in the window with the
// calls on that path. ok is false when no spot in the window carries a
// distance.
func (s *Store) MaxDistancePath(ctx context.Context, band, mode string, from, to time.Time) (km float64, spottedCall, spotterCall string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		select distance_km, spotted_call, spotter_call from spots
		where band = ? and mode = ? and spotted_at > ? and spotted_at <= ? and distance_km is not null
		order by distance_km desc limit 1`,
		band, mode, from.UTC().Unix(), to.UTC().Unix())
	switch scanErr := row.Scan(&km, &spottedCall, &spotterCall); scanErr {
	case nil:
		return km, spottedCall, spotterCall, true, nil
	case sql.ErrNoRows:
		return 0, "", "", false, nil
	default:
		return 0, "", "", false, fmt.Errorf("store: max distance: %w", scanErr)
	}
}

// ContinentPairs lists the distinct (spotter, spotted) continent pairs in the
// window where both sides classified.
func (s *Store) ContinentPairs(ctx context.Context, band, mode string, from, to time.Time) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct spotter_continent, spotted_continent from spots
		where band = ? and mode = ? and spotted_at > ? and spotted_at <= ?
		and spotter_continent != '' and spotted_continent != ''`,
		band, mode, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("store: continent pairs: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("store: scan pair: %w", err)
		}
		pairs = append(pairs, [2]string{a, b})
	}
	return pairs, rows.Err()
}

// RecentSpots returns spots for a band (empty band matches all) with
// spotted_at >= since, newest first, capped at limit rows.
func (s *Store) RecentSpots(ctx context.Context, band string, since time.Time, limit int) ([]*spot.Spot, error) {
	if limit <= 0 {
		return []*spot.Spot{}, nil
	}
	query := `select band, mode, frequency_hz, snr, spotted_call, spotted_grid,
		spotter_call, spotter_grid, spotted_continent, spotter_continent,
		distance_km, spotted_at, source
		from spots where spotted_at >= ?`
	args := []any{since.UTC().Unix()}
	if band != "" {
		query += ` and band = ?`
		args = append(args, band)
	}
	query += ` order by spotted_at desc limit ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query recent: %w", err)
	}
	defer rows.Close()

	results := make([]*spot.Spot, 0, limit)
	for rows.Next() {
		var (
			sp       spot.Spot
			freq     sql.NullInt64
			snr      sql.NullInt64
			spottedC string
			spotterC string
			dist     sql.NullFloat64
			ts       int64
		)
		if err := rows.Scan(&sp.Band, &sp.Mode, &freq, &snr,
			&sp.SpottedCall, &sp.SpottedGrid, &sp.SpotterCall, &sp.SpotterGrid,
			&spottedC, &spotterC, &dist, &ts, &sp.Source); err != nil {
			return nil, fmt.Errorf("store: scan recent: %w", err)
		}
		if freq.Valid {
			v := freq.Int64
			sp.FrequencyHz = &v
		}
		if snr.Valid {
			v := int(snr.Int64)
			sp.SNR = &v
		}
		if dist.Valid {
			v := dist.Float64
			sp.DistanceKm = &v
		}
		sp.SpottedContinent = geo.Continent(spottedC)
		sp.SpotterContinent = geo.Continent(spotterC)
		sp.SpottedAt = time.Unix(ts, 0).UTC()
		results = append(results, &sp)
	}
	return results, rows.Err()
}

// DeleteOlderThan removes rows with spotted_at before the cutoff and returns
// the number deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from spots where spotted_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: retention delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RunRetention deletes spots older than horizon once per interval until the
// context ends. Retention keeps the database bounded; the aggregation windows
// only ever look back 2x the window length.
func (s *Store) RunRetention(ctx context.Context, horizon, interval time.Duration) {
	if horizon <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.DeleteOlderThan(ctx, time.Now().UTC().Add(-horizon)); err != nil {
				log.Printf("store: retention sweep: %v", err)
			} else if n > 0 {
				log.Printf("store: retention removed %d spots", n)
			}
		}
	}
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
