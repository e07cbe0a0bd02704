package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transit-realtime/internal/realtime"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS rt_snapshots (
    generation        BIGINT      NOT NULL,
    simulated         BOOLEAN     NOT NULL,
    fetched_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    trip_updates      INTEGER     NOT NULL,
    vehicle_positions INTEGER     NOT NULL,
    alerts            INTEGER     NOT NULL,
    recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS rt_vehicle_positions (
    id          BIGSERIAL PRIMARY KEY,
    generation  BIGINT           NOT NULL,
    simulated   BOOLEAN          NOT NULL,
    entity_id   TEXT             NOT NULL,
    vehicle_id  TEXT             NOT NULL,
    route_id    TEXT,
    trip_id     TEXT,
    lat         DOUBLE PRECISION NOT NULL,
    lon         DOUBLE PRECISION NOT NULL,
    bearing     DOUBLE PRECISION,
    speed_kmh   DOUBLE PRECISION,
    status      TEXT             NOT NULL,
    occupancy   TEXT,
    congestion  TEXT,
    recorded_at TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS rt_vehicle_positions_vehicle_time
    ON rt_vehicle_positions (vehicle_id, recorded_at DESC);
CREATE TABLE IF NOT EXISTS rt_trip_delays (
    generation    BIGINT      NOT NULL,
    simulated     BOOLEAN     NOT NULL,
    entity_id     TEXT        NOT NULL,
    trip_id       TEXT,
    route_id      TEXT,
    delay_seconds INTEGER,
    recorded_at   TIMESTAMPTZ NOT NULL
);`

// TrackPoint is one archived vehicle position.
type TrackPoint struct {
	VehicleID  string    `json:"vehicleId"`
	RouteID    string    `json:"routeId,omitempty"`
	TripID     string    `json:"tripId,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Bearing    *float64  `json:"bearing,omitempty"`
	SpeedKmh   *float64  `json:"speedKmh,omitempty"`
	Simulated  bool      `json:"simulated"`
	RecordedAt time.Time `json:"recordedAt"`
}

type TrackSummary struct {
	Points         int     `json:"points"`
	DistanceMeters float64 `json:"distanceMeters"`
	AvgSpeedKmh    float64 `json:"avgSpeedKmh"`
	Heading        float64 `json:"heading"`
}

// Archive writes snapshots to Postgres. It satisfies the store's sink
// interface.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive { return &Archive{db: db} }

func (a *Archive) Name() string { return "postgres" }

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// VehicleKey is the identifier a vehicle is archived under: the vehicle
// descriptor id when present, else the entity id.
func VehicleKey(v *realtime.VehiclePosition) string {
	if v.Vehicle != nil && v.Vehicle.ID.Valid && v.Vehicle.ID.V != "" {
		return v.Vehicle.ID.V
	}
	return v.ID
}

// Publish archives one snapshot in a single transaction. Vehicles without
// coordinates are skipped.
func (a *Archive) Publish(ctx context.Context, snap realtime.FeedSnapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	recorded := snap.UpdatedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rt_snapshots (generation, simulated, fetched_at, updated_at, trip_updates, vehicle_positions, alerts)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(snap.Generation), snap.Simulated, snap.FetchedAt, recorded,
		len(snap.TripUpdates), len(snap.VehiclePositions), len(snap.Alerts),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	vstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rt_vehicle_positions
            (generation, simulated, entity_id, vehicle_id, route_id, trip_id, lat, lon, bearing, speed_kmh, status, occupancy, congestion, recorded_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		return fmt.Errorf("prepare vehicle insert: %w", err)
	}
	defer vstmt.Close()

	for i := range snap.VehiclePositions {
		v := &snap.VehiclePositions[i]
		if v.Position == nil || !v.Position.Latitude.Valid || !v.Position.Longitude.Valid {
			continue
		}
		at := recorded
		if ts, ok := v.Timestamp.Get(); ok {
			at = time.Unix(ts, 0)
		}
		var tripID sql.NullString
		if v.Trip != nil {
			tripID = nullString(v.Trip.TripID)
		}
		if _, err := vstmt.ExecContext(ctx,
			int64(snap.Generation), snap.Simulated, v.ID, VehicleKey(v),
			sql.NullString{String: v.RouteID(), Valid: v.RouteID() != ""}, tripID,
			v.Position.Latitude.V, v.Position.Longitude.V,
			nullFloat(v.Position.Bearing), nullFloat(v.Position.Speed),
			string(v.CurrentStatus),
			nullEnum(v.OccupancyStatus), nullEnum(v.CongestionLevel),
			at,
		); err != nil {
			return fmt.Errorf("insert vehicle %s: %w", v.ID, err)
		}
	}

	tstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rt_trip_delays (generation, simulated, entity_id, trip_id, route_id, delay_seconds, recorded_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare trip insert: %w", err)
	}
	defer tstmt.Close()

	for i := range snap.TripUpdates {
		tu := &snap.TripUpdates[i]
		var delay sql.NullInt32
		if d, ok := tu.EffectiveDelay().Get(); ok {
			delay = sql.NullInt32{Int32: d, Valid: true}
		}
		if _, err := tstmt.ExecContext(ctx,
			int64(snap.Generation), snap.Simulated, tu.ID,
			nullString(tu.Trip.TripID), nullString(tu.Trip.RouteID), delay, recorded,
		); err != nil {
			return fmt.Errorf("insert trip %s: %w", tu.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// RecentTrack returns the vehicle's positions recorded since the given time,
// oldest first, capped at limit.
func (a *Archive) RecentTrack(ctx context.Context, vehicleID string, since time.Time, limit int) ([]TrackPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	q := `SELECT vehicle_id, COALESCE(route_id, ''), COALESCE(trip_id, ''), lat, lon, bearing, speed_kmh, simulated, recorded_at
          FROM (
              SELECT * FROM rt_vehicle_positions
              WHERE vehicle_id = $1 AND recorded_at >= $2
              ORDER BY recorded_at DESC
              LIMIT $3
          ) recent
          ORDER BY recorded_at ASC`
	rows, err := a.db.QueryContext(ctx, q, vehicleID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	defer rows.Close()

	pts := make([]TrackPoint, 0)
	for rows.Next() {
		var p TrackPoint
		var bearing, speed sql.NullFloat64
		if err := rows.Scan(&p.VehicleID, &p.RouteID, &p.TripID, &p.Lat, &p.Lon, &bearing, &speed, &p.Simulated, &p.RecordedAt); err != nil {
			return nil, err
		}
		if bearing.Valid {
			p.Bearing = &bearing.Float64
		}
		if speed.Valid {
			p.SpeedKmh = &speed.Float64
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

func nullString(o realtime.Optional[string]) sql.NullString {
	return sql.NullString{String: o.V, Valid: o.Valid}
}

func nullFloat(o realtime.Optional[float64]) sql.NullFloat64 {
	return sql.NullFloat64{Float64: o.V, Valid: o.Valid}
}

func nullEnum[T ~string](o realtime.Optional[T]) sql.NullString {
	return sql.NullString{String: string(o.V), Valid: o.Valid}
}
