package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/realtime"
)

func newMockArchive(t *testing.T) (*Archive, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewArchive(sqlDB), mock
}

func archiveSnapshot(updated time.Time) realtime.FeedSnapshot {
	tu := realtime.TripUpdate{
		ID:   "t1",
		Trip: realtime.TripDescriptor{TripID: realtime.Some("T1"), RouteID: realtime.Some("R1")},
	}
	tu.SetDelay(120)
	return realtime.FeedSnapshot{
		Generation:  3,
		Simulated:   true,
		UpdatedAt:   updated,
		TripUpdates: []realtime.TripUpdate{tu},
		VehiclePositions: []realtime.VehiclePosition{
			{
				ID:      "e1",
				Trip:    &realtime.TripDescriptor{TripID: realtime.Some("T1"), RouteID: realtime.Some("R1")},
				Vehicle: &realtime.VehicleDescriptor{ID: realtime.Some("bus-9")},
				Position: &realtime.Position{
					Latitude:  realtime.Some(45.0),
					Longitude: realtime.Some(7.0),
					Bearing:   realtime.Some(90.0),
					Speed:     realtime.Some(25.0),
				},
				CurrentStatus:   realtime.StopStatusInTransitTo,
				Timestamp:       realtime.Some(int64(1_700_000_000)),
				OccupancyStatus: realtime.Some(realtime.OccupancyFewSeatsAvailable),
			},
			// No coordinates: not archived.
			{ID: "e2", Position: &realtime.Position{Latitude: realtime.Some(45.1)}},
		},
	}
}

func TestArchivePublish(t *testing.T) {
	a, mock := newMockArchive(t)
	updated := time.Unix(1_700_000_030, 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rt_snapshots")).
		WithArgs(int64(3), true, sqlmock.AnyArg(), sqlmock.AnyArg(), 1, 2, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	vp := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rt_vehicle_positions"))
	vp.ExpectExec().
		WithArgs(int64(3), true, "e1", "bus-9", "R1", "T1", 45.0, 7.0, 90.0, 25.0,
			"IN_TRANSIT_TO", "FEW_SEATS_AVAILABLE", nil, time.Unix(1_700_000_000, 0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	tp := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rt_trip_delays"))
	tp.ExpectExec().
		WithArgs(int64(3), true, "t1", "T1", "R1", int64(120), updated).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, a.Publish(context.Background(), archiveSnapshot(updated)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchivePublishRollsBackOnError(t *testing.T) {
	a, mock := newMockArchive(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rt_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rt_vehicle_positions")).
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := a.Publish(context.Background(), archiveSnapshot(time.Unix(1_700_000_030, 0)))
	require.ErrorContains(t, err, "insert vehicle e1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTrack(t *testing.T) {
	a, mock := newMockArchive(t)
	since := time.Unix(1_700_000_000, 0)
	t0 := since.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"vehicle_id", "route_id", "trip_id", "lat", "lon", "bearing", "speed_kmh", "simulated", "recorded_at"}).
		AddRow("bus-9", "R1", "T1", 45.0, 7.0, 90.0, nil, false, t0).
		AddRow("bus-9", "R1", "T1", 45.001, 7.0, nil, 30.0, true, t0.Add(30*time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("FROM rt_vehicle_positions")).
		WithArgs("bus-9", since, 500).
		WillReturnRows(rows)

	pts, err := a.RecentTrack(context.Background(), "bus-9", since, 0)
	require.NoError(t, err)
	require.Len(t, pts, 2)

	assert.Equal(t, "bus-9", pts[0].VehicleID)
	require.NotNil(t, pts[0].Bearing)
	assert.Equal(t, 90.0, *pts[0].Bearing)
	assert.Nil(t, pts[0].SpeedKmh)
	assert.Equal(t, t0, pts[0].RecordedAt)

	assert.Nil(t, pts[1].Bearing)
	require.NotNil(t, pts[1].SpeedKmh)
	assert.Equal(t, 30.0, *pts[1].SpeedKmh)
	assert.True(t, pts[1].Simulated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTrackQueryError(t *testing.T) {
	a, mock := newMockArchive(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rt_vehicle_positions")).
		WillReturnError(errors.New("connection reset"))

	_, err := a.RecentTrack(context.Background(), "bus-9", time.Now(), 10)
	assert.ErrorContains(t, err, "query track")
}
