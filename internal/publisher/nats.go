// Package publisher broadcasts snapshots and notices over NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-realtime/internal/format"
	"transit-realtime/internal/logging"
	"transit-realtime/internal/realtime"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          Conn
	raw         *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	l := logging.Component("nats")
	nc, err := nats.Connect(url,
		nats.Name("transit-realtime"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			l.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			l.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			l.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := New(nc, prefix, logSubjects, m)
	p.raw = nc
	return p, nil
}

// New wraps an existing connection.
func New(nc Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "transit"
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      prefix,
		logSubjects: logSubjects,
		metrics:     m,
		log:         logging.Component("nats"),
	}
}

func (p *NATSPublisher) Close() {
	if p.raw != nil {
		_ = p.raw.Drain()
		p.raw.Close()
	}
}

func (p *NATSPublisher) Name() string { return "nats" }

// SnapshotMessage is the summary sent on <prefix>.snapshot.
type SnapshotMessage struct {
	Generation       uint64                            `json:"generation"`
	Simulated        bool                              `json:"simulated"`
	UpdatedAt        time.Time                         `json:"updatedAt"`
	Sources          map[realtime.Kind]realtime.Source `json:"sources"`
	TripUpdates      int                               `json:"tripUpdates"`
	VehiclePositions int                               `json:"vehiclePositions"`
	Alerts           int                               `json:"alerts"`
	DelayedTrips     int                               `json:"delayedTrips"`
}

// PositionMessage is sent per vehicle on <prefix>.vehicles.<route>.<vehicle>.
type PositionMessage struct {
	EntityID   string    `json:"entityId"`
	VehicleID  string    `json:"vehicleId"`
	TripID     string    `json:"tripId,omitempty"`
	RouteID    string    `json:"routeId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Bearing    float64   `json:"bearing"`
	SpeedKmh   float64   `json:"speedKmh"`
	Status     string    `json:"status"`
	Congestion string    `json:"congestion"`
	Simulated  bool      `json:"simulated"`
}

// Publish sends the snapshot summary and one message per positioned vehicle.
// The first error is returned after every message has been attempted.
func (p *NATSPublisher) Publish(ctx context.Context, snap realtime.FeedSnapshot) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(p.publishJSON(p.prefix+".snapshot", SnapshotMessage{
		Generation:       snap.Generation,
		Simulated:        snap.Simulated,
		UpdatedAt:        snap.UpdatedAt,
		Sources:          snap.Sources,
		TripUpdates:      len(snap.TripUpdates),
		VehiclePositions: len(snap.VehiclePositions),
		Alerts:           len(snap.Alerts),
		DelayedTrips:     len(snap.DelayedTrips(0)),
	}))

	for i := range snap.VehiclePositions {
		if err := ctx.Err(); err != nil {
			keep(err)
			break
		}
		v := &snap.VehiclePositions[i]
		msg, ok := positionMessage(v, snap)
		if !ok {
			continue
		}
		keep(p.publishJSON(p.VehicleSubject(msg.RouteID, msg.VehicleID), msg))
	}
	return first
}

// PublishNotice sends a notice on <prefix>.notices.
func (p *NATSPublisher) PublishNotice(n realtime.Notice) error {
	return p.publishJSON(p.prefix+".notices", n)
}

func (p *NATSPublisher) VehicleSubject(routeID, vehicleID string) string {
	return fmt.Sprintf("%s.vehicles.%s.%s", p.prefix, subjectToken(routeID), subjectToken(vehicleID))
}

func positionMessage(v *realtime.VehiclePosition, snap realtime.FeedSnapshot) (PositionMessage, bool) {
	if v.Position == nil || !v.Position.Latitude.Valid || !v.Position.Longitude.Valid {
		return PositionMessage{}, false
	}
	vehicleID := v.ID
	if v.Vehicle != nil && v.Vehicle.ID.Or("") != "" {
		vehicleID = v.Vehicle.ID.V
	}
	ts := snap.UpdatedAt
	if t, ok := v.Timestamp.Get(); ok {
		ts = time.Unix(t, 0).UTC()
	}
	msg := PositionMessage{
		EntityID:   v.ID,
		VehicleID:  vehicleID,
		RouteID:    v.RouteID(),
		Timestamp:  ts,
		Lat:        v.Position.Latitude.V,
		Lon:        v.Position.Longitude.V,
		Bearing:    v.Position.Bearing.Or(0),
		SpeedKmh:   v.Position.Speed.Or(0),
		Status:     format.VehicleStatus(v.CurrentStatus, v.OccupancyStatus),
		Congestion: format.CongestionLabel(v.CongestionLevel),
		Simulated:  snap.Simulated,
	}
	if v.Trip != nil {
		msg.TripID = v.Trip.TripID.Or("")
	}
	return msg, true
}

func (p *NATSPublisher) publishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Int("bytes", len(b)).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
