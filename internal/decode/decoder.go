// Package decode turns GTFS-realtime payloads into typed records.
//
// Decoding happens in two steps. Generic unmarshals a payload with the
// schema-resolved feed message type and picks the entities carrying the
// requested kind; the Normalizer then reads those entities field by field
// into realtime records. Vehicle trip descriptors go through a quirk.Adapter
// so that feed-specific field shuffles stay out of the general path.
package decode

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"transit-realtime/internal/quirk"
	"transit-realtime/internal/realtime"
)

// GenericEntity is one feed entity's payload for a single kind, still in
// schema form.
type GenericEntity struct {
	ID      string
	Kind    realtime.Kind
	Payload protoreflect.Message
}

var payloadFields = map[realtime.Kind]protoreflect.Name{
	realtime.KindTripUpdate:      "trip_update",
	realtime.KindVehiclePosition: "vehicle",
	realtime.KindAlert:           "alert",
}

// Partial messages are accepted: some producers omit required header
// fields.
var unmarshalOptions = proto.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}

// Generic decodes b and returns the entities carrying kind, in feed order.
// An empty payload yields no entities and no error.
func Generic(b []byte, kind realtime.Kind, mt protoreflect.MessageType) ([]GenericEntity, error) {
	if len(b) == 0 {
		return []GenericEntity{}, nil
	}
	field, ok := payloadFields[kind]
	if !ok {
		return nil, fmt.Errorf("unknown feed kind %q", kind)
	}
	if mt == nil {
		return nil, fmt.Errorf("decode %s feed: no feed message type", kind)
	}

	msg := mt.New()
	if err := unmarshalOptions.Unmarshal(b, msg.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s feed: %w", kind, err)
	}
	entities := list(msg, "entity")
	if entities == nil {
		return nil, fmt.Errorf("decode %s feed: %s has no repeated entity field", kind, msg.Descriptor().FullName())
	}

	out := make([]GenericEntity, 0, entities.Len())
	for i := 0; i < entities.Len(); i++ {
		e := entities.Get(i).Message()
		payload, ok := message(e, field)
		if !ok {
			continue
		}
		out = append(out, GenericEntity{ID: str(e, "id").Or(""), Kind: kind, Payload: payload})
	}
	return out, nil
}

// Decoder decodes each feed kind into typed records.
type Decoder struct {
	norm *Normalizer
}

// New returns a decoder using the given quirk adapter for vehicle trips; nil
// means the standard mapping.
func New(a quirk.Adapter) *Decoder {
	return &Decoder{norm: NewNormalizer(a)}
}

func (d *Decoder) TripUpdates(b []byte, mt protoreflect.MessageType) ([]realtime.TripUpdate, error) {
	generic, err := Generic(b, realtime.KindTripUpdate, mt)
	if err != nil {
		return nil, err
	}
	out := make([]realtime.TripUpdate, 0, len(generic))
	for _, e := range generic {
		out = append(out, d.norm.TripUpdate(e))
	}
	return out, nil
}

func (d *Decoder) VehiclePositions(b []byte, mt protoreflect.MessageType) ([]realtime.VehiclePosition, error) {
	generic, err := Generic(b, realtime.KindVehiclePosition, mt)
	if err != nil {
		return nil, err
	}
	out := make([]realtime.VehiclePosition, 0, len(generic))
	for _, e := range generic {
		out = append(out, d.norm.VehiclePosition(e))
	}
	return out, nil
}

func (d *Decoder) Alerts(b []byte, mt protoreflect.MessageType) ([]realtime.Alert, error) {
	generic, err := Generic(b, realtime.KindAlert, mt)
	if err != nil {
		return nil, err
	}
	out := make([]realtime.Alert, 0, len(generic))
	for _, e := range generic {
		out = append(out, d.norm.Alert(e))
	}
	return out, nil
}
