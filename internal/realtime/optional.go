package realtime

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value that may be absent from the feed. The zero value is
// absent. Fields are exported so snapshot deep copies keep them.
type Optional[T any] struct {
	V     T
	Valid bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{V: v, Valid: true} }

func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.V, o.Valid }

// Or returns the value, or def when absent.
func (o Optional[T]) Or(def T) T {
	if o.Valid {
		return o.V
	}
	return def
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.V)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
