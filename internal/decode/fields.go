package decode

import (
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"

	"transit-realtime/internal/realtime"
)

// Field accessors over a schema-resolved message. Every accessor reports an
// absent, mistyped or unknown field as absent rather than failing, so a
// schema revision with extra or missing fields still decodes.

func scalar(m protoreflect.Message, name protoreflect.Name) (protoreflect.FieldDescriptor, protoreflect.Value, bool) {
	if m == nil || !m.IsValid() {
		return nil, protoreflect.Value{}, false
	}
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil || fd.IsList() || fd.IsMap() || !m.Has(fd) {
		return nil, protoreflect.Value{}, false
	}
	return fd, m.Get(fd), true
}

func message(m protoreflect.Message, name protoreflect.Name) (protoreflect.Message, bool) {
	fd, v, ok := scalar(m, name)
	if !ok || fd.Kind() != protoreflect.MessageKind {
		return nil, false
	}
	return v.Message(), true
}

// list returns the repeated message field, or nil.
func list(m protoreflect.Message, name protoreflect.Name) protoreflect.List {
	if m == nil || !m.IsValid() {
		return nil
	}
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil || !fd.IsList() || fd.Kind() != protoreflect.MessageKind {
		return nil
	}
	return m.Get(fd).List()
}

func str(m protoreflect.Message, name protoreflect.Name) realtime.Optional[string] {
	fd, v, ok := scalar(m, name)
	if !ok || fd.Kind() != protoreflect.StringKind {
		return realtime.None[string]()
	}
	return realtime.Some(v.String())
}

func integer(fd protoreflect.FieldDescriptor, v protoreflect.Value) (int64, bool) {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int(), true
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return int64(v.Uint()), true
	}
	return 0, false
}

func i64(m protoreflect.Message, name protoreflect.Name) realtime.Optional[int64] {
	fd, v, ok := scalar(m, name)
	if !ok {
		return realtime.None[int64]()
	}
	n, ok := integer(fd, v)
	if !ok {
		return realtime.None[int64]()
	}
	return realtime.Some(n)
}

func i32(m protoreflect.Message, name protoreflect.Name) realtime.Optional[int32] {
	n, ok := i64(m, name).Get()
	if !ok {
		return realtime.None[int32]()
	}
	return realtime.Some(int32(n))
}

func u32(m protoreflect.Message, name protoreflect.Name) realtime.Optional[uint32] {
	n, ok := i64(m, name).Get()
	if !ok || n < 0 {
		return realtime.None[uint32]()
	}
	return realtime.Some(uint32(n))
}

func f64(m protoreflect.Message, name protoreflect.Name) realtime.Optional[float64] {
	fd, v, ok := scalar(m, name)
	if !ok {
		return realtime.None[float64]()
	}
	switch fd.Kind() {
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return realtime.Some(v.Float())
	}
	if n, ok := integer(fd, v); ok {
		return realtime.Some(float64(n))
	}
	return realtime.None[float64]()
}

// enum returns the enum value's name, or its number when the schema does not
// name it.
func enum(m protoreflect.Message, name protoreflect.Name) realtime.Optional[string] {
	fd, v, ok := scalar(m, name)
	if !ok || fd.Kind() != protoreflect.EnumKind {
		return realtime.None[string]()
	}
	if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
		return realtime.Some(string(ev.Name()))
	}
	return realtime.Some(strconv.Itoa(int(v.Enum())))
}

// text renders any scalar field as a string.
func text(m protoreflect.Message, name protoreflect.Name) realtime.Optional[string] {
	fd, v, ok := scalar(m, name)
	if !ok {
		return realtime.None[string]()
	}
	switch fd.Kind() {
	case protoreflect.StringKind:
		return realtime.Some(v.String())
	case protoreflect.EnumKind:
		return enum(m, name)
	case protoreflect.BoolKind:
		return realtime.Some(strconv.FormatBool(v.Bool()))
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return realtime.Some(strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case protoreflect.BytesKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return realtime.None[string]()
	}
	if n, ok := integer(fd, v); ok {
		return realtime.Some(strconv.FormatInt(n, 10))
	}
	return realtime.None[string]()
}
