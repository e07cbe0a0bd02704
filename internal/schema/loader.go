// Package schema resolves the GTFS-realtime FeedMessage type used to decode
// feed payloads.
//
// The type comes either from the schema compiled into the MobilityData
// bindings or from a serialized FileDescriptorSet (protoc
// --descriptor_set_out) read from a file or an http(s) URL. The resolved type
// is cached for the lifetime of the Loader; failures are not cached.
package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	// registers transit_realtime.* in the global registry
	_ "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	// Builtin selects the schema compiled into the bindings.
	Builtin = "builtin"
	// DefaultMessage is the root feed message type.
	DefaultMessage = "transit_realtime.FeedMessage"

	maxDescriptorSize = 4 * 1024 * 1024
)

// LoadError means no feed message type could be resolved. Nothing can be
// decoded without one.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load schema from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Loader struct {
	source  string
	message protoreflect.FullName
	client  *http.Client

	mu sync.Mutex
	mt protoreflect.MessageType
}

// NewLoader returns a loader for source (Builtin, "", a file path or an
// http(s) URL) resolving the named message; an empty name means
// DefaultMessage.
func NewLoader(source, message string) *Loader {
	if strings.TrimSpace(source) == "" {
		source = Builtin
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}
	return &Loader{
		source:  source,
		message: protoreflect.FullName(message),
		client:  &http.Client{},
	}
}

// Ensure returns the resolved feed message type, loading it on first use.
func (l *Loader) Ensure(ctx context.Context) (protoreflect.MessageType, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mt != nil {
		return l.mt, nil
	}

	mt, err := l.load(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", l.source).Msg("failed to load GTFS-realtime schema")
		return nil, &LoadError{Source: l.source, Err: err}
	}
	l.mt = mt
	log.Info().Str("source", l.source).Str("type", string(l.message)).Msg("GTFS-realtime schema loaded")
	return mt, nil
}

func (l *Loader) load(ctx context.Context) (protoreflect.MessageType, error) {
	if l.source == Builtin {
		mt, err := protoregistry.GlobalTypes.FindMessageByName(l.message)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", l.message, err)
		}
		return mt, nil
	}

	raw, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse descriptor set: %w", err)
	}
	if len(set.GetFile()) == 0 {
		return nil, fmt.Errorf("descriptor set is empty")
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("build descriptors: %w", err)
	}
	d, err := files.FindDescriptorByName(l.message)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", l.message, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", l.message)
	}
	return dynamicpb.NewMessageType(md), nil
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(l.source, "http://") && !strings.HasPrefix(l.source, "https://") {
		return os.ReadFile(l.source)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch descriptor set: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, l.source)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDescriptorSize))
}
