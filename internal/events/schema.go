package events

import (
	"sort"
	"sync"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// EventSchema is the (eventType, version)-keyed contract a typed event's
// payload must satisfy.
type EventSchema struct {
	EventType      string
	Version        uint32
	RequiredFields []string
	Description    string
}

// Compatibility selects the rule CheckCompatibility applies between a
// schema version and its predecessor; Register stores a schema without
// checking it.
type Compatibility int

const (
	CompatibilityBackward Compatibility = iota // default
	CompatibilityForward
	CompatibilityFull
	CompatibilityNone
)

// SchemaRegistry stores typed event schemas and validates payloads/version
// evolution against them.
type SchemaRegistry interface {
	Register(schema EventSchema) error
	Get(eventType string, version uint32) (EventSchema, bool)
	LatestVersion(eventType string) (uint32, bool)
	ListTypes() []string
	Validate(event Event) error
	CheckCompatibility(eventType string, newVersion uint32, mode Compatibility) error
}

type schemaKey struct {
	eventType string
	version   uint32
}

// MemorySchemaRegistry is the only registry implementation — schemas are
// lost on restart, matching the original_source's development/test default.
type MemorySchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[schemaKey]EventSchema
}

func NewMemorySchemaRegistry() *MemorySchemaRegistry {
	return &MemorySchemaRegistry{schemas: make(map[schemaKey]EventSchema)}
}

func (r *MemorySchemaRegistry) Register(schema EventSchema) error {
	if schema.EventType == "" {
		return errs.New(errs.KindConfig, "event type cannot be empty")
	}
	if schema.Version == 0 {
		return errs.New(errs.KindConfig, "schema version must be >= 1")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schemaKey{schema.EventType, schema.Version}] = schema
	return nil
}

func (r *MemorySchemaRegistry) Get(eventType string, version uint32) (EventSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[schemaKey{eventType, version}]
	return s, ok
}

func (r *MemorySchemaRegistry) LatestVersion(eventType string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max uint32
	found := false
	for k := range r.schemas {
		if k.eventType == eventType && (!found || k.version > max) {
			max = k.version
			found = true
		}
	}
	return max, found
}

func (r *MemorySchemaRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for k := range r.schemas {
		seen[k.eventType] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *MemorySchemaRegistry) Validate(event Event) error {
	if event.EventType == "" {
		return nil
	}
	r.mu.RLock()
	schema, ok := r.schemas[schemaKey{event.EventType, event.Version}]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	payloadMap, isObject := event.Payload.(map[string]any)
	if !isObject {
		if len(schema.RequiredFields) == 0 {
			return nil
		}
		return errs.SchemaValidation(event.EventType, int(event.Version),
			"payload must be a JSON object when schema has required fields")
	}
	for _, field := range schema.RequiredFields {
		if _, present := payloadMap[field]; !present {
			return errs.SchemaValidation(event.EventType, int(event.Version),
				"missing required field '"+field+"'")
		}
	}
	return nil
}

func (r *MemorySchemaRegistry) CheckCompatibility(eventType string, newVersion uint32, mode Compatibility) error {
	if mode == CompatibilityNone || newVersion <= 1 {
		return nil
	}
	prevVersion := newVersion - 1

	r.mu.RLock()
	prev, prevOK := r.schemas[schemaKey{eventType, prevVersion}]
	newer, newOK := r.schemas[schemaKey{eventType, newVersion}]
	r.mu.RUnlock()

	if !prevOK || !newOK {
		return nil
	}

	switch mode {
	case CompatibilityBackward:
		prevSet := toSet(prev.RequiredFields)
		for _, field := range newer.RequiredFields {
			if _, ok := prevSet[field]; !ok {
				return errs.SchemaValidation(eventType, int(newVersion),
					"backward incompatible: new required field '"+field+"' not in previous version")
			}
		}
	case CompatibilityForward:
		newSet := toSet(newer.RequiredFields)
		for _, field := range prev.RequiredFields {
			if _, ok := newSet[field]; !ok {
				return errs.SchemaValidation(eventType, int(newVersion),
					"forward incompatible: required field '"+field+"' removed")
			}
		}
	case CompatibilityFull:
		if !setsEqual(prev.RequiredFields, newer.RequiredFields) {
			return errs.SchemaValidation(eventType, int(newVersion),
				"full incompatible: required fields differ between versions")
		}
	}
	return nil
}

func toSet(fields []string) map[string]struct{} {
	s := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// setsEqual compares two required-field lists as sets (spec §4.3 describes
// Full compatibility in terms of "sets", not order-sensitive sequences —
// original_source's Vec equality was order-sensitive; we follow the spec
// wording here).
func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := toSet(a)
	for _, f := range b {
		if _, ok := as[f]; !ok {
			return false
		}
	}
	return true
}
