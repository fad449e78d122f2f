package testformat

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ExpectedEventType selects which family of events an expectation covers.
type ExpectedEventType string

const (
	EventTypeCommand ExpectedEventType = "command"
	EventTypeCmap    ExpectedEventType = "cmap"

	// EventTypeCmapWithoutConnectionReady is never decoded from a test file.
	// Callers select it to compare CMAP events while ignoring
	// connectionReadyEvent, whose emission is not yet serialized with
	// connection usage.
	EventTypeCmapWithoutConnectionReady ExpectedEventType = "cmapWithoutConnectionReady"
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ExpectedEventType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return &SchemaError{Field: "eventType", Message: err.Error()}
	}
	switch ExpectedEventType(s) {
	case EventTypeCommand, EventTypeCmap:
		*t = ExpectedEventType(s)
		return nil
	}
	return &SchemaError{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", s)}
}

// EventMatch is how an observed event list is compared with the expected
// list.
type EventMatch int

const (
	// EventMatchExact requires the same number of events.
	EventMatchExact EventMatch = iota
	// EventMatchPrefix compares only the first len(expected) observed events.
	EventMatchPrefix
)

func (m EventMatch) String() string {
	if m == EventMatchPrefix {
		return "prefix"
	}
	return "exact"
}

// ExpectedEvents is the event expectation for one client.
type ExpectedEvents struct {
	Client            string             `yaml:"client"`
	Events            []ExpectedEvent    `yaml:"events"`
	EventType         *ExpectedEventType `yaml:"eventType,omitempty"`
	IgnoreExtraEvents *bool              `yaml:"ignoreExtraEvents,omitempty"`
}

// Type returns the declared event type, defaulting to command events.
func (e ExpectedEvents) Type() ExpectedEventType {
	if e.EventType == nil {
		return EventTypeCommand
	}
	return *e.EventType
}

// MatchMode returns EventMatchPrefix when extra events are ignored and
// EventMatchExact otherwise.
func (e ExpectedEvents) MatchMode() EventMatch {
	if e.IgnoreExtraEvents != nil && *e.IgnoreExtraEvents {
		return EventMatchPrefix
	}
	return EventMatchExact
}

// ExpectedEvent is one expected event: its name and the fields that must
// match partially.
type ExpectedEvent struct {
	Name   string
	Fields Document
}

type eventSpec struct {
	family ExpectedEventType
	fields []string
}

// eventSpecs maps each event name to its family and the fields an
// expectation may declare for it.
var eventSpecs = map[string]eventSpec{
	"commandStartedEvent":            {EventTypeCommand, []string{"command", "commandName", "databaseName", "hasServiceId", "hasServerConnectionId"}},
	"commandSucceededEvent":          {EventTypeCommand, []string{"reply", "commandName", "databaseName", "hasServiceId", "hasServerConnectionId"}},
	"commandFailedEvent":             {EventTypeCommand, []string{"commandName", "databaseName", "hasServiceId", "hasServerConnectionId"}},
	"poolCreatedEvent":               {EventTypeCmap, nil},
	"poolReadyEvent":                 {EventTypeCmap, nil},
	"poolClearedEvent":               {EventTypeCmap, []string{"hasServiceId", "interruptInUseConnections"}},
	"poolClosedEvent":                {EventTypeCmap, nil},
	"connectionCreatedEvent":         {EventTypeCmap, nil},
	"connectionReadyEvent":           {EventTypeCmap, nil},
	"connectionClosedEvent":          {EventTypeCmap, []string{"reason"}},
	"connectionCheckOutStartedEvent": {EventTypeCmap, nil},
	"connectionCheckOutFailedEvent":  {EventTypeCmap, []string{"reason"}},
	"connectionCheckedOutEvent":      {EventTypeCmap, nil},
	"connectionCheckedInEvent":       {EventTypeCmap, nil},
}

// EventFamily returns the event type an event name belongs to.
func EventFamily(name string) (ExpectedEventType, bool) {
	spec, ok := eventSpecs[name]
	return spec.family, ok
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *ExpectedEvent) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return &SchemaError{Field: "events", Message: fmt.Sprintf("line %d: expected event must have exactly one key", node.Line)}
	}

	name := node.Content[0].Value
	spec, ok := eventSpecs[name]
	if !ok {
		return &SchemaError{Field: "events", Message: fmt.Sprintf("line %d: unknown event %q", node.Line, name)}
	}

	var fields Document
	if err := strictDecode(node.Content[1], &fields); err != nil {
		return &SchemaError{Field: "events." + name, Message: err.Error()}
	}

	for key := range fields {
		if !contains(spec.fields, key) {
			return &SchemaError{
				Field:   "events." + name,
				Message: fmt.Sprintf("line %d: field %s not allowed (allowed: %v)", node.Line, key, sortedCopy(spec.fields)),
			}
		}
	}

	e.Name = name
	e.Fields = fields
	return nil
}

// validObserveEvent reports whether a client entity may observe the named event.
func validObserveEvent(name string) bool {
	_, ok := eventSpecs[name]
	return ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
