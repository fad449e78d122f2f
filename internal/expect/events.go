package expect

import (
	"fmt"

	"github.com/roach88/unifiedrunner/internal/match"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// Event is one event observed on a client, in publication order.
type Event struct {
	Name   string
	Fields testformat.Document
}

// Family returns the event type the event belongs to.
func (e Event) Family() testformat.ExpectedEventType {
	family, _ := testformat.EventFamily(e.Name)
	return family
}

// FilterEvents keeps the observed events of one event type.
// EventTypeCmapWithoutConnectionReady keeps CMAP events other than
// connectionReadyEvent.
func FilterEvents(observed []Event, eventType testformat.ExpectedEventType) []Event {
	family := eventType
	if eventType == testformat.EventTypeCmapWithoutConnectionReady {
		family = testformat.EventTypeCmap
	}

	out := make([]Event, 0, len(observed))
	for _, ev := range observed {
		if ev.Family() != family {
			continue
		}
		if eventType == testformat.EventTypeCmapWithoutConnectionReady && ev.Name == "connectionReadyEvent" {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// VerifyEvents compares the events observed on a client with an event
// expectation. In exact mode the counts must be equal; in prefix mode only
// the first len(exp.Events) observed events are compared. Field documents
// match partially, with order-sensitive arrays.
func VerifyEvents(exp testformat.ExpectedEvents, observed []Event, label string) error {
	return VerifyEventsAs(exp, exp.Type(), observed, label)
}

// VerifyEventsAs is VerifyEvents with an explicit event type, which may be
// EventTypeCmapWithoutConnectionReady.
func VerifyEventsAs(exp testformat.ExpectedEvents, eventType testformat.ExpectedEventType, observed []Event, label string) error {
	actual := FilterEvents(observed, eventType)

	switch exp.MatchMode() {
	case testformat.EventMatchPrefix:
		if len(actual) < len(exp.Events) {
			return failure("expectEvents", "%s: expected at least %d %s events for client %s, got %d",
				label, len(exp.Events), eventType, exp.Client, len(actual))
		}
		actual = actual[:len(exp.Events)]
	default:
		if len(actual) != len(exp.Events) {
			return failure("expectEvents", "%s: expected %d %s events for client %s, got %d: %v",
				label, len(exp.Events), eventType, exp.Client, len(actual), eventNames(actual))
		}
	}

	for i, want := range exp.Events {
		got := actual[i]
		if got.Name != want.Name {
			return failure("expectEvents", "%s: event %d for client %s: expected %s, got %s",
				label, i, exp.Client, want.Name, got.Name)
		}
		if len(want.Fields) == 0 {
			continue
		}
		errCtx := fmt.Sprintf("%s: event %d (%s) for client %s", label, i, want.Name, exp.Client)
		if err := match.DocumentsMatch(want.Fields, got.Fields, true, errCtx); err != nil {
			return &VerificationError{Clause: "expectEvents", Message: err.Error()}
		}
	}
	return nil
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}
