package mongoenv

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"

	"github.com/roach88/unifiedrunner/internal/expect"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

var sensitiveCommands = []string{
	"authenticate", "saslstart", "saslcontinue", "getnonce",
	"createuser", "updateuser", "copydbgetnonce", "copydbsaslstart", "copydb",
}

var poolEventNames = map[string]string{
	event.PoolCreated:        "poolCreatedEvent",
	event.PoolReady:          "poolReadyEvent",
	event.PoolCleared:        "poolClearedEvent",
	event.PoolClosedEvent:    "poolClosedEvent",
	event.ConnectionCreated:  "connectionCreatedEvent",
	event.ConnectionReady:    "connectionReadyEvent",
	event.ConnectionClosed:   "connectionClosedEvent",
	event.GetStarted:         "connectionCheckOutStartedEvent",
	event.GetFailed:          "connectionCheckOutFailedEvent",
	event.GetSucceeded:       "connectionCheckedOutEvent",
	event.ConnectionReturned: "connectionCheckedInEvent",
}

// Recorder collects the events a client entity observes, converted to
// expect.Event in publication order.
type Recorder struct {
	observe          []string
	ignore           []string
	observeSensitive bool

	mu     sync.Mutex
	events []expect.Event
	// Request ids of started commands that were filtered out, so their
	// succeeded and failed events are dropped too.
	skipped map[int64]bool
}

// NewRecorder returns a recorder honoring the client's observeEvents,
// ignoreCommandMonitoringEvents and observeSensitiveCommands settings.
func NewRecorder(c *testformat.Client) *Recorder {
	r := &Recorder{
		observe: c.ObserveEvents,
		ignore:  c.IgnoreCommandMonitoringEvents,
		skipped: make(map[int64]bool),
	}
	if c.ObserveSensitiveCommands != nil {
		r.observeSensitive = *c.ObserveSensitiveCommands
	}
	return r
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []expect.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.skipped = make(map[int64]bool)
}

// CommandMonitor returns the driver command monitor feeding the recorder.
func (r *Recorder) CommandMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			if r.skipCommand(e.CommandName, e.Command) {
				r.markSkipped(e.RequestID)
				return
			}
			command, _ := DecodeDocument(e.Command)
			r.record("commandStartedEvent", testformat.Document{
				"command":               command,
				"commandName":           e.CommandName,
				"databaseName":          e.DatabaseName,
				"hasServiceId":          e.ServiceID != nil,
				"hasServerConnectionId": e.ServerConnectionID64 != nil,
			})
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			if r.wasSkipped(e.RequestID) {
				return
			}
			reply, _ := DecodeDocument(e.Reply)
			fields := finishedFields(e.CommandFinishedEvent)
			fields["reply"] = reply
			r.record("commandSucceededEvent", fields)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			if r.wasSkipped(e.RequestID) {
				return
			}
			r.record("commandFailedEvent", finishedFields(e.CommandFinishedEvent))
		},
	}
}

// PoolMonitor returns the driver pool monitor feeding the recorder.
func (r *Recorder) PoolMonitor() *event.PoolMonitor {
	return &event.PoolMonitor{
		Event: func(e *event.PoolEvent) {
			name, ok := poolEventNames[e.Type]
			if !ok {
				return
			}
			fields := testformat.Document{}
			switch name {
			case "poolClearedEvent":
				fields["hasServiceId"] = e.ServiceID != nil
				fields["interruptInUseConnections"] = e.Interruption
			case "connectionClosedEvent", "connectionCheckOutFailedEvent":
				fields["reason"] = e.Reason
			}
			r.record(name, fields)
		},
	}
}

func finishedFields(e event.CommandFinishedEvent) testformat.Document {
	return testformat.Document{
		"commandName":           e.CommandName,
		"databaseName":          e.DatabaseName,
		"hasServiceId":          e.ServiceID != nil,
		"hasServerConnectionId": e.ServerConnectionID64 != nil,
	}
}

func (r *Recorder) record(name string, fields testformat.Document) {
	if !slices.Contains(r.observe, name) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, expect.Event{Name: name, Fields: fields})
}

func (r *Recorder) skipCommand(name string, command bson.Raw) bool {
	if slices.Contains(r.ignore, name) {
		return true
	}
	if r.observeSensitive {
		return false
	}
	lower := strings.ToLower(name)
	if slices.Contains(sensitiveCommands, lower) {
		return true
	}
	// hello and its legacy alias are sensitive when they carry speculative
	// authentication.
	if lower == "hello" || lower == "ismaster" {
		if _, err := command.LookupErr("speculativeAuthenticate"); err == nil {
			return true
		}
	}
	return false
}

func (r *Recorder) markSkipped(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[id] = true
}

func (r *Recorder) wasSkipped(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped[id]
}
