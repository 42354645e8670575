package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event types recorded by the orchestrator.
const (
	EventRunStarted        = "run_started"
	EventStateEnter        = "state_enter"
	EventStateExit         = "state_exit"
	EventDraftCreated      = "draft_created"
	EventReview            = "review"
	EventRevision          = "revision"
	EventVerdictParseError = "verdict_parse_error"
	EventGenerationRetry   = "generation_retry"
	EventRunCancelled      = "run_cancelled"
	EventRunCompleted      = "run_completed"
)

// Event is one append-only log entry.
type Event struct {
	Type      string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// Metrics are derived purely from the recorded event sequence; calling
// Metrics never changes it.
type Metrics struct {
	TotalDuration  time.Duration           `json:"total_duration"`
	StateDurations map[State]time.Duration `json:"state_durations,omitempty"`
	AIRevisions    int                     `json:"ai_revisions"`
	HumanRevisions int                     `json:"human_revisions"`
	EventCount     int                     `json:"event_count"`
}

// Recorder accumulates workflow events in memory. One recorder belongs to
// exactly one run; it is never shared across runs. Timestamps are clamped to
// be non-decreasing so metrics derivation stays well defined even with a
// coarse clock.
type Recorder struct {
	mu     sync.Mutex
	now    func() time.Time
	last   time.Time
	events []Event
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock injects a deterministic clock (tests).
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRecorderEvents seeds the recorder with previously persisted events so a
// resumed run keeps appending to its history instead of starting a new log.
// New timestamps clamp against the last seeded entry.
func WithRecorderEvents(events []Event) RecorderOption {
	return func(r *Recorder) {
		if len(events) == 0 {
			return
		}
		r.events = append([]Event{}, events...)
		r.last = events[len(events)-1].Timestamp
	}
}

// NewRecorder creates an empty event recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	rec := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Log appends one event. Nothing ever removes or edits a prior entry.
func (r *Recorder) Log(eventType string, payload map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UTC()
	if ts.Before(r.last) {
		ts = r.last
	}
	r.last = ts
	var copied map[string]string
	if len(payload) > 0 {
		copied = make(map[string]string, len(payload))
		for k, v := range payload {
			copied[k] = v
		}
	}
	r.events = append(r.events, Event{Type: eventType, Timestamp: ts, Payload: copied})
}

// Events returns a copy of the accumulated log.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// SaveLog serializes the accumulated events to path. It only reads the log.
func (r *Recorder) SaveLog(path string) error {
	events := r.Events()
	encoded, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save log", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Op: "save log", Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return &PersistenceError{Op: "save log", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &PersistenceError{Op: "save log", Err: err}
	}
	return nil
}

// LoadEvents reads a previously saved event log.
func LoadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load log", Err: err}
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, &PersistenceError{Op: "load log", Err: err}
	}
	return events, nil
}

// Metrics derives aggregates from the event sequence. Total duration spans
// the first to last event; per-state durations pair each state_enter with the
// following state_exit for the same state; revision counts tally entries into
// the revision states.
func (r *Recorder) Metrics() Metrics {
	return DeriveMetrics(r.Events())
}

// DeriveMetrics computes Metrics from an event slice. Pure and repeatable:
// the same events always produce the same metrics.
func DeriveMetrics(events []Event) Metrics {
	metrics := Metrics{EventCount: len(events)}
	if len(events) == 0 {
		return metrics
	}
	metrics.TotalDuration = events[len(events)-1].Timestamp.Sub(events[0].Timestamp)
	metrics.StateDurations = make(map[State]time.Duration)
	entered := make(map[State]time.Time)
	for _, event := range events {
		state := State(event.Payload["state"])
		switch event.Type {
		case EventStateEnter:
			entered[state] = event.Timestamp
			switch state {
			case StateAIRevision:
				metrics.AIRevisions++
			case StateHumanRevision:
				metrics.HumanRevisions++
			}
		case EventStateExit:
			if start, ok := entered[state]; ok {
				metrics.StateDurations[state] += event.Timestamp.Sub(start)
				delete(entered, state)
			}
		}
	}
	return metrics
}
