// Package workflow implements the review pipeline state machine: writer
// drafts, AI review loop, human review, and revision cycles, with resumable
// snapshot persistence and an append-only event log.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/persona"
)

// State names one stage of a workflow run.
type State string

const (
	StateCreated       State = "CREATED"
	StateAIReview      State = "AI_REVIEW"
	StateAIRevision    State = "AI_REVISION"
	StateHumanReview   State = "HUMAN_REVIEW"
	StateHumanRevision State = "HUMAN_REVISION"
	StatePublished     State = "PUBLISHED"
	StateRejectedFinal State = "REJECTED_FINAL"
	StateFailed        State = "FAILED"
	StateCancelled     State = "CANCELLED"
)

var knownStates = map[State]struct{}{
	StateCreated:       {},
	StateAIReview:      {},
	StateAIRevision:    {},
	StateHumanReview:   {},
	StateHumanRevision: {},
	StatePublished:     {},
	StateRejectedFinal: {},
	StateFailed:        {},
	StateCancelled:     {},
}

// Known reports whether s is a member of the closed state set.
func (s State) Known() bool {
	_, ok := knownStates[s]
	return ok
}

// Terminal reports whether the run is finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StatePublished, StateRejectedFinal, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Source identifies who produced a piece of review feedback.
type Source string

const (
	SourceAI    Source = "ai"
	SourceHuman Source = "human"
)

// Verdict is a reviewer's decision about the current post version.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Feedback is one reviewer response. Entries accumulate in order; the latest
// one drives the next revision prompt.
type Feedback struct {
	Source    Source    `json:"source"`
	Verdict   Verdict   `json:"verdict"`
	Comments  string    `json:"comments,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is a reviewer verdict plus comments, before it is recorded as
// Feedback.
type Decision struct {
	Verdict  Verdict
	Comments string
}

// Snapshot is the complete persisted state of one workflow run: everything
// needed to resume after interruption. It is overwritten on every transition
// and archived on terminal states.
type Snapshot struct {
	RunID              string             `json:"run_id"`
	State              State              `json:"state"`
	Theme              string             `json:"theme"`
	Author             string             `json:"author"`
	Tags               []string           `json:"tags,omitempty"`
	Post               blogstore.Post     `json:"post"`
	WriterPersona      persona.Descriptor `json:"writer_persona"`
	ReviewerPersona    persona.Descriptor `json:"reviewer_persona"`
	AIRevisionCount    int                `json:"ai_revision_count"`
	HumanRevisionCount int                `json:"human_revision_count"`
	FeedbackHistory    []Feedback         `json:"feedback_history,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Validate rejects snapshots that cannot drive a resume. Corrupt snapshots
// are surfaced, never repaired.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.RunID) == "" {
		return fmt.Errorf("workflow: snapshot missing run id")
	}
	if !s.State.Known() {
		return fmt.Errorf("workflow: snapshot has unknown state %q", s.State)
	}
	if s.Post.ID == "" {
		return fmt.Errorf("workflow: snapshot missing post id")
	}
	if s.Post.Version < 1 {
		return fmt.Errorf("workflow: snapshot post version %d is invalid", s.Post.Version)
	}
	if err := s.WriterPersona.Validate(); err != nil {
		return fmt.Errorf("workflow: snapshot writer persona: %w", err)
	}
	if err := s.ReviewerPersona.Validate(); err != nil {
		return fmt.Errorf("workflow: snapshot reviewer persona: %w", err)
	}
	return nil
}

// LatestFeedback returns the most recent feedback entry, if any.
func (s Snapshot) LatestFeedback() (Feedback, bool) {
	if len(s.FeedbackHistory) == 0 {
		return Feedback{}, false
	}
	return s.FeedbackHistory[len(s.FeedbackHistory)-1], true
}
