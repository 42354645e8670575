package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ferrisk/draftloop/internal/analyzer"
	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/generation"
	"github.com/ferrisk/draftloop/internal/persona"
)

// Additional event types emitted by the orchestrator.
const (
	EventRunResumed    = "run_resumed"
	EventRevisionLimit = "revision_limit_reached"
)

// PostStore is the slice of the blog storage service the orchestrator needs.
type PostStore interface {
	Create(title, content, author string, tags []string) (blogstore.Post, error)
	Get(id string) (blogstore.Post, error)
	AppendVersion(id, title, content string) (blogstore.Post, error)
}

// HumanReviewer supplies the human decision for a post awaiting review.
// Implementations may block for as long as a human takes; the orchestrator
// only calls it when one is configured, otherwise it suspends instead.
type HumanReviewer interface {
	Review(ctx context.Context, post blogstore.Post, history []Feedback, report analyzer.Report) (Decision, error)
}

// ProgressLog receives human-readable progress lines. The run's event
// recorder stays the source of truth; this is purely for operators.
type ProgressLog interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the revision-bound and retry policy for a run. Non-positive
// values fall back to the defaults.
type Config struct {
	MaxAIRevisions       int
	MaxHumanRevisions    int
	MaxGenerationRetries int
}

const (
	defaultMaxAIRevisions       = 3
	defaultMaxHumanRevisions    = 2
	defaultMaxGenerationRetries = 2
)

func (c Config) withDefaults() Config {
	if c.MaxAIRevisions <= 0 {
		c.MaxAIRevisions = defaultMaxAIRevisions
	}
	if c.MaxHumanRevisions <= 0 {
		c.MaxHumanRevisions = defaultMaxHumanRevisions
	}
	if c.MaxGenerationRetries <= 0 {
		c.MaxGenerationRetries = defaultMaxGenerationRetries
	}
	return c
}

// Orchestrator drives one workflow run at a time through the writer /
// AI-review / human-review state machine. Every transition writes the post
// version first, then the snapshot, then the event, so a crash leaves the
// persisted state no further ahead than what storage confirmed.
type Orchestrator struct {
	posts     PostStore
	gen       generation.Generator
	snapshots SnapshotStore
	rec       *Recorder
	human     HumanReviewer
	progress  ProgressLog
	cfg       Config
	now       func() time.Time
	newRunID  func() string
}

// Option customizes the orchestrator instance.
type Option func(*Orchestrator)

// WithConfig overrides the revision and retry policy.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg.withDefaults()
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithHumanReviewer attaches an interactive human reviewer. Without one the
// orchestrator suspends at HUMAN_REVIEW and returns to the caller.
func WithHumanReviewer(human HumanReviewer) Option {
	return func(o *Orchestrator) {
		o.human = human
	}
}

// WithProgressLog attaches an operator-facing progress log.
func WithProgressLog(progress ProgressLog) Option {
	return func(o *Orchestrator) {
		o.progress = progress
	}
}

// WithRunIDSource overrides run id generation (tests).
func WithRunIDSource(source func() string) Option {
	return func(o *Orchestrator) {
		if source != nil {
			o.newRunID = source
		}
	}
}

// New wires an orchestrator to its collaborators. The recorder may be nil,
// in which case a fresh one is created for the run.
func New(posts PostStore, gen generation.Generator, snapshots SnapshotStore, rec *Recorder, opts ...Option) (*Orchestrator, error) {
	if posts == nil {
		return nil, fmt.Errorf("workflow: post store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("workflow: generator is required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("workflow: snapshot store is required")
	}
	if rec == nil {
		rec = NewRecorder()
	}
	o := &Orchestrator{
		posts:     posts,
		gen:       gen,
		snapshots: snapshots,
		rec:       rec,
		cfg:       Config{}.withDefaults(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Recorder exposes the run's event recorder.
func (o *Orchestrator) Recorder() *Recorder { return o.rec }

// RunRequest starts a workflow run for a theme with two personas.
type RunRequest struct {
	Theme    string
	Author   string
	Tags     []string
	Writer   persona.Descriptor
	Reviewer persona.Descriptor
}

func (r RunRequest) validate() error {
	if strings.TrimSpace(r.Theme) == "" {
		return fmt.Errorf("workflow: theme is required")
	}
	if err := r.Writer.Validate(); err != nil {
		return fmt.Errorf("workflow: writer persona: %w", err)
	}
	if err := r.Reviewer.Validate(); err != nil {
		return fmt.Errorf("workflow: reviewer persona: %w", err)
	}
	return nil
}

// Start creates the initial draft, persists it, and drives the run until it
// suspends for human review or reaches a terminal state. If the storage
// service rejects the initial create, no snapshot is ever written.
func (o *Orchestrator) Start(ctx context.Context, req RunRequest) (Snapshot, error) {
	if err := req.validate(); err != nil {
		return Snapshot{}, err
	}
	author := req.Author
	if author == "" {
		author = "draftloop"
	}
	o.rec.Log(EventRunStarted, map[string]string{"theme": req.Theme, "author": author})
	o.infof("starting run for theme %q", req.Theme)

	text, err := o.complete(ctx, generation.DraftPrompt(req.Writer.Text, req.Theme, author))
	if err != nil {
		return o.failWithoutSnapshot(err)
	}
	title, content := generation.ParseDraft(text)
	post, err := o.posts.Create(title, content, author, req.Tags)
	if err != nil {
		return o.failWithoutSnapshot(&StorageError{Op: "create", Err: err})
	}
	o.rec.Log(EventDraftCreated, map[string]string{"post_id": post.ID, "title": post.Title})
	o.infof("draft created: %s (post %s)", post.Title, post.ID)

	snap := Snapshot{
		RunID:           o.newRunID(),
		State:           StateCreated,
		Theme:           req.Theme,
		Author:          author,
		Tags:            append([]string{}, req.Tags...),
		Post:            post,
		WriterPersona:   req.Writer,
		ReviewerPersona: req.Reviewer,
		UpdatedAt:       o.now().UTC(),
	}
	if err := o.snapshots.Save(snap); err != nil {
		return o.failWithoutSnapshot(err)
	}
	o.rec.Log(EventStateEnter, map[string]string{"state": string(StateCreated)})
	return o.drive(ctx, &snap)
}

// Resume reloads the persisted snapshot and continues the run. Confirmed
// generation and storage calls are never replayed: a revision whose post
// version already exists in storage is adopted instead of regenerated.
func (o *Orchestrator) Resume(ctx context.Context) (Snapshot, error) {
	snap, err := o.snapshots.Load()
	if err != nil {
		return Snapshot{}, err
	}
	if snap.State.Terminal() {
		return snap, nil
	}
	o.rec.Log(EventRunResumed, map[string]string{"state": string(snap.State)})
	o.infof("resuming run %s in state %s", snap.RunID, snap.State)
	return o.drive(ctx, &snap)
}

// SubmitHumanReview applies a human decision to a run paused at HUMAN_REVIEW
// and drives the run onward: to PUBLISHED, REJECTED_FINAL, or back through a
// revision and a fresh AI review pass.
func (o *Orchestrator) SubmitHumanReview(ctx context.Context, decision Decision) (Snapshot, error) {
	snap, err := o.snapshots.Load()
	if err != nil {
		return Snapshot{}, err
	}
	if snap.State != StateHumanReview {
		return snap, fmt.Errorf("%w: state is %s", ErrNotAwaitingHuman, snap.State)
	}
	if err := o.applyHumanDecision(&snap, decision); err != nil {
		return snap, err
	}
	if snap.State.Terminal() {
		return snap, nil
	}
	return o.drive(ctx, &snap)
}

// drive advances the state machine until the run suspends or terminates.
func (o *Orchestrator) drive(ctx context.Context, snap *Snapshot) (Snapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return o.cancelled(*snap, err)
		}
		switch snap.State {
		case StateCreated:
			if err := o.transition(snap, StateAIReview); err != nil {
				return *snap, err
			}
		case StateAIReview:
			if err := o.aiReviewStep(ctx, snap); err != nil {
				return o.stepFailure(*snap, err)
			}
		case StateAIRevision:
			if err := o.revisionStep(ctx, snap, SourceAI); err != nil {
				return o.stepFailure(*snap, err)
			}
		case StateHumanReview:
			if o.human == nil {
				o.infof("run %s awaiting human review (post %s v%d)", snap.RunID, snap.Post.ID, snap.Post.Version)
				return *snap, nil
			}
			decision, err := o.human.Review(ctx, snap.Post, append([]Feedback{}, snap.FeedbackHistory...), analyzer.Analyze(snap.Post.Content))
			if err != nil {
				if ctxErr := contextError(err); ctxErr != nil {
					return o.cancelled(*snap, ctxErr)
				}
				// the reviewer quit without deciding; the run is neither
				// completed nor failed, it stays suspended at human review
				o.infof("run %s still awaiting human review: %v", snap.RunID, err)
				return *snap, fmt.Errorf("workflow: human review: %w", err)
			}
			if err := o.applyHumanDecision(snap, decision); err != nil {
				return *snap, err
			}
		case StateHumanRevision:
			if err := o.revisionStep(ctx, snap, SourceHuman); err != nil {
				return o.stepFailure(*snap, err)
			}
		default:
			return *snap, nil
		}
	}
}

// aiReviewStep runs one AI review pass and decides the next state.
func (o *Orchestrator) aiReviewStep(ctx context.Context, snap *Snapshot) error {
	report := analyzer.Analyze(snap.Post.Content)
	prompt := generation.ReviewPrompt(snap.ReviewerPersona.Text, snap.Post.Title, snap.Post.Content, report)
	text, err := o.complete(ctx, prompt)
	if err != nil {
		return err
	}
	decision, derr := DecodeVerdict(text)
	if derr != nil {
		o.rec.Log(EventVerdictParseError, map[string]string{"response": truncate(text, 120)})
		o.warnf("reviewer verdict unparseable; treating as rejection")
		decision = Decision{
			Verdict:  VerdictReject,
			Comments: "reviewer response did not contain a recognizable verdict; treated as rejection",
		}
	}
	snap.FeedbackHistory = append(snap.FeedbackHistory, Feedback{
		Source:    SourceAI,
		Verdict:   decision.Verdict,
		Comments:  decision.Comments,
		Timestamp: o.now().UTC(),
	})
	snap.UpdatedAt = o.now().UTC()
	if err := o.snapshots.Save(*snap); err != nil {
		return err
	}
	o.rec.Log(EventReview, map[string]string{"source": string(SourceAI), "verdict": string(decision.Verdict)})

	if decision.Verdict == VerdictApprove {
		o.infof("ai reviewer approved post %s v%d", snap.Post.ID, snap.Post.Version)
		return o.transition(snap, StateHumanReview)
	}
	if snap.AIRevisionCount >= o.cfg.MaxAIRevisions {
		// Forward progress guarantee: a reviewer that never approves cannot
		// stall the run.
		o.rec.Log(EventRevisionLimit, map[string]string{"bound": "ai", "count": strconv.Itoa(snap.AIRevisionCount)})
		o.warnf("ai revision bound reached; escalating to human review")
		return o.transition(snap, StateHumanReview)
	}
	o.infof("ai reviewer rejected post %s v%d", snap.Post.ID, snap.Post.Version)
	return o.transition(snap, StateAIRevision)
}

// revisionStep regenerates the post from the latest feedback and persists it
// as a new version, then returns the run to AI review. A version that storage
// already confirmed (a crash after the post write but before the snapshot
// overwrite) is adopted instead of regenerated.
func (o *Orchestrator) revisionStep(ctx context.Context, snap *Snapshot, source Source) error {
	target := snap.Post.Version + 1
	var post blogstore.Post
	if latest, err := o.posts.Get(snap.Post.ID); err == nil && latest.Version >= target {
		post = latest
		o.infof("adopting already-stored revision v%d of post %s", post.Version, post.ID)
	} else {
		feedback := o.revisionFeedback(snap, source)
		prompt := generation.RevisionPrompt(snap.WriterPersona.Text, snap.Post.Title, snap.Post.Content, feedback)
		text, err := o.complete(ctx, prompt)
		if err != nil {
			return err
		}
		title, content := generation.ParseDraft(text)
		post, err = o.posts.AppendVersion(snap.Post.ID, title, content)
		if err != nil {
			return &StorageError{Op: "append version", Err: err}
		}
	}
	snap.Post = post
	if source == SourceHuman {
		snap.HumanRevisionCount++
		// A human-driven revision always earns a fresh AI review pass.
		snap.AIRevisionCount = 0
	} else {
		snap.AIRevisionCount++
	}
	if err := o.transition(snap, StateAIReview); err != nil {
		return err
	}
	o.rec.Log(EventRevision, map[string]string{
		"source":  string(source),
		"version": strconv.Itoa(post.Version),
	})
	o.infof("post %s revised to v%d (%s feedback)", post.ID, post.Version, source)
	return nil
}

// applyHumanDecision records human feedback and moves the run to PUBLISHED,
// REJECTED_FINAL, or HUMAN_REVISION.
func (o *Orchestrator) applyHumanDecision(snap *Snapshot, decision Decision) error {
	if decision.Verdict != VerdictApprove && decision.Verdict != VerdictReject {
		return fmt.Errorf("workflow: human verdict %q is not approve or reject", decision.Verdict)
	}
	snap.FeedbackHistory = append(snap.FeedbackHistory, Feedback{
		Source:    SourceHuman,
		Verdict:   decision.Verdict,
		Comments:  decision.Comments,
		Timestamp: o.now().UTC(),
	})
	snap.UpdatedAt = o.now().UTC()
	if err := o.snapshots.Save(*snap); err != nil {
		return err
	}
	o.rec.Log(EventReview, map[string]string{"source": string(SourceHuman), "verdict": string(decision.Verdict)})

	switch {
	case decision.Verdict == VerdictApprove:
		if err := o.transition(snap, StatePublished); err != nil {
			return err
		}
		o.rec.Log(EventRunCompleted, map[string]string{"state": string(StatePublished)})
		o.infof("human approved; post %s published at v%d", snap.Post.ID, snap.Post.Version)
	case snap.HumanRevisionCount >= o.cfg.MaxHumanRevisions:
		o.rec.Log(EventRevisionLimit, map[string]string{"bound": "human", "count": strconv.Itoa(snap.HumanRevisionCount)})
		if err := o.transition(snap, StateRejectedFinal); err != nil {
			return err
		}
		o.rec.Log(EventRunCompleted, map[string]string{"state": string(StateRejectedFinal)})
		o.warnf("human revision bound reached; run rejected")
	default:
		o.infof("human rejected; revising post %s", snap.Post.ID)
		return o.transition(snap, StateHumanRevision)
	}
	return nil
}

// transition moves the snapshot to the next state, persists it, and then
// records the state change events, in that order.
func (o *Orchestrator) transition(snap *Snapshot, next State) error {
	prev := snap.State
	snap.State = next
	snap.UpdatedAt = o.now().UTC()
	if err := o.snapshots.Save(*snap); err != nil {
		snap.State = prev
		return err
	}
	o.rec.Log(EventStateExit, map[string]string{"state": string(prev)})
	o.rec.Log(EventStateEnter, map[string]string{"state": string(next)})
	return nil
}

// complete calls the generation service with bounded retries. Context
// cancellation aborts immediately; other failures retry up to the configured
// bound before surfacing a GenerationError.
func (o *Orchestrator) complete(ctx context.Context, prompt generation.Prompt) (string, error) {
	attempts := o.cfg.MaxGenerationRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := o.gen.Complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if attempt < attempts {
			o.rec.Log(EventGenerationRetry, map[string]string{
				"attempt": strconv.Itoa(attempt),
				"error":   err.Error(),
			})
			o.warnf("generation attempt %d failed: %v", attempt, err)
		}
	}
	return "", &GenerationError{Attempts: attempts, Err: lastErr}
}

// revisionFeedback builds the feedback text for the next revision prompt.
// Human-driven revisions merge the latest human comments with the most recent
// substantive AI feedback; AI-driven revisions use the latest feedback only.
func (o *Orchestrator) revisionFeedback(snap *Snapshot, source Source) string {
	latest, ok := snap.LatestFeedback()
	if !ok {
		return "Improve the overall quality of the post."
	}
	if source != SourceHuman {
		return latest.Comments
	}
	var parts []string
	if latest.Comments != "" {
		parts = append(parts, "Human reviewer: "+latest.Comments)
	}
	for i := len(snap.FeedbackHistory) - 1; i >= 0; i-- {
		fb := snap.FeedbackHistory[i]
		if fb.Source == SourceAI && fb.Verdict == VerdictReject && fb.Comments != "" {
			parts = append(parts, "Earlier AI reviewer note: "+fb.Comments)
			break
		}
	}
	if len(parts) == 0 {
		return "Address the human reviewer's concerns."
	}
	return strings.Join(parts, "\n")
}

// cancelled reports a cancellation without touching the persisted snapshot;
// whatever transition last completed is exactly what a later resume sees.
func (o *Orchestrator) cancelled(snap Snapshot, cause error) (Snapshot, error) {
	o.rec.Log(EventRunCancelled, map[string]string{"state": string(snap.State)})
	o.warnf("run %s cancelled in state %s", snap.RunID, snap.State)
	snap.State = StateCancelled
	return snap, fmt.Errorf("%w: %v", ErrCancelled, cause)
}

// stepFailure distinguishes cancellation from real failures. Failures never
// overwrite the last good snapshot; the returned snapshot reports FAILED to
// the caller while the persisted one stays inspectable and resumable.
func (o *Orchestrator) stepFailure(snap Snapshot, err error) (Snapshot, error) {
	if ctxErr := contextError(err); ctxErr != nil {
		return o.cancelled(snap, ctxErr)
	}
	o.rec.Log(EventRunCompleted, map[string]string{"state": string(StateFailed), "error": err.Error()})
	o.errorf("run %s failed in state %s: %v", snap.RunID, snap.State, err)
	snap.State = StateFailed
	return snap, err
}

func (o *Orchestrator) failWithoutSnapshot(err error) (Snapshot, error) {
	if ctxErr := contextError(err); ctxErr != nil {
		o.rec.Log(EventRunCancelled, map[string]string{"state": string(StateCreated)})
		return Snapshot{State: StateCancelled}, fmt.Errorf("%w: %v", ErrCancelled, ctxErr)
	}
	o.rec.Log(EventRunCompleted, map[string]string{"state": string(StateFailed), "error": err.Error()})
	o.errorf("run failed before a snapshot was written: %v", err)
	return Snapshot{State: StateFailed}, err
}

func contextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}

func (o *Orchestrator) infof(format string, args ...any) {
	if o.progress != nil {
		o.progress.Info(format, args...)
	}
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if o.progress != nil {
		o.progress.Warn(format, args...)
	}
}

func (o *Orchestrator) errorf(format string, args ...any) {
	if o.progress != nil {
		o.progress.Error(format, args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
