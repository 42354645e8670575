package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferrisk/draftloop/internal/analyzer"
	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/generation"
	"github.com/ferrisk/draftloop/internal/persona"
)

const draftResponse = "TITLE: Remote Work Tips\n\nCONTENT:\n# Remote Work Tips\n\nStay focused. Take breaks. Talk to people."

func revisedResponse(n int) string {
	return fmt.Sprintf("TITLE: Remote Work Tips\n\nCONTENT:\n# Remote Work Tips\n\nRevision %d. Stay focused. Take breaks.", n)
}

const (
	approveResponse = "DECISION: APPROVE\nFEEDBACK: reads well"
	rejectResponse  = "DECISION: REJECT\nFEEDBACK: needs more depth"
)

type harness struct {
	orc   *Orchestrator
	posts *blogstore.Store
	repo  *Repository
	gen   *generation.Script
}

func newHarness(t *testing.T, gen *generation.Script, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	posts := blogstore.NewStore(filepath.Join(dir, "posts"))
	repo := NewRepository(filepath.Join(dir, "state", "snapshot.json"))
	orc, err := New(posts, gen, repo, NewRecorder(), opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return &harness{orc: orc, posts: posts, repo: repo, gen: gen}
}

func testRequest() RunRequest {
	return RunRequest{
		Theme:    "Remote Work Tips",
		Author:   "blogbot",
		Tags:     []string{"remote", "productivity"},
		Writer:   persona.DefaultWriter(),
		Reviewer: persona.DefaultReviewer(),
	}
}

func countEvents(events []Event, eventType string) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestRunPublishesAfterTwoAIRevisions(t *testing.T) {
	h := newHarness(t, generation.NewScript(
		draftResponse,
		rejectResponse,
		revisedResponse(1),
		rejectResponse,
		revisedResponse(2),
		approveResponse,
	))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want %s", snap.State, StateHumanReview)
	}
	if snap.Post.Version != 3 {
		t.Fatalf("post version = %d, want 3", snap.Post.Version)
	}
	if snap.AIRevisionCount != 2 {
		t.Fatalf("ai revision count = %d, want 2", snap.AIRevisionCount)
	}

	final, err := h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictApprove, Comments: "ship it"})
	if err != nil {
		t.Fatalf("submit human review: %v", err)
	}
	if final.State != StatePublished {
		t.Fatalf("state = %s, want %s", final.State, StatePublished)
	}
	if final.Post.Version != 3 || final.HumanRevisionCount != 0 {
		t.Fatalf("final = v%d / %d human revisions, want v3 / 0", final.Post.Version, final.HumanRevisionCount)
	}
	if len(final.FeedbackHistory) != 4 {
		t.Fatalf("feedback entries = %d, want 4", len(final.FeedbackHistory))
	}
	last, _ := final.LatestFeedback()
	if last.Source != SourceHuman || last.Verdict != VerdictApprove {
		t.Fatalf("latest feedback = %+v", last)
	}

	persisted, err := h.repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.State != StatePublished {
		t.Fatalf("persisted state = %s, want %s", persisted.State, StatePublished)
	}

	events := h.orc.Recorder().Events()
	if countEvents(events, EventRunCompleted) != 1 {
		t.Fatalf("expected exactly one run_completed event")
	}
	metrics := h.orc.Recorder().Metrics()
	if metrics.AIRevisions != 2 || metrics.HumanRevisions != 0 {
		t.Fatalf("metrics revisions = %d/%d, want 2/0", metrics.AIRevisions, metrics.HumanRevisions)
	}
}

func TestAIRevisionBoundForcesHumanReview(t *testing.T) {
	h := newHarness(t, generation.NewScript(
		draftResponse,
		rejectResponse,
		revisedResponse(1),
		rejectResponse,
		revisedResponse(2),
		rejectResponse,
	), WithConfig(Config{MaxAIRevisions: 2, MaxHumanRevisions: 2, MaxGenerationRetries: 2}))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want forced %s", snap.State, StateHumanReview)
	}
	if snap.AIRevisionCount != 2 || snap.Post.Version != 3 {
		t.Fatalf("got %d revisions at v%d, want 2 at v3", snap.AIRevisionCount, snap.Post.Version)
	}
	if countEvents(h.orc.Recorder().Events(), EventRevisionLimit) != 1 {
		t.Fatalf("expected one revision_limit_reached event")
	}
}

func TestHumanRejectionBoundEndsRejectedFinal(t *testing.T) {
	h := newHarness(t, generation.NewScript(
		draftResponse,
		approveResponse,
		revisedResponse(1),
		approveResponse,
	), WithConfig(Config{MaxAIRevisions: 3, MaxHumanRevisions: 1, MaxGenerationRetries: 2}))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want %s", snap.State, StateHumanReview)
	}

	snap, err = h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictReject, Comments: "tone is off"})
	if err != nil {
		t.Fatalf("first human reject: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state after revision = %s, want %s", snap.State, StateHumanReview)
	}
	if snap.HumanRevisionCount != 1 || snap.AIRevisionCount != 0 {
		t.Fatalf("counts = %d human / %d ai, want 1 / 0", snap.HumanRevisionCount, snap.AIRevisionCount)
	}
	if snap.Post.Version != 2 {
		t.Fatalf("post version = %d, want 2", snap.Post.Version)
	}

	snap, err = h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictReject, Comments: "still not right"})
	if err != nil {
		t.Fatalf("second human reject: %v", err)
	}
	if snap.State != StateRejectedFinal {
		t.Fatalf("state = %s, want %s", snap.State, StateRejectedFinal)
	}
	persisted, err := h.repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.State != StateRejectedFinal {
		t.Fatalf("persisted state = %s, want %s", persisted.State, StateRejectedFinal)
	}
}

func TestHumanRevisionGetsFreshAIReviewPass(t *testing.T) {
	h := newHarness(t, generation.NewScript(
		draftResponse,
		approveResponse,
		revisedResponse(1),
		rejectResponse,
		revisedResponse(2),
		approveResponse,
	))

	if _, err := h.orc.Start(context.Background(), testRequest()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictReject, Comments: "add examples"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// human revision reset the AI counter, so the AI loop ran again in full
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want %s", snap.State, StateHumanReview)
	}
	if snap.Post.Version != 3 {
		t.Fatalf("post version = %d, want 3", snap.Post.Version)
	}
	if snap.HumanRevisionCount != 1 || snap.AIRevisionCount != 1 {
		t.Fatalf("counts = %d human / %d ai, want 1 / 1", snap.HumanRevisionCount, snap.AIRevisionCount)
	}

	// the human-driven revision prompt should carry the human comments
	var found bool
	for _, call := range h.gen.Calls() {
		if strings.Contains(call.User, "Human reviewer: add examples") {
			found = true
		}
	}
	if !found {
		t.Fatalf("revision prompt never carried the human feedback")
	}
}

func TestUnparseableVerdictTreatedAsRejection(t *testing.T) {
	h := newHarness(t, generation.NewScript(
		draftResponse,
		"I think it reads nicely overall.",
		revisedResponse(1),
		approveResponse,
	))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want %s", snap.State, StateHumanReview)
	}
	if snap.FeedbackHistory[0].Verdict != VerdictReject {
		t.Fatalf("unparseable verdict recorded as %s, want %s", snap.FeedbackHistory[0].Verdict, VerdictReject)
	}
	if countEvents(h.orc.Recorder().Events(), EventVerdictParseError) != 1 {
		t.Fatalf("expected one verdict_parse_error event")
	}
}

type failingPostStore struct{}

func (failingPostStore) Create(string, string, string, []string) (blogstore.Post, error) {
	return blogstore.Post{}, errors.New("disk full")
}
func (failingPostStore) Get(string) (blogstore.Post, error) {
	return blogstore.Post{}, errors.New("disk full")
}
func (failingPostStore) AppendVersion(string, string, string) (blogstore.Post, error) {
	return blogstore.Post{}, errors.New("disk full")
}

func TestInitialCreateFailureWritesNoSnapshot(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(filepath.Join(dir, "snapshot.json"))
	orc, err := New(failingPostStore{}, generation.NewScript(draftResponse), repo, NewRecorder())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	snap, err := orc.Start(context.Background(), testRequest())
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if _, err := repo.Load(); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected no snapshot on disk, got %v", err)
	}
}

func TestGenerationFailureKeepsLastGoodSnapshot(t *testing.T) {
	// Only the draft is scripted; the AI review call then exhausts the script
	// on every retry.
	h := newHarness(t, generation.NewScript(draftResponse),
		WithConfig(Config{MaxAIRevisions: 3, MaxHumanRevisions: 2, MaxGenerationRetries: 2}))

	snap, err := h.orc.Start(context.Background(), testRequest())
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if gerr.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", gerr.Attempts)
	}
	if snap.State != StateFailed {
		t.Fatalf("returned state = %s, want %s", snap.State, StateFailed)
	}

	persisted, err := h.repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.State != StateAIReview || persisted.Post.Version != 1 {
		t.Fatalf("persisted snapshot = %s v%d, want %s v1", persisted.State, persisted.Post.Version, StateAIReview)
	}
	if countEvents(h.orc.Recorder().Events(), EventGenerationRetry) != 2 {
		t.Fatalf("expected two generation_retry events")
	}

	// a fresh orchestrator over the same state resumes the stalled review
	resumed, err := New(h.posts, generation.NewScript(approveResponse), h.repo, NewRecorder())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	after, err := resumed.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if after.State != StateHumanReview {
		t.Fatalf("resumed state = %s, want %s", after.State, StateHumanReview)
	}
}

func TestResumeAdoptsAlreadyStoredRevision(t *testing.T) {
	h := newHarness(t, generation.NewScript(approveResponse))

	// Simulate a crash between the post write and the snapshot overwrite:
	// storage holds v2 while the snapshot still points at v1 in AI_REVISION.
	post, err := h.posts.Create("Remote Work Tips", "First pass.", "blogbot", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.posts.AppendVersion(post.ID, "Remote Work Tips", "Second pass."); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap := Snapshot{
		RunID:           "run-crash",
		State:           StateAIRevision,
		Theme:           "Remote Work Tips",
		Author:          "blogbot",
		Post:            post, // still v1
		WriterPersona:   persona.DefaultWriter(),
		ReviewerPersona: persona.DefaultReviewer(),
		FeedbackHistory: []Feedback{{Source: SourceAI, Verdict: VerdictReject, Comments: "too thin"}},
	}
	if err := h.repo.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	after, err := h.orc.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if after.Post.Version != 2 || after.Post.Content != "Second pass." {
		t.Fatalf("expected adopted v2, got v%d %q", after.Post.Version, after.Post.Content)
	}
	if after.AIRevisionCount != 1 {
		t.Fatalf("ai revision count = %d, want 1", after.AIRevisionCount)
	}
	// the only generation call was the follow-up review, never a regeneration
	if calls := h.gen.Calls(); len(calls) != 1 {
		t.Fatalf("generation calls = %d, want 1", len(calls))
	}
	latest, err := h.posts.Get(post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("store version = %d, want 2 (no duplicate revision)", latest.Version)
	}
}

func TestResumeRegeneratesUnconfirmedRevision(t *testing.T) {
	h := newHarness(t, generation.NewScript(revisedResponse(1), approveResponse))

	post, err := h.posts.Create("Remote Work Tips", "First pass.", "blogbot", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap := Snapshot{
		RunID:           "run-crash",
		State:           StateAIRevision,
		Theme:           "Remote Work Tips",
		Author:          "blogbot",
		Post:            post,
		WriterPersona:   persona.DefaultWriter(),
		ReviewerPersona: persona.DefaultReviewer(),
		FeedbackHistory: []Feedback{{Source: SourceAI, Verdict: VerdictReject, Comments: "too thin"}},
	}
	if err := h.repo.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	after, err := h.orc.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if after.State != StateHumanReview || after.Post.Version != 2 {
		t.Fatalf("resumed to %s v%d, want %s v2", after.State, after.Post.Version, StateHumanReview)
	}
}

func TestResumeTerminalSnapshotIsANoOp(t *testing.T) {
	h := newHarness(t, generation.NewScript(draftResponse, approveResponse))
	if _, err := h.orc.Start(context.Background(), testRequest()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictApprove}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := h.orc.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume terminal: %v", err)
	}
	if snap.State != StatePublished {
		t.Fatalf("state = %s, want %s", snap.State, StatePublished)
	}
}

func TestCancellationLeavesSnapshotResumable(t *testing.T) {
	h := newHarness(t, generation.NewScript(draftResponse, approveResponse))
	if _, err := h.orc.Start(context.Background(), testRequest()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := h.orc.Resume(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if snap.State != StateCancelled {
		t.Fatalf("reported state = %s, want %s", snap.State, StateCancelled)
	}

	persisted, err := h.repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.State != StateHumanReview {
		t.Fatalf("persisted state = %s, want untouched %s", persisted.State, StateHumanReview)
	}
	if countEvents(h.orc.Recorder().Events(), EventRunCancelled) != 1 {
		t.Fatalf("expected one run_cancelled event")
	}
}

func TestEventLogSurvivesSuspendResumeBoundary(t *testing.T) {
	h := newHarness(t, generation.NewScript(draftResponse, approveResponse))
	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateHumanReview {
		t.Fatalf("state = %s, want %s", snap.State, StateHumanReview)
	}
	logPath := filepath.Join(t.TempDir(), "events.json")
	if err := h.orc.Recorder().SaveLog(logPath); err != nil {
		t.Fatalf("save first segment: %v", err)
	}
	firstSegment := len(h.orc.Recorder().Events())

	// a fresh process finishes the run with a recorder seeded from the log
	events, err := LoadEvents(logPath)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	rec := NewRecorder(WithRecorderEvents(events))
	resumed, err := New(h.posts, generation.NewScript(), h.repo, rec)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	final, err := resumed.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictApprove})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if final.State != StatePublished {
		t.Fatalf("state = %s, want %s", final.State, StatePublished)
	}
	if err := rec.SaveLog(logPath); err != nil {
		t.Fatalf("save second segment: %v", err)
	}

	reloaded, err := LoadEvents(logPath)
	if err != nil {
		t.Fatalf("reload events: %v", err)
	}
	if len(reloaded) <= firstSegment {
		t.Fatalf("event log shrank across resume: %d then %d", firstSegment, len(reloaded))
	}
	counts := map[string]int{}
	for _, e := range reloaded {
		counts[e.Type]++
	}
	if counts[EventRunStarted] != 1 || counts[EventDraftCreated] != 1 {
		t.Fatalf("pre-suspension events lost: %v", counts)
	}
	if counts[EventRunCompleted] != 1 {
		t.Fatalf("run_completed = %d, want 1", counts[EventRunCompleted])
	}
	metrics := DeriveMetrics(reloaded)
	if metrics.EventCount != len(reloaded) {
		t.Fatalf("metrics over partial history: %d vs %d events", metrics.EventCount, len(reloaded))
	}
}

func TestSubmitHumanReviewRequiresHumanReviewState(t *testing.T) {
	h := newHarness(t, generation.NewScript(draftResponse))
	snap := testSnapshot()
	snap.State = StateAIReview
	if err := h.repo.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := h.orc.SubmitHumanReview(context.Background(), Decision{Verdict: VerdictApprove}); !errors.Is(err, ErrNotAwaitingHuman) {
		t.Fatalf("expected ErrNotAwaitingHuman, got %v", err)
	}
}

type scriptedHuman struct {
	decisions []Decision
	next      int
}

func (s *scriptedHuman) Review(ctx context.Context, post blogstore.Post, history []Feedback, report analyzer.Report) (Decision, error) {
	if s.next >= len(s.decisions) {
		return Decision{}, errors.New("no decision scripted")
	}
	d := s.decisions[s.next]
	s.next++
	return d, nil
}

func TestUndecidedHumanReviewLeavesRunSuspended(t *testing.T) {
	// a reviewer with no scripted decisions errors out, like a closed review
	// screen with no verdict given
	human := &scriptedHuman{}
	h := newHarness(t, generation.NewScript(draftResponse, approveResponse), WithHumanReviewer(human))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected an error from the undecided reviewer")
	}
	if snap.State != StateHumanReview {
		t.Fatalf("returned state = %s, want %s", snap.State, StateHumanReview)
	}
	persisted, err := h.repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.State != StateHumanReview {
		t.Fatalf("persisted state = %s, want %s", persisted.State, StateHumanReview)
	}
	if countEvents(h.orc.Recorder().Events(), EventRunCompleted) != 0 {
		t.Fatalf("suspended run must not log a run_completed event")
	}
}

func TestAttachedHumanReviewerDrivesRunToCompletion(t *testing.T) {
	human := &scriptedHuman{decisions: []Decision{{Verdict: VerdictApprove, Comments: "good"}}}
	h := newHarness(t, generation.NewScript(draftResponse, approveResponse), WithHumanReviewer(human))

	snap, err := h.orc.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StatePublished {
		t.Fatalf("state = %s, want %s", snap.State, StatePublished)
	}
	if human.next != 1 {
		t.Fatalf("human reviewer called %d times, want 1", human.next)
	}
}
