// cmd/draftloop/main.go
//
// This is the entry point for the draftloop CLI.
//
// Subcommands:
//
//	draftloop new -theme "..." [-author name] [-tags a,b] [-suspend]
//	draftloop resume [-suspend]
//	draftloop status
//	draftloop metrics [-run id]
//	draftloop posts list|show|versions|search|delete ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ferrisk/draftloop/internal/analyzer"
	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/config"
	"github.com/ferrisk/draftloop/internal/generation"
	"github.com/ferrisk/draftloop/internal/logbook"
	"github.com/ferrisk/draftloop/internal/logging"
	"github.com/ferrisk/draftloop/internal/persona"
	"github.com/ferrisk/draftloop/internal/tui"
	"github.com/ferrisk/draftloop/internal/workflow"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fatal("getting working directory: %v", err)
	}
	if err := config.InitDraftloopDir(cwd); err != nil {
		fatal("initializing %s directory: %v", config.DraftloopDir, err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "new":
		err = runNew(ctx, cfg, os.Args[2:])
	case "resume":
		err = runResume(ctx, cfg, os.Args[2:])
	case "status":
		err = runStatus(cfg)
	case "metrics":
		err = runMetrics(cfg, os.Args[2:])
	case "posts":
		err = runPosts(cfg, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, workflow.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "run interrupted; resume with: draftloop resume")
			os.Exit(130)
		}
		if errors.Is(err, tui.ErrReviewAborted) {
			fmt.Fprintln(os.Stderr, "review postponed; continue with: draftloop resume")
			return
		}
		fatal("%v", err)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `draftloop - AI blog post review workflow

Usage:
  draftloop new -theme "..." [-author name] [-tags a,b]
                [-writer-persona file] [-reviewer-persona file]
                [-max-ai-revisions n] [-max-human-revisions n] [-suspend]
  draftloop resume [-suspend]
  draftloop status
  draftloop metrics [-run id]
  draftloop posts list
  draftloop posts show <id> [-version n]
  draftloop posts search <query>
  draftloop posts delete <id>
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "draftloop: "+format+"\n", args...)
	os.Exit(1)
}

// buildOrchestrator wires the storage, generation, persistence, and logging
// layers together for run-driving commands. A nil recorder starts an empty
// event log; resumed runs pass a recorder seeded from the persisted one.
func buildOrchestrator(cfg *config.Config, interactive bool, rec *workflow.Recorder) (*workflow.Orchestrator, *logbook.Logbook, error) {
	logger, err := logging.New(cfg.ProjectDir)
	if err != nil {
		return nil, nil, err
	}
	book, err := logbook.New(cfg.LogbookPath())
	if err != nil {
		logger.Printf("logbook unavailable: %v", err)
	}

	gen, err := generation.NewOpenAI(generation.Settings{
		Model:   cfg.Project.Generation.Model,
		APIKey:  cfg.APIKey(),
		BaseURL: cfg.Project.Generation.BaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("set OPENAI_API_KEY (in the environment or a .env file): %w", err)
	}

	posts := blogstore.NewStore(cfg.PostsDir())
	repo := workflow.NewRepository(cfg.SnapshotPath())
	opts := []workflow.Option{
		workflow.WithConfig(workflow.Config{
			MaxAIRevisions:       cfg.Project.Workflow.MaxAIRevisions,
			MaxHumanRevisions:    cfg.Project.Workflow.MaxHumanRevisions,
			MaxGenerationRetries: cfg.Project.Workflow.MaxGenerationRetries,
		}),
		workflow.WithProgressLog(book),
	}
	if interactive {
		opts = append(opts, workflow.WithHumanReviewer(tui.NewReviewer()))
	}
	orc, err := workflow.New(posts, gen, repo, rec, opts...)
	if err != nil {
		return nil, nil, err
	}
	return orc, book, nil
}

func loadPersonas(cfg *config.Config) (writer, reviewer persona.Descriptor, err error) {
	writer = persona.DefaultWriter()
	reviewer = persona.DefaultReviewer()
	if path := cfg.WriterPersonaPath(); path != "" {
		writer, err = persona.Load(path)
		if err != nil {
			return writer, reviewer, fmt.Errorf("writer persona: %w", err)
		}
	}
	if path := cfg.ReviewerPersonaPath(); path != "" {
		reviewer, err = persona.Load(path)
		if err != nil {
			return writer, reviewer, fmt.Errorf("reviewer persona: %w", err)
		}
	}
	return writer, reviewer, nil
}

func runNew(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	theme := fs.String("theme", "", "theme for the blog post (required)")
	author := fs.String("author", "draftloop", "byline author")
	tags := fs.String("tags", "", "comma-separated tags")
	writerPath := fs.String("writer-persona", "", "writer persona file (overrides config)")
	reviewerPath := fs.String("reviewer-persona", "", "reviewer persona file (overrides config)")
	maxAI := fs.Int("max-ai-revisions", 0, "override max AI revisions for this run")
	maxHuman := fs.Int("max-human-revisions", 0, "override max human revisions for this run")
	suspend := fs.Bool("suspend", false, "stop at human review instead of opening the review screen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*theme) == "" {
		return errors.New("new: -theme is required")
	}
	if *writerPath != "" {
		cfg.Project.Personas.Writer = *writerPath
	}
	if *reviewerPath != "" {
		cfg.Project.Personas.Reviewer = *reviewerPath
	}
	if *maxAI > 0 {
		cfg.Project.Workflow.MaxAIRevisions = *maxAI
	}
	if *maxHuman > 0 {
		cfg.Project.Workflow.MaxHumanRevisions = *maxHuman
	}

	// Refuse to clobber an in-flight run.
	repo := workflow.NewRepository(cfg.SnapshotPath())
	if snap, err := repo.Load(); err == nil && !snap.State.Terminal() {
		return fmt.Errorf("a run is already in progress (state %s); finish it with: draftloop resume", snap.State)
	} else if err == nil {
		if err := repo.Archive(snap.RunID); err != nil {
			return err
		}
	}

	orc, _, err := buildOrchestrator(cfg, !*suspend, nil)
	if err != nil {
		return err
	}
	writer, reviewer, err := loadPersonas(cfg)
	if err != nil {
		return err
	}

	snap, err := orc.Start(ctx, workflow.RunRequest{
		Theme:    strings.TrimSpace(*theme),
		Author:   strings.TrimSpace(*author),
		Tags:     splitTags(*tags),
		Writer:   writer,
		Reviewer: reviewer,
	})
	if err != nil {
		saveEvents(cfg, orc, snap)
		return err
	}
	saveEvents(cfg, orc, snap)
	reportOutcome(snap)
	return nil
}

func runResume(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	suspend := fs.Bool("suspend", false, "stop at human review instead of opening the review screen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	// Seed the recorder from the persisted event log so the run keeps one
	// append-only history across process boundaries.
	rec := workflow.NewRecorder()
	if snap, err := workflow.NewRepository(cfg.SnapshotPath()).Load(); err == nil {
		if events, err := workflow.LoadEvents(cfg.EventLogPath(snap.RunID)); err == nil {
			rec = workflow.NewRecorder(workflow.WithRecorderEvents(events))
		}
	}
	orc, _, err := buildOrchestrator(cfg, !*suspend, rec)
	if err != nil {
		return err
	}
	snap, err := orc.Resume(ctx)
	if err != nil {
		saveEvents(cfg, orc, snap)
		return err
	}
	saveEvents(cfg, orc, snap)
	reportOutcome(snap)
	return nil
}

func runStatus(cfg *config.Config) error {
	repo := workflow.NewRepository(cfg.SnapshotPath())
	snap, err := repo.Load()
	if errors.Is(err, workflow.ErrSnapshotNotFound) {
		fmt.Println("no run in progress")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("run:       %s\n", snap.RunID)
	fmt.Printf("state:     %s\n", snap.State)
	fmt.Printf("theme:     %s\n", snap.Theme)
	fmt.Printf("post:      %s (v%d) %q\n", snap.Post.ID, snap.Post.Version, snap.Post.Title)
	fmt.Printf("revisions: %d ai / %d human\n", snap.AIRevisionCount, snap.HumanRevisionCount)
	fmt.Printf("updated:   %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	if fb, ok := snap.LatestFeedback(); ok {
		fmt.Printf("feedback:  %s %s", fb.Source, fb.Verdict)
		if fb.Comments != "" {
			fmt.Printf(": %s", fb.Comments)
		}
		fmt.Println()
	}
	return nil
}

func runMetrics(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	runID := fs.String("run", "", "run id (defaults to the active run)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*runID)
	if id == "" {
		repo := workflow.NewRepository(cfg.SnapshotPath())
		snap, err := repo.Load()
		if err != nil {
			return fmt.Errorf("no active run; pass -run <id>: %w", err)
		}
		id = snap.RunID
	}
	events, err := workflow.LoadEvents(cfg.EventLogPath(id))
	if err != nil {
		return err
	}
	metrics := workflow.DeriveMetrics(events)
	fmt.Printf("run:            %s\n", id)
	fmt.Printf("events:         %d\n", metrics.EventCount)
	fmt.Printf("total duration: %s\n", metrics.TotalDuration)
	fmt.Printf("revisions:      %d ai / %d human\n", metrics.AIRevisions, metrics.HumanRevisions)
	for state, d := range metrics.StateDurations {
		fmt.Printf("  %-15s %s\n", state, d)
	}
	return nil
}

func runPosts(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("posts: expected list, show, search, or delete")
	}
	store := blogstore.NewStore(cfg.PostsDir())
	switch args[0] {
	case "list":
		summaries, err := store.List()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no posts")
			return nil
		}
		printSummaries(summaries)
		return nil
	case "search":
		if len(args) < 2 {
			return errors.New("posts search: query is required")
		}
		summaries, err := store.Search(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("no matches")
			return nil
		}
		printSummaries(summaries)
		return nil
	case "show":
		fs := flag.NewFlagSet("posts show", flag.ExitOnError)
		version := fs.Int("version", 0, "show a specific version instead of the latest")
		if len(args) < 2 {
			return errors.New("posts show: post id is required")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		var post blogstore.Post
		var err error
		if *version > 0 {
			post, err = store.GetVersion(args[1], *version)
		} else {
			post, err = store.Get(args[1])
		}
		if err != nil {
			return err
		}
		printPost(post)
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("posts delete: post id is required")
		}
		if err := store.Delete(args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("posts: unknown subcommand %q", args[0])
	}
}

func printSummaries(summaries []blogstore.Summary) {
	for _, s := range summaries {
		line := fmt.Sprintf("%s  v%d  %s", s.ID, s.Version, s.Title)
		if len(s.Tags) > 0 {
			line += "  [" + strings.Join(s.Tags, ", ") + "]"
		}
		fmt.Println(line)
	}
}

func printPost(post blogstore.Post) {
	report := analyzer.Analyze(post.Content)
	fmt.Printf("# %s\n", post.Title)
	fmt.Printf("id: %s  version: %d  author: %s\n", post.ID, post.Version, post.Author)
	if len(post.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(post.Tags, ", "))
	}
	fmt.Printf("%d words, about %d min read\n\n", report.Words, report.ReadingTime)
	fmt.Println(post.Content)
}

// saveEvents flushes the run's event log next to the snapshot. Snapshots of
// finished runs are archived by the next `draftloop new`, not here.
func saveEvents(cfg *config.Config, orc *workflow.Orchestrator, snap workflow.Snapshot) {
	if snap.RunID == "" {
		return
	}
	if err := orc.Recorder().SaveLog(cfg.EventLogPath(snap.RunID)); err != nil {
		fmt.Fprintf(os.Stderr, "draftloop: saving event log: %v\n", err)
	}
}

func reportOutcome(snap workflow.Snapshot) {
	switch snap.State {
	case workflow.StatePublished:
		fmt.Printf("published: %s (v%d)\n", snap.Post.Title, snap.Post.Version)
	case workflow.StateRejectedFinal:
		fmt.Printf("rejected after %d human revision(s): %s\n", snap.HumanRevisionCount, snap.Post.Title)
	case workflow.StateHumanReview:
		fmt.Printf("awaiting human review: %s (v%d)\n", snap.Post.Title, snap.Post.Version)
		fmt.Println("continue with: draftloop resume")
	default:
		fmt.Printf("run stopped in state %s\n", snap.State)
	}
}

func splitTags(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
