package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ferrisk/draftloop/internal/analyzer"
	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/workflow"
)

// ErrReviewAborted is returned when the reviewer quits without deciding.
var ErrReviewAborted = errors.New("tui: review aborted")

// Reviewer presents posts for human review in the terminal. It implements
// the workflow's human reviewer boundary by running one bubbletea program
// per review request and blocking until the human decides or quits.
type Reviewer struct {
	// programOpts lets tests run the program against fake IO.
	programOpts []tea.ProgramOption
}

// NewReviewer creates a terminal reviewer.
func NewReviewer(opts ...tea.ProgramOption) *Reviewer {
	return &Reviewer{programOpts: opts}
}

// Review shows the post and blocks for a verdict.
func (r *Reviewer) Review(ctx context.Context, post blogstore.Post, history []workflow.Feedback, report analyzer.Report) (workflow.Decision, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, r.programOpts...)
	program := tea.NewProgram(newReviewModel(post, history, report), opts...)
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return workflow.Decision{}, ctx.Err()
		}
		return workflow.Decision{}, fmt.Errorf("tui: review program: %w", err)
	}
	model, ok := final.(reviewModel)
	if !ok {
		return workflow.Decision{}, fmt.Errorf("tui: unexpected model type %T", final)
	}
	if !model.decided {
		return workflow.Decision{}, ErrReviewAborted
	}
	return model.decision, nil
}
