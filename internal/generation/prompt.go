package generation

import (
	"fmt"
	"strings"

	"github.com/ferrisk/draftloop/internal/analyzer"
)

const (
	titleMarker   = "TITLE:"
	contentMarker = "CONTENT:"
)

// DraftPrompt asks the writer persona for an initial post on a theme.
func DraftPrompt(personaText, theme, author string) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a blog post on the theme: %q\n\n", theme)
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Write a complete, engaging blog post in markdown.\n")
	sb.WriteString("- Structure: introduction, main content sections, conclusion.\n")
	sb.WriteString("- Target length: 800-1200 words.\n")
	fmt.Fprintf(&sb, "- Byline author: %s.\n\n", author)
	sb.WriteString("Format your response exactly as:\n")
	sb.WriteString(titleMarker + " [your title]\n\n")
	sb.WriteString(contentMarker + "\n[the full post]\n")
	return Prompt{System: personaText, User: sb.String()}
}

// RevisionPrompt asks the writer persona to revise the current post based on
// reviewer feedback. The feedback string may merge AI and human comments.
func RevisionPrompt(personaText, title, content, feedback string) Prompt {
	var sb strings.Builder
	sb.WriteString("Revise this blog post based on the following feedback.\n\n")
	fmt.Fprintf(&sb, "FEEDBACK:\n%s\n\n", feedback)
	fmt.Fprintf(&sb, "CURRENT TITLE: %s\n\n", title)
	fmt.Fprintf(&sb, "CURRENT CONTENT:\n%s\n\n", content)
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Address every point in the feedback.\n")
	sb.WriteString("- Keep the core theme and message.\n")
	sb.WriteString("- Provide the complete revised post, not a diff.\n\n")
	sb.WriteString("Format your response exactly as:\n")
	sb.WriteString(titleMarker + " [updated or original title]\n\n")
	sb.WriteString(contentMarker + "\n[the revised post]\n")
	return Prompt{System: personaText, User: sb.String()}
}

// ReviewPrompt asks the reviewer persona to evaluate the post. The analyzer
// report is embedded as read-only scoring input.
func ReviewPrompt(personaText, title, content string, report analyzer.Report) Prompt {
	var sb strings.Builder
	sb.WriteString("Review this blog post for quality, clarity, structure, and engagement.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n\n", title)
	fmt.Fprintf(&sb, "Content:\n%s\n\n", content)
	sb.WriteString("Content metrics (for reference):\n")
	fmt.Fprintf(&sb, "- Words: %d (about %d min read)\n", report.Words, report.ReadingTime)
	fmt.Fprintf(&sb, "- Headings: %d, paragraphs: %d, lists: %d\n",
		report.Structure.Headings, report.Structure.Paragraphs, report.Structure.Lists)
	fmt.Fprintf(&sb, "- Avg words/sentence: %.1f, avg chars/word: %.1f\n\n",
		report.Readability.AvgWordsPerSentence, report.Readability.AvgCharsPerWord)
	sb.WriteString("Provide your decision in this format:\n")
	sb.WriteString("DECISION: APPROVE or REJECT\n")
	sb.WriteString("FEEDBACK: [specific, actionable feedback when rejecting]\n")
	return Prompt{System: personaText, User: sb.String()}
}

// ParseDraft extracts the title and content from a writer response following
// the TITLE:/CONTENT: convention. A response without markers falls back to
// the whole text as content under a default title.
func ParseDraft(response string) (title, content string) {
	title = "Untitled Post"
	content = strings.TrimSpace(response)
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, titleMarker) {
			continue
		}
		if candidate := strings.TrimSpace(strings.TrimPrefix(trimmed, titleMarker)); candidate != "" {
			title = candidate
		}
		rest := lines[i+1:]
		for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
			rest = rest[1:]
		}
		if len(rest) > 0 && strings.TrimSpace(rest[0]) == contentMarker {
			rest = rest[1:]
		}
		content = strings.TrimSpace(strings.Join(rest, "\n"))
		break
	}
	return title, content
}
