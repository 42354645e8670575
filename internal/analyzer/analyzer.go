// Package analyzer computes structural and readability metrics over markdown
// content. Every function is pure: no state, no IO, defined for any input
// including the empty string.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// WordsPerMinute is the assumed reading speed for ReadingTime.
const WordsPerMinute = 200

// StructureReport tallies markdown building blocks. It is a structural count,
// not a full document model.
type StructureReport struct {
	Headings   int `json:"headings"`
	Paragraphs int `json:"paragraphs"`
	Lists      int `json:"lists"`
	ListItems  int `json:"list_items"`
	CodeBlocks int `json:"code_blocks"`
}

// Score holds the readability measures: average sentence length in words and
// average word length in characters. The zero Score is the sentinel for empty
// content.
type Score struct {
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	AvgCharsPerWord     float64 `json:"avg_chars_per_word"`
}

// Report aggregates every analyzer metric for a single content string.
type Report struct {
	Words       int             `json:"words"`
	ReadingTime int             `json:"reading_time_minutes"`
	Structure   StructureReport `json:"structure"`
	Readability Score           `json:"readability"`
}

// Analyze runs all analyzer functions over content.
func Analyze(content string) Report {
	return Report{
		Words:       WordCount(content),
		ReadingTime: ReadingTime(content),
		Structure:   Structure(content),
		Readability: Readability(content),
	}
}

// WordCount returns the number of whitespace-separated words.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// ReadingTime estimates the reading time in whole minutes, rounded up.
// Empty content reads in zero minutes; any non-empty content takes at least one.
func ReadingTime(content string) int {
	words := WordCount(content)
	if words == 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// Structure counts headings, paragraphs, lists, and code blocks by walking the
// goldmark AST.
func Structure(content string) StructureReport {
	var report StructureReport
	if strings.TrimSpace(content) == "" {
		return report
	}
	doc := goldmark.New().Parser().Parse(text.NewReader([]byte(content)))
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.Kind() {
		case ast.KindHeading:
			report.Headings++
		case ast.KindParagraph:
			report.Paragraphs++
		case ast.KindList:
			report.Lists++
		case ast.KindListItem:
			report.ListItems++
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			report.CodeBlocks++
		}
		return ast.WalkContinue, nil
	})
	return report
}

// Readability computes the average words per sentence and average characters
// per word. The formula is a policy choice, not a correctness contract; it is
// total and returns the zero Score for content with no words.
func Readability(content string) Score {
	words := strings.Fields(content)
	if len(words) == 0 {
		return Score{}
	}
	sentences := countSentences(content)
	if sentences == 0 {
		sentences = 1
	}
	var chars int
	for _, word := range words {
		chars += len([]rune(strings.TrimFunc(word, unicode.IsPunct)))
	}
	return Score{
		AvgWordsPerSentence: float64(len(words)) / float64(sentences),
		AvgCharsPerWord:     float64(chars) / float64(len(words)),
	}
}

func countSentences(content string) int {
	count := 0
	inRun := false
	for _, r := range content {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	return count
}
