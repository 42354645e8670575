package workflow

import "strings"

// DecodeVerdict interprets free reviewer text using the documented marker
// convention: a line starting with "DECISION:" containing APPROVE or REJECT,
// optionally followed by a "FEEDBACK:" section whose text runs until the next
// marker. Text without an unambiguous decision returns ErrVerdictUnparsed;
// callers must treat that as a rejection, never an approval.
func DecodeVerdict(text string) (Decision, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var (
		decision    Verdict
		hasDecision bool
		feedback    []string
		inFeedback  bool
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "DECISION:"):
			inFeedback = false
			rest := upper[len("DECISION:"):]
			approve := strings.Contains(rest, "APPROVE")
			reject := strings.Contains(rest, "REJECT")
			switch {
			case approve && !reject:
				decision, hasDecision = VerdictApprove, true
			case reject && !approve:
				decision, hasDecision = VerdictReject, true
			}
		case strings.HasPrefix(upper, "FEEDBACK:"):
			inFeedback = true
			if rest := strings.TrimSpace(trimmed[len("FEEDBACK:"):]); rest != "" {
				feedback = append(feedback, rest)
			}
		case inFeedback && trimmed != "":
			feedback = append(feedback, trimmed)
		}
	}
	if !hasDecision {
		return Decision{}, ErrVerdictUnparsed
	}
	return Decision{Verdict: decision, Comments: strings.Join(feedback, " ")}, nil
}
