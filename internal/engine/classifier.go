package engine

import (
	"context"
	"strings"

	"github.com/pilotcrew/taskpilot/internal/task"
)

// IntentKind classifies what a user message asks the lifecycle to do.
type IntentKind string

const (
	IntentApprove IntentKind = "approve"
	IntentReject  IntentKind = "reject"
	IntentClarify IntentKind = "clarify"
	IntentUnknown IntentKind = "unknown"
)

// Intent is a classified user message.
type Intent struct {
	Kind       IntentKind
	Confidence float64
	Reason     string
}

// Classifier maps free-form user text to a lifecycle intent. An LLM
// backend can implement it; RuleClassifier is the dependency-free default.
type Classifier interface {
	Classify(ctx context.Context, text string, t *task.Task) (Intent, error)
}

// RuleClassifier classifies by keyword matching. Exact matches of a full
// phrase score higher than a keyword appearing somewhere in the text.
type RuleClassifier struct{}

var (
	approveWords = []string{"approve", "approved", "lgtm", "go ahead", "ship it", "yes", "ok", "okay", "do it", "proceed"}
	rejectWords  = []string{"reject", "rejected", "cancel", "stop", "abort", "no", "don't", "drop it", "nevermind", "never mind"}
	clarifyWords = []string{"why", "what", "how", "explain", "clarify", "question", "?"}
	negators     = []string{"don't", "do not", "not", "never", "no", "cannot", "can't", "won't"}
)

// Classify never returns an error; unknown text classifies as
// IntentUnknown with zero confidence.
func (RuleClassifier) Classify(ctx context.Context, text string, t *task.Task) (Intent, error) {
	_ = ctx
	_ = t
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Intent{Kind: IntentUnknown, Reason: "empty message"}, nil
	}

	// Refusals win: a negated approval ("don't approve") must never open
	// the approval gate.
	if kind, word, exact := match(normalized, rejectWords, IntentReject); kind != IntentUnknown {
		return scored(kind, word, exact), nil
	}
	if kind, word, exact := match(normalized, approveWords, IntentApprove); kind != IntentUnknown {
		if negatedBefore(normalized, word) {
			return Intent{Kind: IntentReject, Confidence: 0.6, Reason: "negated " + word}, nil
		}
		return scored(kind, word, exact), nil
	}
	if kind, word, exact := match(normalized, clarifyWords, IntentClarify); kind != IntentUnknown {
		return scored(kind, word, exact), nil
	}

	return Intent{Kind: IntentUnknown, Reason: "no keyword matched"}, nil
}

// match checks the word list against the text. An exact match is the
// whole message equaling the phrase; otherwise the phrase must appear as
// a word boundary substring.
func match(text string, words []string, kind IntentKind) (IntentKind, string, bool) {
	for _, w := range words {
		if text == w {
			return kind, w, true
		}
	}
	for _, w := range words {
		if containsWord(text, w) {
			return kind, w, false
		}
	}
	return IntentUnknown, "", false
}

// negatedBefore reports whether a negator precedes the matched approve
// phrase, as in "do not approve" or "never approve this".
func negatedBefore(text, word string) bool {
	idx := strings.Index(text, word)
	if idx <= 0 {
		return false
	}
	prefix := text[:idx]
	for _, n := range negators {
		if containsWord(prefix, n) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	if word == "?" {
		return strings.Contains(text, "?")
	}
	idx := strings.Index(text, word)
	if idx < 0 {
		return false
	}
	before := idx == 0 || !isWordChar(rune(text[idx-1]))
	afterIdx := idx + len(word)
	after := afterIdx >= len(text) || !isWordChar(rune(text[afterIdx]))
	return before && after
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\''
}

func scored(kind IntentKind, word string, exact bool) Intent {
	confidence := 0.6
	if exact {
		confidence = 0.95
	}
	return Intent{Kind: kind, Confidence: confidence, Reason: "matched " + word}
}
