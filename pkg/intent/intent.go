package intent

import (
	"fmt"
	"strings"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

// Result is the outcome of classifying one utterance. Classification is
// fully deterministic: the same utterance and previous intent always
// produce the same result.
type Result struct {
	Intent     common.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// Keyword match weights.
const (
	exactWeight     = 10
	wholeWordWeight = 5
	substringWeight = 2

	interrogativeBoost = 1.5
	followUpBoost      = 0.2
	lowConfidence      = 0.3
)

var keywordsByIntent = map[common.Intent][]string{
	common.IntentAddNodes: {
		"add", "create", "insert", "draw", "place", "new node",
		"new shape", "box", "rectangle", "ellipse", "diamond", "note",
	},
	common.IntentQueryRelationships: {
		"related", "relationship", "relation", "connected", "connection",
		"between", "link", "linked", "depends", "path",
	},
	common.IntentExploreStructure: {
		"structure", "overview", "summarize", "describe", "analyze",
		"central", "important", "cluster", "isolated", "bottleneck",
	},
	common.IntentSimulate: {
		"simulate", "simulation", "what if", "happens", "would happen",
		"propagate", "impact", "cascade", "step through",
	},
	common.IntentModify: {
		"rename", "change", "update", "edit", "modify", "relabel",
		"replace", "correct",
	},
	common.IntentClarificationNeeded: {
		"help", "what can you", "how do i", "confused", "not sure",
		"explain yourself",
	},
}

var questionWords = []string{
	"what", "how", "why", "which", "who", "where", "when",
	"is", "are", "can", "does", "do",
}

// Classify maps a raw utterance to an intent with a confidence score.
// previous carries the intent of the preceding turn, or
// common.IntentUnknown when there is none. It never fails; unclear
// input degrades to CLARIFICATION_NEEDED or EXPLORE_STRUCTURE.
func Classify(utterance string, previous common.Intent) Result {
	trimmed := strings.TrimSpace(utterance)
	if len(trimmed) < 3 {
		return Result{
			Intent:     common.IntentClarificationNeeded,
			Confidence: 0.5,
			Reasoning:  "utterance too short to classify",
		}
	}

	normalized := normalize(trimmed)
	interrogative := isInterrogative(trimmed, normalized)

	best := common.IntentUnknown
	bestScore := 0.0
	for _, candidate := range intentOrder {
		score := scoreIntent(normalized, keywordsByIntent[candidate])
		if interrogative &&
			(candidate == common.IntentQueryRelationships || candidate == common.IntentExploreStructure) {
			score *= interrogativeBoost
		}
		if score > 1 {
			score = 1
		}
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	reasoning := fmt.Sprintf("keyword score %.2f for %s", bestScore, best)

	// A turn that follows a clarification request is assumed to answer
	// it, not to open a new question.
	if previous == common.IntentClarificationNeeded {
		if interrogative {
			best = common.IntentQueryRelationships
			reasoning = "interrogative follow-up to a clarification request"
		} else {
			bestScore += followUpBoost
			if bestScore > 1 {
				bestScore = 1
			}
			reasoning += "; boosted as a clarification answer"
		}
	}

	if bestScore < lowConfidence {
		if interrogative {
			return Result{
				Intent:     common.IntentExploreStructure,
				Confidence: 0.4,
				Reasoning:  "low keyword confidence, interrogative phrasing",
			}
		}
		return Result{
			Intent:     common.IntentClarificationNeeded,
			Confidence: lowConfidence,
			Reasoning:  "low keyword confidence",
		}
	}

	return Result{Intent: best, Confidence: bestScore, Reasoning: reasoning}
}

// intentOrder fixes the evaluation order so ties resolve deterministically.
var intentOrder = []common.Intent{
	common.IntentAddNodes,
	common.IntentQueryRelationships,
	common.IntentExploreStructure,
	common.IntentSimulate,
	common.IntentModify,
	common.IntentClarificationNeeded,
}

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(s string) string {
	lowered := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lowered))
	lastSpace := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func isInterrogative(raw, normalized string) bool {
	if strings.HasSuffix(strings.TrimSpace(raw), "?") {
		return true
	}
	first, _, _ := strings.Cut(normalized, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

// scoreIntent sums keyword weights and normalizes by keywords*2,
// clamping to 1.
func scoreIntent(normalized string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	words := strings.Fields(normalized)
	total := 0
	for _, keyword := range keywords {
		switch {
		case normalized == keyword:
			total += exactWeight
		case matchesWholeWord(words, normalized, keyword):
			total += wholeWordWeight
		case strings.Contains(normalized, keyword):
			total += substringWeight
		}
	}

	score := float64(total) / float64(len(keywords)*2)
	if score > 1 {
		score = 1
	}
	return score
}

// matchesWholeWord reports whether the keyword appears on word
// boundaries; multi-word keywords match as a phrase.
func matchesWholeWord(words []string, normalized, keyword string) bool {
	if !strings.Contains(keyword, " ") {
		for _, w := range words {
			if w == keyword {
				return true
			}
		}
		return false
	}
	idx := strings.Index(normalized, keyword)
	if idx < 0 {
		return false
	}
	beforeOK := idx == 0 || normalized[idx-1] == ' '
	end := idx + len(keyword)
	afterOK := end == len(normalized) || normalized[end] == ' '
	return beforeOK && afterOK
}
