package assistant

import (
	"fmt"
	"strings"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

// buildSystemPrompt concatenates the fixed instructions, the serialized
// canvas and the directive paragraph for the classified intent into one
// system-level instruction string. Pure assembly, deterministic given
// its inputs.
func buildSystemPrompt(contextText string, intent common.Intent) string {
	sections := []string{
		ai.SystemPrompt(),
		"# Canvas\n\n" + contextText,
		ai.DirectiveFor(intent),
	}
	return strings.Join(sections, "\n\n")
}

// promptSkeleton is the system prompt without the canvas, used for
// token budgeting before the canvas context is sized.
func promptSkeleton(intent common.Intent) string {
	return ai.SystemPrompt() + "\n\n" + ai.DirectiveFor(intent)
}

// buildTurns converts the budget-limited history plus the current
// utterance into ordered chat turns, the utterance last.
func buildTurns(history []common.ChatMessage, utterance string) []ai.ChatMessage {
	turns := make([]ai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, ai.ChatMessage{Role: m.Role, Message: m.Content})
	}
	turns = append(turns, ai.ChatMessage{Role: common.RoleUser, Message: utterance})
	return turns
}

// augmentWithAnswers rebuilds the original utterance with the answered
// clarification questions appended as Q/A pairs, for resuming a
// clarification round.
func augmentWithAnswers(state *common.ClarificationState) string {
	var b strings.Builder
	b.WriteString(state.OriginalUtterance)
	b.WriteString("\n\nClarifications:")
	for i, q := range state.Questions {
		fmt.Fprintf(&b, "\n- Q: %s\n  A: %s", q, state.Answers[i])
	}
	return b.String()
}
