package assistant

import (
	"testing"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

func TestParseResponse_DirectAdd(t *testing.T) {
	raw := `{
		"action": "add",
		"nodes": [
			{"label": "Cache", "shape": "cylinder", "tags": ["infra", 7]},
			{"label": "   "},
			{"shape": "rectangle"},
			{"label": "API", "position": {"x": 100, "y": 50}}
		],
		"edges": [
			{"source": "API", "target": "Cache", "label": "reads"},
			{"source": "API"},
			{"target": "Cache"}
		],
		"explanation": "caching layer"
	}`

	action := ParseResponse(raw)
	if action.Kind != common.ActionAdd {
		t.Fatalf("kind = %q", action.Kind)
	}
	if len(action.Nodes) != 2 {
		t.Fatalf("expected 2 valid nodes, got %d", len(action.Nodes))
	}
	if action.Nodes[0].Shape != common.ShapeCylinder {
		t.Fatalf("shape = %q", action.Nodes[0].Shape)
	}
	if len(action.Nodes[0].Tags) != 1 || action.Nodes[0].Tags[0] != "infra" {
		t.Fatalf("tags = %v, non-strings must be filtered", action.Nodes[0].Tags)
	}
	if action.Nodes[1].Position == nil || action.Nodes[1].Position.X != 100 {
		t.Fatalf("position fragment lost: %+v", action.Nodes[1])
	}
	if len(action.Edges) != 1 {
		t.Fatalf("expected 1 valid edge, got %d", len(action.Edges))
	}
	if action.Explanation != "caching layer" {
		t.Fatalf("explanation = %q", action.Explanation)
	}
}

func TestParseResponse_FencedBlock(t *testing.T) {
	raw := "Here is the change:\n```json\n{\"action\": \"answer\", \"answer\": \"They are linked.\"}\n```"
	action := ParseResponse(raw)
	if action.Kind != common.ActionAnswer {
		t.Fatalf("kind = %q", action.Kind)
	}
	if action.Answer != "They are linked." {
		t.Fatalf("answer = %q", action.Answer)
	}
}

func TestParseResponse_BraceSpanInsideProse(t *testing.T) {
	raw := `Sure thing! {"action": "answer", "answer": "Directly connected."} Anything else?`
	action := ParseResponse(raw)
	if action.Kind != common.ActionAnswer || action.Answer != "Directly connected." {
		t.Fatalf("got %+v", action)
	}
}

func TestParseResponse_PlainProseBecomesAnswer(t *testing.T) {
	raw := "I think we should add 12 nodes covering every microservice in the stack."
	action := ParseResponse(raw)
	if action.Kind != common.ActionAnswer {
		t.Fatalf("kind = %q, prose must become an answer", action.Kind)
	}
	if action.Answer != raw {
		t.Fatalf("answer must carry the full reply, got %q", action.Answer)
	}
}

func TestParseResponse_EmptyReply(t *testing.T) {
	action := ParseResponse("   \n ")
	if action.Kind != common.ActionError {
		t.Fatalf("kind = %q", action.Kind)
	}
}

func TestParseResponse_AnswerResponseFieldFallback(t *testing.T) {
	action := ParseResponse(`{"action": "answer", "response": "via the response field"}`)
	if action.Kind != common.ActionAnswer || action.Answer != "via the response field" {
		t.Fatalf("got %+v", action)
	}
}

func TestParseResponse_CaseInsensitiveDiscriminator(t *testing.T) {
	action := ParseResponse(`{"action": "ANSWER", "answer": "yes"}`)
	if action.Kind != common.ActionAnswer {
		t.Fatalf("kind = %q", action.Kind)
	}
}

func TestParseResponse_Clarify(t *testing.T) {
	action := ParseResponse(`{"action": "clarify", "questions": ["Which service?", 42, ""], "context": "ambiguous"}`)
	if action.Kind != common.ActionClarify {
		t.Fatalf("kind = %q", action.Kind)
	}
	if len(action.Questions) != 1 || action.Questions[0] != "Which service?" {
		t.Fatalf("questions = %v", action.Questions)
	}
	if action.ClarifyContext != "ambiguous" {
		t.Fatalf("context = %q", action.ClarifyContext)
	}
}

func TestParseResponse_ClarifyWithoutQuestionsIsError(t *testing.T) {
	action := ParseResponse(`{"action": "clarify", "questions": []}`)
	if action.Kind != common.ActionError {
		t.Fatalf("kind = %q", action.Kind)
	}
}

func TestParseResponse_Update(t *testing.T) {
	action := ParseResponse(`{
		"action": "update",
		"updates": [
			{"node": "node-3", "newLabel": "Billing v2"},
			{"node": "Orders"},
			{"new_label": "orphan"},
			{"id": "node-4", "new_label": "Ledger"}
		]
	}`)
	if action.Kind != common.ActionUpdate {
		t.Fatalf("kind = %q", action.Kind)
	}
	if len(action.Updates) != 2 {
		t.Fatalf("expected 2 valid updates, got %d", len(action.Updates))
	}
	if action.Updates[1].Reference != "node-4" || action.Updates[1].NewLabel != "Ledger" {
		t.Fatalf("update = %+v", action.Updates[1])
	}
}

func TestParseResponse_UnrecognizedDiscriminator(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want common.ActionKind
	}{
		{
			name: "response field salvages answer",
			raw:  `{"action": "chat", "response": "hello"}`,
			want: common.ActionAnswer,
		},
		{
			name: "nodes field salvages add",
			raw:  `{"action": "create", "nodes": [{"label": "X"}]}`,
			want: common.ActionAdd,
		},
		{
			name: "nothing salvageable",
			raw:  `{"action": "dance", "tempo": 120}`,
			want: common.ActionError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseResponse(tt.raw); got.Kind != tt.want {
				t.Fatalf("kind = %q, want %q", got.Kind, tt.want)
			}
		})
	}
}

func TestParseResponse_AddWithNoValidNodesIsError(t *testing.T) {
	action := ParseResponse(`{"action": "add", "nodes": [{"shape": "diamond"}, "bogus"]}`)
	if action.Kind != common.ActionError {
		t.Fatalf("kind = %q", action.Kind)
	}
}

func TestParseResponse_InvalidFragmentsOmitted(t *testing.T) {
	action := ParseResponse(`{
		"action": "add",
		"nodes": [
			{"label": "A", "shape": "hexagon", "position": {"x": "left", "y": 5}},
			{"label": "B", "relative": {"reference": "A", "offsetX": 200}}
		]
	}`)
	if action.Kind != common.ActionAdd {
		t.Fatalf("kind = %q", action.Kind)
	}
	if action.Nodes[0].Shape != common.DefaultShape {
		t.Fatalf("invalid shape must coerce to default, got %q", action.Nodes[0].Shape)
	}
	if action.Nodes[0].Position != nil {
		t.Fatal("partially invalid position must be omitted")
	}
	rel := action.Nodes[1].Relative
	if rel == nil || rel.Reference != "A" || rel.OffsetX != 200 || rel.OffsetY != 0 {
		t.Fatalf("relative fragment = %+v", rel)
	}
}

func TestParseResponse_Totality(t *testing.T) {
	inputs := []string{
		"",
		"{",
		"}{",
		"null",
		"[]",
		`"just a string"`,
		"``````",
		"```json\n```",
		`{"action":}`,
		"{\"action\": \"add\", \"nodes\": \"not a list\"}",
		"plain words with a stray { brace",
	}
	valid := map[common.ActionKind]bool{
		common.ActionAdd:     true,
		common.ActionAnswer:  true,
		common.ActionClarify: true,
		common.ActionUpdate:  true,
		common.ActionError:   true,
	}
	for _, in := range inputs {
		action := ParseResponse(in)
		if !valid[action.Kind] {
			t.Fatalf("input %q produced kind %q", in, action.Kind)
		}
	}
}
