package assistant

import (
	"strings"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/common"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"
)

// ParseResponse extracts exactly one action from a raw model reply. It
// never fails: replies that carry no structured payload become a plain
// Answer, structured payloads that cannot be salvaged become an Error
// action. Invalid entries inside a valid payload are dropped, the
// payload as a whole is not.
func ParseResponse(raw string) common.ParsedAction {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant returned an empty reply",
		}
	}

	obj, ok := parseObject(trimmed)
	if !ok {
		if block, found := ai.ExtractFencedBlock(trimmed); found {
			obj, ok = parseObject(block)
		}
	}
	if !ok {
		if span, found := ai.ExtractBraceSpan(trimmed); found {
			obj, ok = parseObject(span)
		}
	}
	if !ok {
		return common.ParsedAction{Kind: common.ActionAnswer, Answer: trimmed}
	}

	action := strings.ToLower(strings.TrimSpace(stringField(obj, "action")))
	switch action {
	case "add":
		return buildAdd(obj)
	case "answer":
		return buildAnswer(obj)
	case "clarify":
		return buildClarify(obj)
	case "update":
		return buildUpdate(obj)
	default:
		// Unrecognized discriminator: salvage by payload shape.
		if text := stringField(obj, "answer", "response"); text != "" {
			return common.ParsedAction{Kind: common.ActionAnswer, Answer: text}
		}
		if _, hasNodes := obj["nodes"]; hasNodes {
			return buildAdd(obj)
		}
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant reply did not contain a recognizable action",
		}
	}
}

// parseObject parses text into a JSON object if it plausibly is one.
// Repair-based parsing is only attempted on brace-led text so that
// plain prose is never mangled into an accidental payload.
func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := ai.UnmarshalFlexible(text, &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func buildAdd(obj map[string]any) common.ParsedAction {
	nodes := validNodeSpecs(listField(obj, "nodes"))
	if len(nodes) == 0 {
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant proposed no usable nodes",
		}
	}

	return common.ParsedAction{
		Kind:        common.ActionAdd,
		Nodes:       nodes,
		Edges:       validEdgeSpecs(listField(obj, "edges")),
		Explanation: stringField(obj, "explanation"),
	}
}

func buildAnswer(obj map[string]any) common.ParsedAction {
	text := stringField(obj, "answer", "response")
	if text == "" {
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant reply contained an answer action without text",
		}
	}
	return common.ParsedAction{Kind: common.ActionAnswer, Answer: text}
}

func buildClarify(obj map[string]any) common.ParsedAction {
	var questions []string
	for _, q := range listField(obj, "questions") {
		if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
			questions = append(questions, strings.TrimSpace(s))
		}
	}
	if len(questions) == 0 {
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant asked for clarification without any questions",
		}
	}
	return common.ParsedAction{
		Kind:           common.ActionClarify,
		Questions:      questions,
		ClarifyContext: stringField(obj, "context"),
	}
}

func buildUpdate(obj map[string]any) common.ParsedAction {
	var updates []common.NodeUpdate
	for _, entry := range listField(obj, "updates") {
		m, ok := entry.(map[string]any)
		if !ok {
			logger.Warn("[Parse] dropped non-object update entry")
			continue
		}
		ref := stringField(m, "node", "id", "reference", "target")
		newLabel := stringField(m, "newLabel", "new_label")
		if ref == "" || newLabel == "" {
			logger.Warn("[Parse] dropped incomplete update entry", "ref", ref)
			continue
		}
		updates = append(updates, common.NodeUpdate{Reference: ref, NewLabel: newLabel})
	}
	if len(updates) == 0 {
		return common.ParsedAction{
			Kind:    common.ActionError,
			Message: "the assistant proposed no usable label updates",
		}
	}
	return common.ParsedAction{Kind: common.ActionUpdate, Updates: updates}
}

// validNodeSpecs keeps every node entry with a usable label and
// validates the optional fragments field by field, silently omitting
// invalid ones.
func validNodeSpecs(entries []any) []common.NodeSpec {
	var specs []common.NodeSpec
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			logger.Warn("[Parse] dropped non-object node entry")
			continue
		}

		label := strings.TrimSpace(stringField(m, "label"))
		if label == "" {
			logger.Warn("[Parse] dropped node entry without a label")
			continue
		}

		spec := common.NodeSpec{Label: label}

		shape := common.ShapeKind(strings.ToLower(stringField(m, "shape")))
		if common.ValidShape(shape) {
			spec.Shape = shape
		} else {
			spec.Shape = common.DefaultShape
		}

		for _, t := range listField(m, "tags") {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				spec.Tags = append(spec.Tags, strings.TrimSpace(s))
			}
		}

		if pos, ok := positionFragment(m["position"]); ok {
			spec.Position = &pos
		} else if rel, ok := relativeFragment(m["relative"]); ok {
			spec.Relative = &rel
		}

		specs = append(specs, spec)
	}
	return specs
}

func validEdgeSpecs(entries []any) []common.EdgeSpec {
	var specs []common.EdgeSpec
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			logger.Warn("[Parse] dropped non-object edge entry")
			continue
		}
		source := strings.TrimSpace(stringField(m, "source", "from"))
		target := strings.TrimSpace(stringField(m, "target", "to"))
		if source == "" || target == "" {
			logger.Warn("[Parse] dropped edge entry with missing endpoint")
			continue
		}
		specs = append(specs, common.EdgeSpec{
			Source: source,
			Target: target,
			Label:  stringField(m, "label"),
		})
	}
	return specs
}

func positionFragment(v any) (common.Position, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return common.Position{}, false
	}
	x, xok := numberField(m, "x")
	y, yok := numberField(m, "y")
	if !xok || !yok {
		return common.Position{}, false
	}
	return common.Position{X: x, Y: y}, true
}

func relativeFragment(v any) (common.RelativePlacement, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return common.RelativePlacement{}, false
	}
	ref := strings.TrimSpace(stringField(m, "reference", "node"))
	if ref == "" {
		return common.RelativePlacement{}, false
	}
	dx, _ := numberField(m, "offsetX", "offset_x")
	dy, _ := numberField(m, "offsetY", "offset_y")
	return common.RelativePlacement{Reference: ref, OffsetX: dx, OffsetY: dy}, true
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func listField(m map[string]any, key string) []any {
	list, _ := m[key].([]any)
	return list
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if f, ok := m[key].(float64); ok {
			return f, true
		}
	}
	return 0, false
}
