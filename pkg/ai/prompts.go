package ai

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

// Ceilings advertised in the system prompt and enforced by the caller.
// The model may exceed them only when the user explicitly asks for more.
const (
	MaxNewNodesPerRequest = 5
	MaxSimulationSteps    = 5
)

// Wire shapes embedded into the output contract as a JSON schema. The
// parser is more permissive than this on purpose; the schema documents
// the ideal reply, the parser tolerates the real one.
type promptPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type promptRelative struct {
	Reference string  `json:"reference" jsonschema:"description=Id or label of the node to place next to"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
}

type promptNode struct {
	Label    string          `json:"label" jsonschema:"description=Text shown inside the shape. May be multi-line"`
	Shape    string          `json:"shape,omitempty" jsonschema:"enum=rectangle,enum=ellipse,enum=diamond,enum=cylinder,enum=note"`
	Tags     []string        `json:"tags,omitempty"`
	Position *promptPosition `json:"position,omitempty"`
	Relative *promptRelative `json:"relative,omitempty"`
}

type promptEdge struct {
	Source string `json:"source" jsonschema:"description=Id or label of the source node"`
	Target string `json:"target" jsonschema:"description=Id or label of the target node"`
	Label  string `json:"label,omitempty" jsonschema:"description=What the relationship means"`
}

type promptUpdate struct {
	Node     string `json:"node" jsonschema:"description=Id or label of the node to rename"`
	NewLabel string `json:"newLabel"`
}

type promptEnvelope struct {
	Action      string         `json:"action" jsonschema:"enum=add,enum=answer,enum=clarify,enum=update"`
	Nodes       []promptNode   `json:"nodes,omitempty" jsonschema:"description=For action add"`
	Edges       []promptEdge   `json:"edges,omitempty" jsonschema:"description=For action add"`
	Explanation string         `json:"explanation,omitempty" jsonschema:"description=For action add. Short summary of what was added and why"`
	Answer      string         `json:"answer,omitempty" jsonschema:"description=For action answer"`
	Questions   []string       `json:"questions,omitempty" jsonschema:"description=For action clarify"`
	Context     string         `json:"context,omitempty" jsonschema:"description=For action clarify. Why clarification is needed"`
	Updates     []promptUpdate `json:"updates,omitempty" jsonschema:"description=For action update"`
}

var responseSchemaJSON = sync.OnceValue(func() string {
	schema := GenerateSchema(promptEnvelope{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
})

const systemPromptTemplate = `# Role

You are the diagram assistant of an infinite-canvas drawing app. The user
sketches a graph of labeled shapes connected by edges and talks to you
about it. You can read the current canvas, explain relationships on it,
propose new nodes and edges, and rename existing nodes. You never move or
delete existing elements.

# Output

Reply with a single JSON object and nothing else. No prose outside the
JSON, no code fences. The object must match this schema:

%s

Pick exactly one action per reply:
- "add" when the user wants new elements on the canvas. Fill nodes,
  optionally edges, and a short explanation.
- "answer" when the user asks about the canvas. Fill answer with plain
  text grounded in the canvas description below.
- "clarify" when the request is too ambiguous to act on. Fill questions
  with the specific things you need to know.
- "update" when the user wants existing nodes renamed. Fill updates.

# Limits

Add at most %d new nodes per reply unless the user explicitly asks for
more. When simulating or walking through a flow, cover at most %d steps
unless the user explicitly asks for more. If honoring the request would
exceed these limits, say so in an answer and suggest breaking it down.

Refer to existing nodes by their id when you know it, otherwise by their
exact label. Leave position fields out unless the user asked for a
specific spot; the app places new shapes itself.`

// SystemPrompt returns the fixed instruction block sent with every
// request: capabilities, the JSON output contract, and the node/step
// ceilings.
func SystemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, responseSchemaJSON(), MaxNewNodesPerRequest, MaxSimulationSteps)
}

var intentDirectives = map[common.Intent]string{
	common.IntentAddNodes: `# Task

The user wants new elements added to the canvas. Reply with action "add".
Derive node labels from the user's own wording. Connect new nodes to
existing ones with labeled edges where a relationship is stated or
clearly implied. Reuse existing nodes instead of duplicating them.`,

	common.IntentQueryRelationships: `# Task

The user is asking how elements of the canvas relate. Reply with action
"answer". Ground every claim in the canvas description above: name the
nodes and edges you are reasoning over, and say plainly when two
elements are not connected. Do not invent relationships.`,

	common.IntentExploreStructure: `# Task

The user wants an overview of the canvas structure. Reply with action
"answer". Summarize what is on the canvas: the main groups, the most
connected nodes, anything isolated, and anything that looks like a hub
or a bottleneck. Keep it short and concrete.`,

	common.IntentSimulate: `# Task

The user wants to walk through a scenario over the canvas. Reply with
action "answer". Step through the flow one edge at a time, naming the
node and the edge taken at each step, and state where the walk ends and
why. Stay within the step limit above.`,

	common.IntentModify: `# Task

The user wants existing nodes changed. You can only rename. Reply with
action "update" and one entry per rename, identifying each node by id or
exact label. If the user asks for a change other than renaming, reply
with action "answer" explaining what you can and cannot do.`,

	common.IntentClarificationNeeded: `# Task

The request is ambiguous. Reply with action "clarify". Ask the fewest
concrete questions that would let you act, and say in context what you
understood so far.`,
}

const defaultDirective = `# Task

Interpret the user's request against the canvas description above and
pick the single most fitting action. When unsure between answering and
adding, prefer "answer".`

// DirectiveFor returns the directive paragraph appended to the system
// prompt for the classified intent. UNKNOWN and anything without a
// dedicated paragraph gets a generic one.
func DirectiveFor(intent common.Intent) string {
	if d, ok := intentDirectives[intent]; ok {
		return d
	}
	return defaultDirective
}
