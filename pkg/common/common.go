package common

import "time"

// ShapeKind identifies the visual shape of a canvas node.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeDiamond   ShapeKind = "diamond"
	ShapeCylinder  ShapeKind = "cylinder"
	ShapeNote      ShapeKind = "note"
)

// DefaultShape is used whenever a shape kind is missing or invalid.
const DefaultShape = ShapeRectangle

// ValidShape reports whether s is a member of the shape enum.
func ValidShape(s ShapeKind) bool {
	switch s {
	case ShapeRectangle, ShapeEllipse, ShapeDiamond, ShapeCylinder, ShapeNote:
		return true
	}
	return false
}

// Position is a point on the infinite canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents a labeled shape on the canvas. The label is the node's
// primary semantic content and may span multiple lines. Nodes are owned
// by the canvas; the pipeline only reads them and proposes new instances.
type Node struct {
	ID       string    `json:"id"`
	Shape    ShapeKind `json:"shape"`
	Label    string    `json:"label"`
	Tags     []string  `json:"tags,omitempty"`
	Position Position  `json:"position"`
}

// Edge represents a connection between two nodes. The optional Label
// describes the semantic relation, not just a visual connector.
// Self-edges are invalid; duplicate ordered source/target pairs are
// dropped during generation.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// ChatMessage is a single turn in a canvas conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a message from the assistant
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Intent is the classified purpose of a user utterance. The set is
// closed and handled exhaustively downstream.
type Intent string

const (
	IntentAddNodes            Intent = "ADD_NODES"
	IntentQueryRelationships  Intent = "QUERY_RELATIONSHIPS"
	IntentExploreStructure    Intent = "EXPLORE_STRUCTURE"
	IntentSimulate            Intent = "SIMULATE"
	IntentModify              Intent = "MODIFY"
	IntentClarificationNeeded Intent = "CLARIFICATION_NEEDED"
	IntentUnknown             Intent = "UNKNOWN"
)

// ActionKind discriminates the ParsedAction union.
type ActionKind string

const (
	ActionAdd               ActionKind = "add"
	ActionAnswer            ActionKind = "answer"
	ActionClarify           ActionKind = "clarify"
	ActionUpdate            ActionKind = "update"
	ActionError             ActionKind = "error"
	ActionComplexityWarning ActionKind = "complexity_warning"
)

// ParsedAction is the single structured action extracted from a model
// reply. Exactly one variant is populated, selected by Kind.
type ParsedAction struct {
	Kind ActionKind `json:"kind"`

	// ActionAdd
	Nodes       []NodeSpec `json:"nodes,omitempty"`
	Edges       []EdgeSpec `json:"edges,omitempty"`
	Explanation string     `json:"explanation,omitempty"`

	// ActionAnswer
	Answer string `json:"answer,omitempty"`

	// ActionClarify
	Questions      []string `json:"questions,omitempty"`
	ClarifyContext string   `json:"clarify_context,omitempty"`

	// ActionUpdate
	Updates []NodeUpdate `json:"updates,omitempty"`

	// ActionError / ActionComplexityWarning
	Message string `json:"message,omitempty"`
}

// RelativePlacement positions a new node relative to a referenced node.
// The reference may be the id or label of an existing node or of a node
// created earlier in the same batch.
type RelativePlacement struct {
	Reference string  `json:"reference"`
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
}

// NodeSpec describes a node proposed by the model. Label is required.
// At most one of Position and Relative is set; when neither is given
// the materializer places the node automatically.
type NodeSpec struct {
	Label    string             `json:"label"`
	Shape    ShapeKind          `json:"shape,omitempty"`
	Tags     []string           `json:"tags,omitempty"`
	Position *Position          `json:"position,omitempty"`
	Relative *RelativePlacement `json:"relative,omitempty"`
}

// EdgeSpec describes an edge proposed by the model. Source and Target
// are node ids or node labels; ambiguous references resolve to the
// first match.
type EdgeSpec struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// NodeUpdate replaces the label of an existing node identified by id
// or label.
type NodeUpdate struct {
	Reference string `json:"reference"`
	NewLabel  string `json:"new_label"`
}

// WarningLevel grades a ContextWarning.
type WarningLevel string

const (
	WarningNone     WarningLevel = "none"
	WarningInfo     WarningLevel = "info"
	WarningWarning  WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
)

// ContextWarning reports how much of the conversation and graph fit
// into the configured token budget. A critical level means the request
// must not be sent.
type ContextWarning struct {
	Level             WarningLevel `json:"level"`
	EstimatedTokens   int          `json:"estimated_tokens"`
	TokenLimit        int          `json:"token_limit"`
	Message           string       `json:"message"`
	IncludedMessages  int          `json:"included_messages"`
	TruncatedMessages int          `json:"truncated_messages"`
	IncludedNodes     int          `json:"included_nodes"`
	TruncatedNodes    int          `json:"truncated_nodes"`
	IncludedEdges     int          `json:"included_edges"`
	TruncatedEdges    int          `json:"truncated_edges"`
}

// ClarificationState tracks a pending clarification round. It is
// created when the assistant asks questions and cleared once every
// question has a non-empty answer and the original request resumes,
// or when the user cancels.
type ClarificationState struct {
	Questions         []string       `json:"questions"`
	Context           string         `json:"context,omitempty"`
	OriginalIntent    Intent         `json:"original_intent"`
	OriginalUtterance string         `json:"original_utterance"`
	Answers           map[int]string `json:"answers,omitempty"`
}

// Complete reports whether every pending question has a non-empty answer.
func (c *ClarificationState) Complete() bool {
	if c == nil || len(c.Questions) == 0 {
		return false
	}
	for i := range c.Questions {
		if c.Answers[i] == "" {
			return false
		}
	}
	return true
}
