package assistant

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/budget"
	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int

	reply string
	err   error
	delay time.Duration

	lastSystem []string
	lastTurns  []ai.ChatMessage
}

func (f *fakeClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{}
	for _, o := range opts {
		o(&options)
	}

	f.mu.Lock()
	f.calls++
	f.lastSystem = options.SystemPrompts
	f.lastTurns = messages
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeClient) ResetMetrics() {}

func (f *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) systemPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSystem
}

func (f *fakeClient) turns() []ai.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTurns
}

func newTestAssistant(client ai.CanvasAIClient) *Assistant {
	return NewAssistant(NewAssistantParams{Client: client})
}

func TestProcess_AddOnEmptyCanvas(t *testing.T) {
	client := &fakeClient{reply: `{"action": "add", "nodes": [{"label": "Budget"}], "explanation": "added"}`}
	a := newTestAssistant(client)

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "add a rectangle called Budget",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Intent != common.IntentAddNodes {
		t.Fatalf("intent = %q", result.Intent)
	}
	if result.State != StateApplied {
		t.Fatalf("state = %q", result.State)
	}
	if len(result.NewNodes) != 1 {
		t.Fatalf("expected 1 new node, got %d", len(result.NewNodes))
	}
	n := result.NewNodes[0]
	if n.Label != "Budget" || n.Shape != common.DefaultShape {
		t.Fatalf("node = %+v", n)
	}
	if n.Position.X != 0 || n.Position.Y != 0 {
		t.Fatalf("expected centered placement, got (%v, %v)", n.Position.X, n.Position.Y)
	}
	if n.ID == "" {
		t.Fatal("expected a generated id")
	}
	if result.NextID == 0 {
		t.Fatal("id counter must advance")
	}
}

func TestProcess_QueryGroundsPromptInCanvas(t *testing.T) {
	client := &fakeClient{reply: `{"action": "answer", "answer": "They are directly connected via funds."}`}
	a := newTestAssistant(client)

	nodes := []common.Node{
		{ID: "node-0", Shape: common.ShapeRectangle, Label: "Revenue"},
		{ID: "node-1", Shape: common.ShapeRectangle, Label: "Costs", Position: common.Position{X: 300}},
	}
	edges := []common.Edge{{ID: "edge-2", Source: "node-0", Target: "node-1", Label: "funds"}}

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "how are Revenue and Costs related?",
		Nodes:          nodes,
		Edges:          edges,
		NextID:         3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Intent != common.IntentQueryRelationships {
		t.Fatalf("intent = %q", result.Intent)
	}
	if result.State != StateApplied {
		t.Fatalf("state = %q", result.State)
	}
	if result.Action.Kind != common.ActionAnswer {
		t.Fatalf("action = %q", result.Action.Kind)
	}

	system := client.systemPrompts()
	if len(system) != 1 {
		t.Fatalf("expected one system prompt, got %d", len(system))
	}
	if !strings.Contains(system[0], "Revenue") || !strings.Contains(system[0], "funds") {
		t.Fatal("system prompt must carry the serialized canvas")
	}

	turns := client.turns()
	last := turns[len(turns)-1]
	if last.Role != common.RoleUser || !strings.Contains(last.Message, "related") {
		t.Fatalf("last turn must be the utterance, got %+v", last)
	}
}

func TestProcess_ClarifyCreatesState(t *testing.T) {
	client := &fakeClient{reply: `{"action": "clarify", "questions": ["Which part of the flow?"], "context": "too broad"}`}
	a := newTestAssistant(client)

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "add everything we talked about",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.State != StateAwaitingClarification {
		t.Fatalf("state = %q", result.State)
	}
	state := result.Clarification
	if state == nil {
		t.Fatal("expected a clarification state")
	}
	if len(state.Questions) != 1 {
		t.Fatalf("questions = %v", state.Questions)
	}
	if state.OriginalUtterance != "add everything we talked about" {
		t.Fatalf("original utterance = %q", state.OriginalUtterance)
	}
	if state.OriginalIntent != result.Intent {
		t.Fatalf("original intent = %q, result intent = %q", state.OriginalIntent, result.Intent)
	}
}

func TestProcess_IncompleteClarificationDoesNotCallModel(t *testing.T) {
	client := &fakeClient{reply: `{"action": "answer", "answer": "should not happen"}`}
	a := newTestAssistant(client)

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "the payment part",
		Clarification: &common.ClarificationState{
			Questions: []string{"Which part?", "What shape?"},
			Answers:   map[int]string{0: "payments"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.callCount() != 0 {
		t.Fatal("model must not be called while questions are unanswered")
	}
	if result.State != StateAwaitingClarification {
		t.Fatalf("state = %q", result.State)
	}
	if result.Action.Kind != common.ActionClarify {
		t.Fatalf("action = %q", result.Action.Kind)
	}
}

func TestProcess_ResumeForcesOriginalIntent(t *testing.T) {
	client := &fakeClient{reply: `{"action": "add", "nodes": [{"label": "Checkout"}]}`}
	a := newTestAssistant(client)

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "the checkout flow",
		Clarification: &common.ClarificationState{
			Questions:         []string{"Which flow?"},
			Answers:           map[int]string{0: "the checkout flow"},
			OriginalIntent:    common.IntentAddNodes,
			OriginalUtterance: "add the flow we discussed",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Intent != common.IntentAddNodes {
		t.Fatalf("intent = %q, must be forced to the original", result.Intent)
	}
	if result.Clarification != nil {
		t.Fatal("clarification state must be cleared after resume")
	}

	turns := client.turns()
	last := turns[len(turns)-1].Message
	if !strings.Contains(last, "add the flow we discussed") {
		t.Fatal("resumed turn must carry the original utterance")
	}
	if !strings.Contains(last, "Clarifications:") || !strings.Contains(last, "the checkout flow") {
		t.Fatal("resumed turn must carry the Q/A pairs")
	}
	if result.State != StateApplied {
		t.Fatalf("state = %q", result.State)
	}
}

func TestProcess_DeadlineBecomesComplexityAdvisory(t *testing.T) {
	client := &fakeClient{reply: "late", delay: 200 * time.Millisecond}
	a := NewAssistant(NewAssistantParams{Client: client, Deadline: 20 * time.Millisecond})

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "simulate the whole system end to end",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Action.Kind != common.ActionComplexityWarning {
		t.Fatalf("action = %q, want complexity advisory", result.Action.Kind)
	}
	if result.State != StateIdle {
		t.Fatalf("state = %q", result.State)
	}
}

func TestProcess_AuthFailureSurfacesAsError(t *testing.T) {
	client := &fakeClient{err: &ai.AuthenticationError{Op: "test"}}
	a := newTestAssistant(client)

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "add a node for billing",
	})
	if err != nil {
		t.Fatalf("terminal outcomes surface conversationally, got error: %v", err)
	}
	if result.Action.Kind != common.ActionError {
		t.Fatalf("action = %q", result.Action.Kind)
	}
	if result.State != StateIdle {
		t.Fatalf("state = %q", result.State)
	}
}

func TestProcess_NodeCeiling(t *testing.T) {
	reply := `{"action": "add", "nodes": [
		{"label": "A"}, {"label": "B"}, {"label": "C"},
		{"label": "D"}, {"label": "E"}, {"label": "F"}
	]}`

	t.Run("without explicit override", func(t *testing.T) {
		client := &fakeClient{reply: reply}
		a := newTestAssistant(client)
		result, err := a.Process(context.Background(), ProcessParams{
			ConversationID: "c1",
			Utterance:      "add the services",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Action.Kind != common.ActionComplexityWarning {
			t.Fatalf("action = %q, want advisory", result.Action.Kind)
		}
		if len(result.NewNodes) != 0 {
			t.Fatal("nothing may be materialized past the ceiling")
		}
	})

	t.Run("with explicit count", func(t *testing.T) {
		client := &fakeClient{reply: reply}
		a := newTestAssistant(client)
		result, err := a.Process(context.Background(), ProcessParams{
			ConversationID: "c1",
			Utterance:      "add 6 services",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.State != StateApplied {
			t.Fatalf("state = %q", result.State)
		}
		if len(result.NewNodes) != 6 {
			t.Fatalf("expected 6 nodes, got %d", len(result.NewNodes))
		}
	})
}

func TestProcess_CriticalBudgetBlocksSend(t *testing.T) {
	client := &fakeClient{reply: "never sent"}
	a := NewAssistant(NewAssistantParams{
		Client: client,
		Budget: budget.NewManager(budget.NewManagerParams{
			Config: budget.Config{ContextWindow: 256},
		}),
	})

	result, err := a.Process(context.Background(), ProcessParams{
		ConversationID: "c1",
		Utterance:      "what does this show?",
		Nodes: []common.Node{
			{ID: "node-0", Label: strings.Repeat("very long label ", 200)},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.callCount() != 0 {
		t.Fatal("a critical budget must block the send")
	}
	if result.Warning == nil || result.Warning.Level != common.WarningCritical {
		t.Fatalf("warning = %+v", result.Warning)
	}
	if result.Action.Kind != common.ActionError {
		t.Fatalf("action = %q", result.Action.Kind)
	}
}

func TestProcess_SingleFlightPerConversation(t *testing.T) {
	client := &fakeClient{
		reply: `{"action": "answer", "answer": "ok"}`,
		delay: 50 * time.Millisecond,
	}
	a := newTestAssistant(client)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Process(context.Background(), ProcessParams{
				ConversationID: "same",
				Utterance:      "summarize the canvas",
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if client.callCount() != 1 {
		t.Fatalf("concurrent sends on one conversation must collapse, got %d calls", client.callCount())
	}
}
