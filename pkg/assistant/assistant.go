// Package assistant runs the natural-language-to-diagram pipeline: it
// classifies an utterance, serializes the canvas into a token-budgeted
// context, calls the model, parses the reply into one action and
// materializes add-actions into positioned elements. The pipeline is
// side-effect-free; callers persist whatever it returns.
package assistant

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/budget"
	"github.com/diagraph-app/diagraph/backend/pkg/common"
	"github.com/diagraph-app/diagraph/backend/pkg/graph"
	"github.com/diagraph-app/diagraph/backend/pkg/intent"
	"github.com/diagraph-app/diagraph/backend/pkg/layout"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// State is the conversation-level position in the processing lifecycle.
type State string

const (
	StateIdle                  State = "idle"
	StateProcessing            State = "processing"
	StateApplied               State = "applied"
	StateAwaitingClarification State = "awaiting_clarification"
)

const (
	// defaultDeadline is the wall-clock ceiling on one model call. It
	// is a business rule, separate from the transport timeout; expiry
	// surfaces as a "too complex" advisory, not a silent failure.
	defaultDeadline = 30 * time.Second

	defaultTemperature = 0.2
)

const tooComplexMessage = "That request took too long to work out. " +
	"Try breaking it into smaller steps."

// Assistant orchestrates the pipeline. Sends on the same conversation
// are collapsed into a single flight; distinct conversations proceed
// independently, sharing only the token-estimate cache inside the
// budget manager.
type Assistant struct {
	client  ai.CanvasAIClient
	budget  *budget.Manager
	model   string
	temp    float64
	timeout time.Duration
	spacing float64
	bounds  *layout.Bounds

	flight singleflight.Group
}

// NewAssistantParams configures an Assistant. Client is required;
// everything else falls back to defaults.
type NewAssistantParams struct {
	Client ai.CanvasAIClient
	Budget *budget.Manager

	Model       string
	Temperature float64
	Deadline    time.Duration

	Spacing float64
	Bounds  *layout.Bounds
}

// NewAssistant creates an assistant.
func NewAssistant(params NewAssistantParams) *Assistant {
	b := params.Budget
	if b == nil {
		b = budget.NewManager(budget.NewManagerParams{})
	}
	temp := params.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	timeout := params.Deadline
	if timeout <= 0 {
		timeout = defaultDeadline
	}
	return &Assistant{
		client:  params.Client,
		budget:  b,
		model:   params.Model,
		temp:    temp,
		timeout: timeout,
		spacing: params.Spacing,
		bounds:  params.Bounds,
	}
}

// ProcessParams are the inputs for one pipeline run.
type ProcessParams struct {
	ConversationID string
	Utterance      string

	Nodes []common.Node
	Edges []common.Edge

	History         []common.ChatMessage
	SelectedNodeIDs []string
	PreviousIntent  common.Intent

	// Clarification resumes a pending clarification round. When every
	// question has an answer the original utterance is re-run with the
	// Q/A pairs appended and the original intent forced.
	Clarification *common.ClarificationState

	// NextID is the caller-owned id counter; the advanced value comes
	// back in the result and must be persisted.
	NextID int
}

// ProcessResult is the outcome of one pipeline run. Action is always
// set; NewNodes and NewEdges are populated only for applied
// add-actions.
type ProcessResult struct {
	State      State
	Intent     common.Intent
	Confidence float64

	Action        *common.ParsedAction
	Warning       *common.ContextWarning
	Clarification *common.ClarificationState

	NewNodes []common.Node
	NewEdges []common.Edge
	NextID   int

	// Notes are non-fatal per-entry issues: placement adjustments and
	// dropped edges.
	Notes []string
}

// Process runs the pipeline for one utterance. Concurrent calls with
// the same conversation id share a single in-flight run; its result is
// returned to every caller.
func (a *Assistant) Process(ctx context.Context, params ProcessParams) (*ProcessResult, error) {
	v, err, _ := a.flight.Do(params.ConversationID, func() (any, error) {
		return a.run(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProcessResult), nil
}

func (a *Assistant) run(ctx context.Context, params ProcessParams) (*ProcessResult, error) {
	result := &ProcessResult{State: StateProcessing, NextID: params.NextID}

	utterance := params.Utterance
	var classified intent.Result

	if state := params.Clarification; state != nil {
		if !state.Complete() {
			result.Action = &common.ParsedAction{
				Kind:           common.ActionClarify,
				Questions:      state.Questions,
				ClarifyContext: state.Context,
			}
			result.Clarification = state
			result.State = StateAwaitingClarification
			return result, nil
		}
		utterance = augmentWithAnswers(state)
		classified = intent.Result{
			Intent:     state.OriginalIntent,
			Confidence: 1,
			Reasoning:  "resumed after clarification",
		}
	} else {
		classified = intent.Classify(params.Utterance, params.PreviousIntent)
	}
	result.Intent = classified.Intent
	result.Confidence = classified.Confidence

	fit := a.budget.Fit(budget.FitParams{
		SystemPrompt: promptSkeleton(classified.Intent),
		Messages:     params.History,
		Nodes:        params.Nodes,
		Edges:        params.Edges,
		Describe: graph.DescribeOptions{
			IncludeTags:     true,
			PriorityNodeIDs: params.SelectedNodeIDs,
			IncludeAnalysis: wantsAnalysis(classified.Intent),
		},
	})
	if fit.Warning.Level != common.WarningNone {
		warning := fit.Warning
		result.Warning = &warning
	}
	if fit.Warning.Level == common.WarningCritical {
		// Business rule: a critical budget blocks the send entirely.
		result.Action = &common.ParsedAction{
			Kind:    common.ActionError,
			Message: fit.Warning.Message,
		}
		result.State = StateIdle
		return result, nil
	}

	system := buildSystemPrompt(fit.Context, classified.Intent)
	turns := buildTurns(fit.Messages, utterance)

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(system),
		ai.WithTemperature(a.temp),
		ai.WithMaxTokens(a.budget.Config().ReplyReserve),
	}
	if a.model != "" {
		opts = append(opts, ai.WithModel(a.model))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.client.GenerateChat(callCtx, turns, opts...)
	if err != nil {
		a.failSend(result, callCtx, err)
		return result, nil
	}

	action := ParseResponse(reply)
	a.apply(result, params, utterance, action)
	return result, nil
}

// failSend turns a terminal send failure into a conversational action.
// There is no silent failure path: even errors come back as something
// the user reads.
func (a *Assistant) failSend(result *ProcessResult, callCtx context.Context, err error) {
	result.State = StateIdle

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("[Assistant] model call hit the deadline", "deadline", a.timeout)
		result.Action = &common.ParsedAction{
			Kind:    common.ActionComplexityWarning,
			Message: tooComplexMessage,
		}
		return
	}

	var authErr *ai.AuthenticationError
	if errors.As(err, &authErr) {
		logger.Error("[Assistant] authentication failed", "err", err)
		result.Action = &common.ParsedAction{
			Kind:    common.ActionError,
			Message: "The assistant is not configured correctly. Check the AI credentials.",
		}
		return
	}

	logger.Error("[Assistant] model call failed", "err", err)
	result.Action = &common.ParsedAction{
		Kind:    common.ActionError,
		Message: "The assistant could not be reached. Please try again.",
	}
}

func (a *Assistant) apply(
	result *ProcessResult,
	params ProcessParams,
	utterance string,
	action common.ParsedAction,
) {
	switch action.Kind {
	case common.ActionAdd:
		if len(action.Nodes) > ai.MaxNewNodesPerRequest && !asksForMany(utterance, len(action.Nodes)) {
			result.Action = &common.ParsedAction{
				Kind: common.ActionComplexityWarning,
				Message: "That would add " + strconv.Itoa(len(action.Nodes)) +
					" nodes at once. Ask for the most important ones first, or say explicitly how many you want.",
			}
			result.State = StateIdle
			return
		}

		materialized := layout.Materialize(layout.MaterializeParams{
			Nodes:         action.Nodes,
			Edges:         action.Edges,
			ExistingNodes: params.Nodes,
			ExistingEdges: params.Edges,
			NextID:        params.NextID,
			Spacing:       a.spacing,
			Bounds:        a.bounds,
		})
		result.Action = &action
		result.NewNodes = materialized.Nodes
		result.NewEdges = materialized.Edges
		result.NextID = materialized.NextID
		result.Notes = append(materialized.Warnings, materialized.Errors...)
		result.State = StateApplied

	case common.ActionAnswer, common.ActionUpdate:
		result.Action = &action
		result.State = StateApplied

	case common.ActionClarify:
		result.Action = &action
		result.Clarification = &common.ClarificationState{
			Questions:         action.Questions,
			Context:           action.ClarifyContext,
			OriginalIntent:    result.Intent,
			OriginalUtterance: params.Utterance,
			Answers:           map[int]string{},
		}
		result.State = StateAwaitingClarification

	default:
		result.Action = &action
		result.State = StateIdle
	}
}

func wantsAnalysis(i common.Intent) bool {
	switch i {
	case common.IntentQueryRelationships, common.IntentExploreStructure, common.IntentSimulate:
		return true
	}
	return false
}

// asksForMany reports whether the utterance explicitly mentions a node
// count at least as large as the proposed batch, which overrides the
// advisory ceiling.
func asksForMany(utterance string, count int) bool {
	for _, field := range strings.FieldsFunc(utterance, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if n, err := strconv.Atoi(field); err == nil && n >= count {
			return true
		}
	}
	return false
}
