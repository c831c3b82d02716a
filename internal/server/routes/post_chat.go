package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"
	"github.com/diagraph-app/diagraph/backend/pkg/assistant"
	"github.com/diagraph-app/diagraph/backend/pkg/common"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type chatBody struct {
	Message string `json:"message"`

	// Answers carries clarification answers keyed by question index.
	// JSON object keys are strings, so indexes arrive as "0", "1", ...
	Answers map[string]string `json:"answers"`

	SelectedNodeIDs []string `json:"selected_node_ids"`
}

type chatResponse struct {
	State      assistant.State      `json:"state"`
	Intent     common.Intent        `json:"intent,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	Reply      string               `json:"reply"`
	Action     *common.ParsedAction `json:"action"`

	Warning       *common.ContextWarning     `json:"warning,omitempty"`
	Clarification *common.ClarificationState `json:"clarification,omitempty"`

	NewNodes []common.Node `json:"new_nodes,omitempty"`
	NewEdges []common.Edge `json:"new_edges,omitempty"`
	Notes    []string      `json:"notes,omitempty"`
}

// ChatHandler runs one assistant turn against a canvas: it loads the
// canvas and its history, merges any clarification answers, runs the
// pipeline and persists the resulting graph changes, conversation
// state and transcript before replying.
func ChatHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	body := chatBody{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" && len(body.Answers) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Provide a message or clarification answers",
		})
	}

	canvas, err := app.Store.GetCanvas(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Canvas not found",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to load canvas",
		})
	}

	history, err := app.Store.Messages(ctx, canvas.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to load messages",
		})
	}

	clarification := mergeAnswers(canvas.Clarification, body.Answers)

	result, err := app.Assistant.Process(ctx, assistant.ProcessParams{
		ConversationID:  canvas.ID,
		Utterance:       body.Message,
		Nodes:           canvas.Nodes,
		Edges:           canvas.Edges,
		History:         history,
		SelectedNodeIDs: body.SelectedNodeIDs,
		PreviousIntent:  canvas.LastIntent,
		Clarification:   clarification,
		NextID:          canvas.NextID,
	})
	if err != nil {
		logger.Error("[Chat] pipeline run failed", "canvas", canvas.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to process message",
		})
	}

	if body.Message != "" {
		if _, err := app.Store.AppendMessage(ctx, canvas.ID, common.RoleUser, body.Message); err != nil {
			logger.Error("[Chat] failed to persist user message", "canvas", canvas.ID, "err", err)
		}
	}

	if len(result.NewNodes) > 0 || len(result.NewEdges) > 0 {
		nodes := append(canvas.Nodes, result.NewNodes...)
		edges := append(canvas.Edges, result.NewEdges...)
		if err := app.Store.SaveGraph(ctx, canvas.ID, nodes, edges, result.NextID); err != nil {
			logger.Error("[Chat] failed to persist graph", "canvas", canvas.ID, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to save canvas changes",
			})
		}
	}

	lastIntent := result.Intent
	if lastIntent == "" {
		lastIntent = canvas.LastIntent
	}
	if err := app.Store.SaveConversationState(ctx, canvas.ID, lastIntent, result.Clarification); err != nil {
		logger.Error("[Chat] failed to persist conversation state", "canvas", canvas.ID, "err", err)
	}

	reply := renderReply(result)
	if reply != "" {
		if _, err := app.Store.AppendMessage(ctx, canvas.ID, common.RoleAssistant, reply); err != nil {
			logger.Error("[Chat] failed to persist assistant message", "canvas", canvas.ID, "err", err)
		}
	}

	return c.JSON(http.StatusOK, chatResponse{
		State:         result.State,
		Intent:        result.Intent,
		Confidence:    result.Confidence,
		Reply:         reply,
		Action:        result.Action,
		Warning:       result.Warning,
		Clarification: result.Clarification,
		NewNodes:      result.NewNodes,
		NewEdges:      result.NewEdges,
		Notes:         result.Notes,
	})
}

// mergeAnswers folds incoming answers into the pending clarification
// state. Answers without a pending round, or with out-of-range keys,
// are ignored.
func mergeAnswers(state *common.ClarificationState, answers map[string]string) *common.ClarificationState {
	if state == nil || len(answers) == 0 {
		return state
	}
	if state.Answers == nil {
		state.Answers = map[int]string{}
	}
	for key, answer := range answers {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(state.Questions) {
			logger.Warn("[Chat] ignoring answer with invalid index", "key", key)
			continue
		}
		if answer = strings.TrimSpace(answer); answer != "" {
			state.Answers[idx] = answer
		}
	}
	return state
}

// renderReply turns the structured action into the transcript line the
// user sees for this turn.
func renderReply(result *assistant.ProcessResult) string {
	action := result.Action
	if action == nil {
		return ""
	}
	switch action.Kind {
	case common.ActionAdd:
		if action.Explanation != "" {
			return action.Explanation
		}
		return fmt.Sprintf("Added %d element(s) to the canvas.", len(result.NewNodes)+len(result.NewEdges))
	case common.ActionAnswer:
		return action.Answer
	case common.ActionClarify:
		var b strings.Builder
		if action.ClarifyContext != "" {
			b.WriteString(action.ClarifyContext)
			b.WriteString("\n")
		}
		for _, q := range action.Questions {
			b.WriteString("- ")
			b.WriteString(q)
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	case common.ActionUpdate:
		if action.Explanation != "" {
			return action.Explanation
		}
		return fmt.Sprintf("Updated %d node(s).", len(action.Updates))
	default:
		return action.Message
	}
}
