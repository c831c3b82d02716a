// Package store persists canvases and their conversations in
// PostgreSQL. The pipeline itself never touches the store; handlers
// persist whatever the pipeline returns.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrNotFound is returned when a canvas does not exist.
var ErrNotFound = errors.New("canvas not found")

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// Canvas is one stored diagram with its id counter and any pending
// clarification round.
type Canvas struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Nodes         []common.Node              `json:"nodes"`
	Edges         []common.Edge              `json:"edges"`
	NextID        int                        `json:"next_id"`
	LastIntent    common.Intent              `json:"last_intent,omitempty"`
	Clarification *common.ClarificationState `json:"clarification,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// CanvasSummary is the listing view of a canvas.
type CanvasSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanvasStore reads and writes canvases and conversation messages.
type CanvasStore struct {
	conn pgxIConn
}

// NewCanvasStore creates a store on an existing connection or pool.
func NewCanvasStore(conn pgxIConn) *CanvasStore {
	return &CanvasStore{conn: conn}
}

// Bootstrap creates the schema if it does not exist yet.
func (s *CanvasStore) Bootstrap(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS canvases (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			nodes         JSONB NOT NULL DEFAULT '[]',
			edges         JSONB NOT NULL DEFAULT '[]',
			next_id       INTEGER NOT NULL DEFAULT 0,
			last_intent   TEXT NOT NULL DEFAULT '',
			clarification JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS canvas_messages (
			id         BIGSERIAL PRIMARY KEY,
			canvas_id  TEXT NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS canvas_messages_canvas_idx
			ON canvas_messages (canvas_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

// CreateCanvas inserts an empty canvas and returns it.
func (s *CanvasStore) CreateCanvas(ctx context.Context, name string) (Canvas, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Canvas{}, fmt.Errorf("generate canvas id: %w", err)
	}

	var canvas Canvas
	canvas.ID = id
	canvas.Name = name
	err = s.conn.QueryRow(ctx, `
		INSERT INTO canvases (id, name)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`, id, name).Scan(&canvas.CreatedAt, &canvas.UpdatedAt)
	if err != nil {
		return Canvas{}, fmt.Errorf("insert canvas: %w", err)
	}
	return canvas, nil
}

// GetCanvas loads one canvas with its graph and pending clarification.
func (s *CanvasStore) GetCanvas(ctx context.Context, id string) (Canvas, error) {
	var (
		canvas        Canvas
		nodesJSON     []byte
		edgesJSON     []byte
		clarification []byte
		lastIntent    string
	)
	err := s.conn.QueryRow(ctx, `
		SELECT id, name, nodes, edges, next_id, last_intent, clarification, created_at, updated_at
		FROM canvases
		WHERE id = $1
	`, id).Scan(
		&canvas.ID, &canvas.Name, &nodesJSON, &edgesJSON, &canvas.NextID,
		&lastIntent, &clarification, &canvas.CreatedAt, &canvas.UpdatedAt,
	)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return Canvas{}, ErrNotFound
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("load canvas %s: %w", id, err)
	}

	if err := json.Unmarshal(nodesJSON, &canvas.Nodes); err != nil {
		return Canvas{}, fmt.Errorf("decode nodes of canvas %s: %w", id, err)
	}
	if err := json.Unmarshal(edgesJSON, &canvas.Edges); err != nil {
		return Canvas{}, fmt.Errorf("decode edges of canvas %s: %w", id, err)
	}
	canvas.LastIntent = common.Intent(lastIntent)
	if len(clarification) > 0 {
		state := &common.ClarificationState{}
		if err := json.Unmarshal(clarification, state); err != nil {
			return Canvas{}, fmt.Errorf("decode clarification of canvas %s: %w", id, err)
		}
		canvas.Clarification = state
	}
	return canvas, nil
}

// ListCanvases returns summaries of all canvases, most recently
// updated first.
func (s *CanvasStore) ListCanvases(ctx context.Context) ([]CanvasSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, jsonb_array_length(nodes), jsonb_array_length(edges), updated_at
		FROM canvases
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()

	summaries := make([]CanvasSummary, 0)
	for rows.Next() {
		var s CanvasSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.NodeCount, &s.EdgeCount, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteCanvas removes a canvas and, via cascade, its messages.
func (s *CanvasStore) DeleteCanvas(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM canvases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete canvas %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveGraph replaces the stored graph and id counter of a canvas.
func (s *CanvasStore) SaveGraph(
	ctx context.Context,
	id string,
	nodes []common.Node,
	edges []common.Edge,
	nextID int,
) error {
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE canvases
		SET nodes = $2, edges = $3, next_id = $4, updated_at = now()
		WHERE id = $1
	`, id, nodesJSON, edgesJSON, nextID)
	if err != nil {
		return fmt.Errorf("save graph of canvas %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveConversationState stores the last classified intent and the
// pending clarification round (nil clears it).
func (s *CanvasStore) SaveConversationState(
	ctx context.Context,
	id string,
	lastIntent common.Intent,
	clarification *common.ClarificationState,
) error {
	var clarificationJSON []byte
	if clarification != nil {
		var err error
		clarificationJSON, err = json.Marshal(clarification)
		if err != nil {
			return fmt.Errorf("encode clarification: %w", err)
		}
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE canvases
		SET last_intent = $2, clarification = $3, updated_at = now()
		WHERE id = $1
	`, id, string(lastIntent), clarificationJSON)
	if err != nil {
		return fmt.Errorf("save conversation state of canvas %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage stores one conversation turn.
func (s *CanvasStore) AppendMessage(
	ctx context.Context,
	canvasID string,
	role string,
	content string,
) (common.ChatMessage, error) {
	msg := common.ChatMessage{Role: role, Content: content}
	err := s.conn.QueryRow(ctx, `
		INSERT INTO canvas_messages (canvas_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, canvasID, role, content).Scan(&msg.CreatedAt)
	if err != nil {
		return common.ChatMessage{}, fmt.Errorf("append message to canvas %s: %w", canvasID, err)
	}
	return msg, nil
}

// Messages returns a canvas's conversation ordered by creation time.
func (s *CanvasStore) Messages(ctx context.Context, canvasID string) ([]common.ChatMessage, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT role, content, created_at
		FROM canvas_messages
		WHERE canvas_id = $1
		ORDER BY created_at, id
	`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load messages of canvas %s: %w", canvasID, err)
	}
	defer rows.Close()

	messages := make([]common.ChatMessage, 0)
	for rows.Next() {
		var m common.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
