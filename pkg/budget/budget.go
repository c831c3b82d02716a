package budget

import (
	"fmt"
	"sync"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
	"github.com/diagraph-app/diagraph/backend/pkg/graph"
)

// Defaults for the budget configuration.
const (
	DefaultContextWindow   = 8192
	DefaultSoftRatio       = 0.70
	DefaultWarnRatio       = 0.85
	DefaultHardRatio       = 0.95
	DefaultReplyReserve    = 1024
	DefaultMessageOverhead = 4
	DefaultCacheCapacity   = 1024

	// historyShare is the fraction of the remaining budget (after the
	// system prompt and reply reserve) available to message history.
	historyShare = 0.30

	// Fixed structural overhead of the serialized context block.
	contextOverheadTokens = 24
	nodeEntryOverhead     = 8
	edgeEntryOverhead     = 8
)

// TokenCounter estimates the token cost of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter estimates one token per four characters, rounded up.
// This is the default counter and the one the threshold behavior is
// calibrated against.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// Cache is a bounded memoization of token estimates, safe for
// concurrent read and insert. When full, the oldest entry is evicted.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]int
	order    []string
}

// NewCache creates a cache holding up to capacity distinct strings.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]int, capacity),
	}
}

func (c *Cache) get(text string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[text]
	return v, ok
}

func (c *Cache) put(text string, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[text]; ok {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[text] = tokens
	c.order = append(c.order, text)
}

// Len returns the number of cached estimates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Config holds the token thresholds for one context window.
type Config struct {
	// ContextWindow is the total token budget of one request.
	ContextWindow int
	// SoftRatio, WarnRatio and HardRatio are fractions of the window:
	// the informational, truncation-triggering and send-blocking thresholds.
	SoftRatio float64
	WarnRatio float64
	HardRatio float64
	// ReplyReserve is subtracted from the budget for the expected reply.
	ReplyReserve int
	// MessageOverhead is the fixed structural cost added per message.
	MessageOverhead int
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	if c.SoftRatio <= 0 {
		c.SoftRatio = DefaultSoftRatio
	}
	if c.WarnRatio <= 0 {
		c.WarnRatio = DefaultWarnRatio
	}
	if c.HardRatio <= 0 {
		c.HardRatio = DefaultHardRatio
	}
	if c.ReplyReserve <= 0 {
		c.ReplyReserve = DefaultReplyReserve
	}
	if c.MessageOverhead <= 0 {
		c.MessageOverhead = DefaultMessageOverhead
	}
	return c
}

// Manager estimates token costs and trims conversation history and
// graph context to fit the configured window. A Manager owns its cache,
// so tests can instantiate isolated instances.
type Manager struct {
	counter TokenCounter
	cache   *Cache
	config  Config
}

// NewManagerParams configures a Manager. Counter and Cache may be nil,
// in which case the heuristic counter and a default cache are used.
type NewManagerParams struct {
	Counter TokenCounter
	Cache   *Cache
	Config  Config
}

// NewManager creates a budget manager.
func NewManager(params NewManagerParams) *Manager {
	counter := params.Counter
	if counter == nil {
		counter = HeuristicCounter{}
	}
	cache := params.Cache
	if cache == nil {
		cache = NewCache(DefaultCacheCapacity)
	}
	return &Manager{
		counter: counter,
		cache:   cache,
		config:  params.Config.withDefaults(),
	}
}

// Config returns the effective configuration after defaults are applied.
func (m *Manager) Config() Config {
	return m.config
}

// Estimate returns the memoized token estimate for text.
func (m *Manager) Estimate(text string) int {
	if tokens, ok := m.cache.get(text); ok {
		return tokens
	}
	tokens := m.counter.Count(text)
	m.cache.put(text, tokens)
	return tokens
}

// EstimateMessage returns the estimate for one message including the
// fixed structural overhead.
func (m *Manager) EstimateMessage(msg common.ChatMessage) int {
	return m.Estimate(msg.Content) + m.config.MessageOverhead
}

// FitParams are the inputs of one budgeting pass.
type FitParams struct {
	SystemPrompt string
	Messages     []common.ChatMessage
	Nodes        []common.Node
	Edges        []common.Edge
	Describe     graph.DescribeOptions
}

// FitResult carries the possibly truncated history and context plus the
// warning record. When the warning level is critical the caller must
// refuse to send the request.
type FitResult struct {
	Messages []common.ChatMessage
	Context  string
	Warning  common.ContextWarning
}

// Fit measures the request and truncates history and graph context when
// the warning threshold is crossed.
func (m *Manager) Fit(params FitParams) *FitResult {
	cfg := m.config

	fullContext := graph.Describe(params.Nodes, params.Edges, params.Describe)

	systemTokens := m.Estimate(params.SystemPrompt)
	historyTokens := 0
	for _, msg := range params.Messages {
		historyTokens += m.EstimateMessage(msg)
	}
	contextTokens := m.Estimate(fullContext)

	total := systemTokens + historyTokens + contextTokens + cfg.ReplyReserve

	soft := int(float64(cfg.ContextWindow) * cfg.SoftRatio)
	warn := int(float64(cfg.ContextWindow) * cfg.WarnRatio)
	hard := int(float64(cfg.ContextWindow) * cfg.HardRatio)

	warning := common.ContextWarning{
		Level:            common.WarningNone,
		EstimatedTokens:  total,
		TokenLimit:       cfg.ContextWindow,
		IncludedMessages: len(params.Messages),
		IncludedNodes:    len(params.Nodes),
		IncludedEdges:    len(params.Edges),
	}

	if total < soft {
		return &FitResult{Messages: params.Messages, Context: fullContext, Warning: warning}
	}

	if total < warn {
		warning.Level = common.WarningInfo
		warning.Message = fmt.Sprintf(
			"The conversation is using %d of %d available tokens. Older messages may soon be truncated.",
			total, cfg.ContextWindow,
		)
		return &FitResult{Messages: params.Messages, Context: fullContext, Warning: warning}
	}

	// Past the warning threshold: trim the history, then budget the
	// graph context with whatever is left.
	remaining := cfg.ContextWindow - systemTokens - cfg.ReplyReserve
	if remaining < 0 {
		remaining = 0
	}

	messageBudget := int(float64(remaining) * historyShare)
	kept, keptTokens := m.trimHistory(params.Messages, messageBudget)

	contextBudget := remaining - keptTokens
	maxNodes := m.fitNodeCount(params.Nodes, params.Edges, contextBudget)

	describeOpts := params.Describe
	describeOpts.MaxNodes = maxNodes
	truncatedContext := graph.Describe(params.Nodes, params.Edges, describeOpts)

	includedNodes := graph.SelectNodes(params.Nodes, params.Describe.PriorityNodeIDs, maxNodes)
	includedSet := make(map[string]struct{}, len(includedNodes))
	for _, n := range includedNodes {
		includedSet[n.ID] = struct{}{}
	}
	includedEdges := 0
	for _, e := range params.Edges {
		if _, ok := includedSet[e.Source]; !ok {
			continue
		}
		if _, ok := includedSet[e.Target]; !ok {
			continue
		}
		includedEdges++
	}

	finalTotal := systemTokens + keptTokens + m.Estimate(truncatedContext) + cfg.ReplyReserve

	warning.EstimatedTokens = finalTotal
	warning.IncludedMessages = len(kept)
	warning.TruncatedMessages = len(params.Messages) - len(kept)
	warning.IncludedNodes = len(includedNodes)
	warning.TruncatedNodes = len(params.Nodes) - len(includedNodes)
	warning.IncludedEdges = includedEdges
	warning.TruncatedEdges = len(params.Edges) - includedEdges

	if finalTotal >= hard {
		warning.Level = common.WarningCritical
		warning.Message = fmt.Sprintf(
			"The request still needs %d of %d available tokens after truncation and cannot be sent. Remove or shorten some content and try again.",
			finalTotal, cfg.ContextWindow,
		)
	} else {
		warning.Level = common.WarningWarning
		warning.Message = fmt.Sprintf(
			"Truncated the conversation to fit the token budget: kept %d of %d messages and %d of %d nodes.",
			len(kept), len(params.Messages), len(includedNodes), len(params.Nodes),
		)
	}

	return &FitResult{Messages: kept, Context: truncatedContext, Warning: warning}
}

// trimHistory keeps the most recent messages that fit the budget,
// dropping from the oldest end.
func (m *Manager) trimHistory(messages []common.ChatMessage, budget int) ([]common.ChatMessage, int) {
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := m.EstimateMessage(messages[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return messages[start:], used
}

// fitNodeCount binary-searches the maximum node count whose estimated
// serialization cost fits the budget, with a floor of one node when any
// nodes exist.
func (m *Manager) fitNodeCount(nodes []common.Node, edges []common.Edge, budget int) int {
	if len(nodes) == 0 {
		return 0
	}

	perNode := m.estimatePerNodeCost(nodes)
	perEdge := m.estimatePerEdgeCost(edges)
	edgeCost := len(edges) * perEdge

	fits := func(count int) bool {
		return count*perNode+edgeCost+contextOverheadTokens <= budget
	}

	lo, hi := 1, len(nodes)
	if !fits(lo) {
		return 1
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (m *Manager) estimatePerNodeCost(nodes []common.Node) int {
	if len(nodes) == 0 {
		return nodeEntryOverhead
	}
	total := 0
	for _, n := range nodes {
		total += m.Estimate(n.Label) + nodeEntryOverhead
	}
	return total / len(nodes)
}

func (m *Manager) estimatePerEdgeCost(edges []common.Edge) int {
	if len(edges) == 0 {
		return edgeEntryOverhead
	}
	total := 0
	for _, e := range edges {
		total += m.Estimate(e.Label) + edgeEntryOverhead
	}
	return total / len(edges)
}
