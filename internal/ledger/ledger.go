package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"contctl/internal/summarizer"
)

// Source 待办条目来源
// Source identifies how a todo entered the ledger
type Source string

const (
	SourceUserRequirement Source = "user_requirement"
	SourceCodeComment     Source = "code_comment"
	SourceAIIdentified    Source = "ai_identified"
	SourceVerifyFailure   Source = "verify_failure"
)

// Status 待办条目状态
// Status is the lifecycle state of a todo
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// TodoItem 待办条目
// TodoItem is a single unit of outstanding work
type TodoItem struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Source      Source     `json:"source"`
	Status      Status     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	BlockReason string     `json:"block_reason,omitempty"`
}

// Config 账本配置
// Config holds ledger configuration
type Config struct {
	// MaxIterations 是 stop-check 的迭代上限，防止无限续作循环
	// MaxIterations caps stop-checks per session to prevent infinite continuation loops
	MaxIterations         int
	EnableAutoExtract     bool
	EnableCodeCommentScan bool
}

// DefaultConfig 返回默认配置
// DefaultConfig returns the default ledger configuration
func DefaultConfig() Config {
	return Config{
		MaxIterations:         50,
		EnableAutoExtract:     true,
		EnableCodeCommentScan: true,
	}
}

// ConfigUpdate 部分配置更新；nil 字段保持不变
// ConfigUpdate is a partial config update; nil fields are left unchanged
type ConfigUpdate struct {
	MaxIterations         *int
	EnableAutoExtract     *bool
	EnableCodeCommentScan *bool
}

// Stats 会话统计快照
// Stats is a read-only per-session snapshot
type Stats struct {
	Total      int  `json:"total"`
	Pending    int  `json:"pending"`
	InProgress int  `json:"in_progress"`
	Completed  int  `json:"completed"`
	Blocked    int  `json:"blocked"`
	Iterations int  `json:"iterations"`
	Enabled    bool `json:"enabled"`
}

// StopCheck 是一次 stop-check 的结果
// StopCheck is the result of one stop-check call
type StopCheck struct {
	CanStop         bool       `json:"can_stop"`
	Reason          string     `json:"reason"`
	IncompleteTodos []TodoItem `json:"incomplete_todos,omitempty"`
	Stats           Stats      `json:"stats"`
}

// Repository 可选的持久化包装；nil 保持纯内存行为
// Repository is the optional durability wrapper; nil keeps the ledger in-memory
type Repository interface {
	SaveTodos(sessionID string, items []TodoItem) error
	DeleteTodos(sessionID string) error
}

type sessionState struct {
	enabled    bool
	iterations int
	todos      []*TodoItem
}

// Ledger 按 session 记录未完成任务并决定会话能否停止
// Ledger tracks outstanding work per session and decides whether a session may stop.
// Different sessions are independent; calls for one session are expected to be
// serialized by the host loop, but the backing map is safe across sessions.
type Ledger struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	cfg      Config
	summ     summarizer.Summarizer
	repo     Repository
	nextID   int64
}

// New 创建账本；summ 与 repo 均可为 nil
// New creates a ledger; both summ and repo may be nil
func New(cfg Config, summ summarizer.Summarizer, repo Repository) *Ledger {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	return &Ledger{
		sessions: make(map[string]*sessionState),
		cfg:      cfg,
		summ:     summ,
		repo:     repo,
	}
}

// Enable 开始追踪会话；重复调用幂等，迭代计数归零
// Enable starts tracking a session; idempotent, resets the iteration counter.
// Todos from a previous enable/disable cycle are kept.
func (l *Ledger) Enable(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sessions[sessionID]
	if st == nil {
		st = &sessionState{}
		l.sessions[sessionID] = st
	}
	st.enabled = true
	st.iterations = 0
}

// Disable 关闭追踪；已存在的待办保留
// Disable stops tracking; existing todos are kept
func (l *Ledger) Disable(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st := l.sessions[sessionID]; st != nil {
		st.enabled = false
	}
}

// IsEnabled 返回会话是否在追踪中
// IsEnabled reports whether the session is being tracked
func (l *Ledger) IsEnabled(sessionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.sessions[sessionID]
	return st != nil && st.enabled
}

// AddTodo 追加一条 AI 自识别的待办；总是成功
// AddTodo appends an AI-identified todo; always succeeds
func (l *Ledger) AddTodo(sessionID, description string) TodoItem {
	return l.append(sessionID, description, SourceAIIdentified)
}

// AddVerifyFailure 追加一条验证失败待办
// AddVerifyFailure appends a verification-failure todo
func (l *Ledger) AddVerifyFailure(sessionID, description string) TodoItem {
	return l.append(sessionID, description, SourceVerifyFailure)
}

func (l *Ledger) append(sessionID, description string, source Source) TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := l.appendLocked(sessionID, description, source)
	l.persistLocked(sessionID)
	return *item
}

func (l *Ledger) appendLocked(sessionID, description string, source Source) *TodoItem {
	st := l.sessions[sessionID]
	if st == nil {
		st = &sessionState{}
		l.sessions[sessionID] = st
	}
	l.nextID++
	item := &TodoItem{
		ID:          fmt.Sprintf("todo-%d", l.nextID),
		Description: strings.TrimSpace(description),
		Source:      source,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	st.todos = append(st.todos, item)
	return item
}

// MarkCompleted 标记完成；未知 id/session 为 no-op，重复标记幂等
// MarkCompleted completes a todo; unknown id/session is a no-op, repeats are idempotent
func (l *Ledger) MarkCompleted(sessionID, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := l.findLocked(sessionID, id)
	if item == nil {
		return
	}
	if item.Status != StatusCompleted {
		now := time.Now()
		item.Status = StatusCompleted
		item.CompletedAt = &now
	}
	l.persistLocked(sessionID)
}

// MarkInProgress 标记进行中；未知 id/session 为 no-op
// MarkInProgress marks a todo in progress; unknown id/session is a no-op
func (l *Ledger) MarkInProgress(sessionID, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := l.findLocked(sessionID, id)
	if item == nil {
		return
	}
	item.Status = StatusInProgress
	l.persistLocked(sessionID)
}

// MarkBlocked 标记阻塞并记录原因；未知 id/session 为 no-op
// MarkBlocked blocks a todo with a reason; unknown id/session is a no-op
func (l *Ledger) MarkBlocked(sessionID, id, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := l.findLocked(sessionID, id)
	if item == nil {
		return
	}
	item.Status = StatusBlocked
	item.BlockReason = strings.TrimSpace(reason)
	l.persistLocked(sessionID)
}

// MarkCompletedByDescription 用大小写无关子串匹配完成所有 pending 条目
// MarkCompletedByDescription completes every pending todo whose description
// contains the substring (case-insensitive). Convenience for models that
// report completion by topic rather than by id. Returns the completion count.
func (l *Ledger) MarkCompletedByDescription(sessionID, substring string) int {
	needle := strings.ToLower(strings.TrimSpace(substring))
	if needle == "" {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sessions[sessionID]
	if st == nil {
		return 0
	}
	completed := 0
	for _, item := range st.todos {
		if item.Status != StatusPending {
			continue
		}
		if !strings.Contains(strings.ToLower(item.Description), needle) {
			continue
		}
		now := time.Now()
		item.Status = StatusCompleted
		item.CompletedAt = &now
		completed++
	}
	if completed > 0 {
		l.persistLocked(sessionID)
	}
	return completed
}

// CheckCanStop 判断会话能否停止；每次调用迭代计数恰好 +1
// CheckCanStop decides whether the session may stop. The iteration counter is
// incremented exactly once per call. Decision priority: tracking disabled
// overrides everything, then the iteration ceiling, then outstanding work.
func (l *Ledger) CheckCanStop(sessionID string) StopCheck {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sessions[sessionID]
	if st == nil || !st.enabled {
		return StopCheck{
			CanStop: true,
			Reason:  "task tracking disabled",
			Stats:   l.statsLocked(sessionID),
		}
	}

	st.iterations++
	incomplete := incompleteOf(st.todos)

	if st.iterations >= l.cfg.MaxIterations {
		return StopCheck{
			CanStop:         true,
			Reason:          fmt.Sprintf("iteration ceiling reached (%d)", l.cfg.MaxIterations),
			IncompleteTodos: incomplete,
			Stats:           l.statsLocked(sessionID),
		}
	}

	if len(incomplete) == 0 {
		return StopCheck{
			CanStop: true,
			Reason:  "all tasks completed",
			Stats:   l.statsLocked(sessionID),
		}
	}

	return StopCheck{
		CanStop:         false,
		Reason:          fmt.Sprintf("%d task(s) still outstanding", len(incomplete)),
		IncompleteTodos: incomplete,
		Stats:           l.statsLocked(sessionID),
	}
}

const continuationHeader = "[TODO_CONTINUATION]\nOutstanding tasks remain, do not stop yet:"

// GenerateContinuationPrompt 渲染续作提示；允许停止时返回空串
// GenerateContinuationPrompt renders the continuation directive for the next
// turn, or the empty string when stopping would be permitted. Unlike
// CheckCanStop this never advances the iteration counter.
func (l *Ledger) GenerateContinuationPrompt(sessionID string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := l.sessions[sessionID]
	if st == nil || !st.enabled {
		return ""
	}
	if st.iterations >= l.cfg.MaxIterations {
		return ""
	}
	incomplete := incompleteOf(st.todos)
	if len(incomplete) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(continuationHeader)
	for _, item := range incomplete {
		b.WriteString("\n- ")
		b.WriteString(item.Description)
		if item.Status == StatusInProgress {
			b.WriteString(" (in progress)")
		}
	}
	b.WriteString("\nComplete these tasks, or mark them blocked with a reason, before finishing.")
	return b.String()
}

// GetTodos 返回会话待办的拷贝快照
// GetTodos returns a copied snapshot of the session's todos
func (l *Ledger) GetTodos(sessionID string) []TodoItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.sessions[sessionID]
	if st == nil {
		return nil
	}
	out := make([]TodoItem, 0, len(st.todos))
	for _, item := range st.todos {
		out = append(out, *item)
	}
	return out
}

// GetStats 返回会话统计快照
// GetStats returns the session's stats snapshot
func (l *Ledger) GetStats(sessionID string) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statsLocked(sessionID)
}

// Clear 清空单个会话的全部状态
// Clear tears down one session's state
func (l *Ledger) Clear(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
	if l.repo != nil {
		_ = l.repo.DeleteTodos(sessionID)
	}
}

// ClearAll 清空所有会话
// ClearAll tears down every session
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.sessions {
		if l.repo != nil {
			_ = l.repo.DeleteTodos(id)
		}
		delete(l.sessions, id)
	}
}

// UpdateConfig 应用部分配置更新；非法上限被拒绝
// UpdateConfig applies a partial update. A non-positive iteration ceiling is
// the one configuration error rejected here rather than at call time.
func (l *Ledger) UpdateConfig(update ConfigUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if update.MaxIterations != nil {
		if *update.MaxIterations <= 0 {
			return fmt.Errorf("max iterations must be positive, got %d", *update.MaxIterations)
		}
		l.cfg.MaxIterations = *update.MaxIterations
	}
	if update.EnableAutoExtract != nil {
		l.cfg.EnableAutoExtract = *update.EnableAutoExtract
	}
	if update.EnableCodeCommentScan != nil {
		l.cfg.EnableCodeCommentScan = *update.EnableCodeCommentScan
	}
	return nil
}

// Configured 返回当前配置拷贝
// Configured returns a copy of the active configuration
func (l *Ledger) Configured() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Ledger) findLocked(sessionID, id string) *TodoItem {
	st := l.sessions[sessionID]
	if st == nil {
		return nil
	}
	for _, item := range st.todos {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (l *Ledger) statsLocked(sessionID string) Stats {
	st := l.sessions[sessionID]
	if st == nil {
		return Stats{}
	}
	stats := Stats{
		Total:      len(st.todos),
		Iterations: st.iterations,
		Enabled:    st.enabled,
	}
	for _, item := range st.todos {
		switch item.Status {
		case StatusPending:
			stats.Pending++
		case StatusInProgress:
			stats.InProgress++
		case StatusCompleted:
			stats.Completed++
		case StatusBlocked:
			stats.Blocked++
		}
	}
	return stats
}

// persistLocked 尽力而为地写入仓库；失败吞掉，绝不影响主循环
// persistLocked writes the snapshot best-effort; failures are swallowed so the
// controller never crashes the agent loop over durability.
func (l *Ledger) persistLocked(sessionID string) {
	if l.repo == nil {
		return
	}
	st := l.sessions[sessionID]
	if st == nil {
		return
	}
	items := make([]TodoItem, 0, len(st.todos))
	for _, item := range st.todos {
		items = append(items, *item)
	}
	_ = l.repo.SaveTodos(sessionID, items)
}

func incompleteOf(todos []*TodoItem) []TodoItem {
	var out []TodoItem
	for _, item := range todos {
		if item.Status == StatusPending || item.Status == StatusInProgress {
			out = append(out, *item)
		}
	}
	return out
}
