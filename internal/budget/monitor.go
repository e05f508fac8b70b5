package budget

import (
	"fmt"
	"sync"

	"contctl/internal/summarizer"
)

// Status 上下文用量档位
// Status is the context-usage severity level
type Status string

const (
	StatusNormal    Status = "normal"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusEmergency Status = "emergency"
)

// Action 宿主循环应采取的动作
// Action is what the host loop should do next
type Action string

const (
	ActionContinue         Action = "continue"
	ActionWarn             Action = "warn"
	ActionCompact          Action = "compact"
	ActionEmergencyCompact Action = "emergency_compact"
)

// Thresholds 三个递增的用量阈值
// Thresholds are the three ascending usage cut-offs
type Thresholds struct {
	Warning   float64 `json:"warning"`
	Compact   float64 `json:"compact"`
	Emergency float64 `json:"emergency"`
}

// CompactSettings 压缩时保留的消息数
// CompactSettings controls how many recent messages survive compaction
type CompactSettings struct {
	KeepRecent          int `json:"keep_recent"`
	EmergencyKeepRecent int `json:"emergency_keep_recent"`
}

// DefaultThresholds 返回默认阈值 0.70 / 0.85 / 0.95
// DefaultThresholds returns the default 0.70 / 0.85 / 0.95 cut-offs
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.70, Compact: 0.85, Emergency: 0.95}
}

// DefaultCompactSettings 返回默认保留数 6 / 2
// DefaultCompactSettings returns the default keep-counts 6 / 2
func DefaultCompactSettings() CompactSettings {
	return CompactSettings{KeepRecent: 6, EmergencyKeepRecent: 2}
}

// CheckResult 一次预算检查的结果；不持久化，每次重算
// CheckResult is one budget classification; never persisted, recomputed per check
type CheckResult struct {
	Status     Status  `json:"status"`
	Usage      float64 `json:"usage"`
	UsedTokens int     `json:"used_tokens"`
	MaxTokens  int     `json:"max_tokens"`
	Action     Action  `json:"action"`
	Message    string  `json:"message,omitempty"`
}

// ConfigUpdate 部分配置更新；nil 字段保持不变
// ConfigUpdate is a partial config update; nil fields are left unchanged
type ConfigUpdate struct {
	Thresholds      *Thresholds
	CompactSettings *CompactSettings
}

// Monitor 把 token 用量比分类为 status/action，并负责历史压缩
// Monitor classifies token usage into a status/action pair and owns the
// compaction routine. Check is pure; only Compact may touch the summarizer.
type Monitor struct {
	mu         sync.RWMutex
	thresholds Thresholds
	settings   CompactSettings
	summ       summarizer.Summarizer
}

// New 创建 monitor；summ 可为 nil
// New creates a monitor; summ may be nil
func New(thresholds Thresholds, settings CompactSettings, summ summarizer.Summarizer) *Monitor {
	if err := validateThresholds(thresholds); err != nil {
		thresholds = DefaultThresholds()
	}
	if err := validateSettings(settings); err != nil {
		settings = DefaultCompactSettings()
	}
	return &Monitor{thresholds: thresholds, settings: settings, summ: summ}
}

// Check 把 used/max 分类为档位与动作；纯函数，每轮调用无副作用
// Check classifies usedTokens/maxTokens. Pure and total: higher usage maps to
// a same-or-more-severe status, so this is the single source of truth for
// "should I compact now".
func (m *Monitor) Check(usedTokens, maxTokens int) CheckResult {
	m.mu.RLock()
	th := m.thresholds
	m.mu.RUnlock()

	usage := 0.0
	if maxTokens > 0 && usedTokens > 0 {
		usage = float64(usedTokens) / float64(maxTokens)
	}

	result := CheckResult{
		Usage:      usage,
		UsedTokens: usedTokens,
		MaxTokens:  maxTokens,
	}

	percent := int(usage*100 + 0.5)
	switch {
	case usage >= th.Emergency:
		result.Status = StatusEmergency
		result.Action = ActionEmergencyCompact
		result.Message = fmt.Sprintf("context usage at %d%%, emergency compaction required", percent)
	case usage >= th.Compact:
		result.Status = StatusCritical
		result.Action = ActionCompact
		result.Message = fmt.Sprintf("context usage at %d%%, compaction recommended", percent)
	case usage >= th.Warning:
		result.Status = StatusWarning
		result.Action = ActionWarn
		result.Message = fmt.Sprintf("context usage at %d%%, approaching the budget limit", percent)
	default:
		result.Status = StatusNormal
		result.Action = ActionContinue
	}
	return result
}

// GenerateWarningPrompt 渲染预警提示，供宿主注入下一轮
// GenerateWarningPrompt renders the warning directive the host injects into
// the model's next turn.
func (m *Monitor) GenerateWarningPrompt(usage float64) string {
	percent := int(usage*100 + 0.5)
	return fmt.Sprintf("[CONTEXT_BUDGET]\nContext usage is at %d%%. Prefer concise responses and wrap up "+
		"intermediate results; older history may be compacted soon.", percent)
}

// StatusLabel 返回档位的展示文案
// StatusLabel returns the display label for a status
func StatusLabel(status Status) string {
	switch status {
	case StatusNormal:
		return "Normal"
	case StatusWarning:
		return "Warning"
	case StatusCritical:
		return "Critical"
	case StatusEmergency:
		return "Emergency"
	default:
		return string(status)
	}
}

// UpdateConfig 应用部分配置更新；非法阈值/保留数被拒绝
// UpdateConfig applies a partial update. Misordered thresholds or
// non-positive keep-counts are rejected here, never at check time.
func (m *Monitor) UpdateConfig(update ConfigUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if update.Thresholds != nil {
		if err := validateThresholds(*update.Thresholds); err != nil {
			return err
		}
		m.thresholds = *update.Thresholds
	}
	if update.CompactSettings != nil {
		if err := validateSettings(*update.CompactSettings); err != nil {
			return err
		}
		m.settings = *update.CompactSettings
	}
	return nil
}

func validateThresholds(th Thresholds) error {
	if th.Warning <= 0 || th.Warning >= th.Compact || th.Compact >= th.Emergency || th.Emergency > 1 {
		return fmt.Errorf("thresholds must be ascending within (0,1]: %.2f/%.2f/%.2f",
			th.Warning, th.Compact, th.Emergency)
	}
	return nil
}

func validateSettings(s CompactSettings) error {
	if s.KeepRecent <= 0 || s.EmergencyKeepRecent <= 0 {
		return fmt.Errorf("keep-counts must be positive: %d/%d", s.KeepRecent, s.EmergencyKeepRecent)
	}
	if s.EmergencyKeepRecent > s.KeepRecent {
		return fmt.Errorf("emergency keep-count %d exceeds normal keep-count %d",
			s.EmergencyKeepRecent, s.KeepRecent)
	}
	return nil
}
