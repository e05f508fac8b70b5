package keyword

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Mode 检测到的工作模式
// Mode is a detected operating mode
type Mode string

const (
	ModeUltrawork Mode = "ultrawork"
	ModeSearch    Mode = "search"
	ModeAnalyze   Mode = "analyze"
)

// Triggers 模式命中后要打开的能力开关
// Triggers is the capability bundle switched on by a detected mode
type Triggers struct {
	EnableSubagents        bool     `json:"enable_subagents"`
	EnableTodoContinuation bool     `json:"enable_todo_continuation"`
	EnableFullVerify       bool     `json:"enable_full_verify"`
	PriorityAgents         []string `json:"priority_agents,omitempty"`
}

// Keywords 分语言的触发词列表
// Keywords holds the per-language trigger phrase lists
type Keywords struct {
	ZH []string `json:"zh"`
	EN []string `json:"en"`
}

// ModeConfig 一个模式的触发词与开关
// ModeConfig binds a mode to its trigger phrases and capability bundle
type ModeConfig struct {
	Mode     Mode     `json:"mode"`
	Keywords Keywords `json:"keywords"`
	Triggers Triggers `json:"triggers"`
}

// Result 一次检测的结果
// Result is one detection outcome
type Result struct {
	Detected       bool      `json:"detected"`
	Mode           Mode      `json:"mode,omitempty"`
	MatchedKeyword string    `json:"matched_keyword,omitempty"`
	Triggers       *Triggers `json:"triggers,omitempty"`
	CleanedPrompt  string    `json:"cleaned_prompt"`
}

// Detector 无状态的触发词分类器；按注册顺序先命中先赢
// Detector scans raw input for configured trigger phrases. Matching is
// first-match-wins in registration order; the ZH list is matched
// case-sensitively, the EN list case-insensitively.
type Detector struct {
	mu      sync.RWMutex
	configs []ModeConfig
}

// New 创建带内置模式的 detector
// New creates a detector with the built-in modes registered
func New() *Detector {
	return &Detector{configs: DefaultConfigs()}
}

// DefaultConfigs 内置模式注册表
// DefaultConfigs is the built-in mode registry
func DefaultConfigs() []ModeConfig {
	return []ModeConfig{
		{
			Mode:     ModeUltrawork,
			Keywords: Keywords{ZH: []string{"全力冲", "全力以赴"}, EN: []string{"ultrawork"}},
			Triggers: Triggers{
				EnableSubagents:        true,
				EnableTodoContinuation: true,
				EnableFullVerify:       true,
			},
		},
		{
			Mode:     ModeSearch,
			Keywords: Keywords{ZH: []string{"全面搜索", "搜一下"}, EN: []string{"deepsearch"}},
			Triggers: Triggers{
				EnableSubagents: true,
				PriorityAgents:  []string{"searcher"},
			},
		},
		{
			Mode:     ModeAnalyze,
			Keywords: Keywords{ZH: []string{"深入分析"}, EN: []string{"deepanalyze"}},
			Triggers: Triggers{
				EnableSubagents:  true,
				EnableFullVerify: true,
				PriorityAgents:   []string{"analyzer"},
			},
		},
	}
}

// Detect 扫描输入文本；未命中时 CleanedPrompt 原样返回
// Detect scans the input text. On a match the matched phrase is removed from
// CleanedPrompt (surrounding whitespace collapsed); with no match the input
// comes back unchanged.
func (d *Detector) Detect(text string) Result {
	d.mu.RLock()
	configs := d.configs
	d.mu.RUnlock()

	for _, cfg := range configs {
		for _, kw := range cfg.Keywords.ZH {
			if kw == "" {
				continue
			}
			if idx := strings.Index(text, kw); idx >= 0 {
				return matched(cfg, kw, removeSpan(text, idx, len(kw)))
			}
		}
		for _, kw := range cfg.Keywords.EN {
			if kw == "" {
				continue
			}
			if idx, n := indexFold(text, kw); idx >= 0 {
				return matched(cfg, text[idx:idx+n], removeSpan(text, idx, n))
			}
		}
	}

	return Result{Detected: false, CleanedPrompt: text}
}

// GenerateActivationMessage 返回模式激活的固定横幅；未命中返回空串
// GenerateActivationMessage returns the fixed activation banner for a
// detection, or the empty string when nothing was detected.
func (d *Detector) GenerateActivationMessage(result Result) string {
	if !result.Detected {
		return ""
	}
	switch result.Mode {
	case ModeUltrawork:
		return "[ULTRAWORK] Maximum effort mode: parallel subagents on, todo continuation enforced, full verification required."
	case ModeSearch:
		return "[SEARCH] Deep search mode: parallel search subagents prioritized."
	case ModeAnalyze:
		return "[ANALYZE] Deep analysis mode: analysis subagents prioritized, full verification required."
	}

	// 运行期注册的模式用开关拼一条通用横幅
	// Modes registered at runtime get a generic banner built from the triggers
	caps := make([]string, 0, 3)
	if result.Triggers != nil {
		if result.Triggers.EnableSubagents {
			caps = append(caps, "subagents on")
		}
		if result.Triggers.EnableTodoContinuation {
			caps = append(caps, "todo continuation on")
		}
		if result.Triggers.EnableFullVerify {
			caps = append(caps, "full verify on")
		}
	}
	banner := fmt.Sprintf("[%s] Mode activated", strings.ToUpper(string(result.Mode)))
	if len(caps) > 0 {
		banner += ": " + strings.Join(caps, ", ")
	}
	return banner + "."
}

// AddConfig 运行期追加模式；空配置在此拒绝
// AddConfig registers a mode at runtime; an empty mode or keyword set is
// rejected here, matching never fails afterwards.
func (d *Detector) AddConfig(cfg ModeConfig) error {
	if strings.TrimSpace(string(cfg.Mode)) == "" {
		return fmt.Errorf("keyword config: mode is empty")
	}
	if len(cfg.Keywords.ZH) == 0 && len(cfg.Keywords.EN) == 0 {
		return fmt.Errorf("keyword config %q: no keywords", cfg.Mode)
	}
	d.mu.Lock()
	d.configs = append(d.configs, cfg)
	d.mu.Unlock()
	return nil
}

// Configs 返回注册表拷贝
// Configs returns a copy of the registry
func (d *Detector) Configs() []ModeConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]ModeConfig(nil), d.configs...)
}

func matched(cfg ModeConfig, keyword, cleaned string) Result {
	triggers := cfg.Triggers
	return Result{
		Detected:       true,
		Mode:           cfg.Mode,
		MatchedKeyword: keyword,
		Triggers:       &triggers,
		CleanedPrompt:  cleaned,
	}
}

// indexFold 在 text 中大小写无关地查找 kw，按 rune 比较
// indexFold locates the first case-insensitive occurrence of kw in text,
// comparing rune by rune so the returned byte offset and length always
// address the original string. Returns (-1, 0) when absent.
func indexFold(text, kw string) (int, int) {
	kwRunes := []rune(kw)
	if len(kwRunes) == 0 {
		return -1, 0
	}

	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	for i := 0; i+len(kwRunes) <= len(runes); i++ {
		match := true
		for j, kr := range kwRunes {
			if unicode.ToLower(runes[i+j]) != unicode.ToLower(kr) {
				match = false
				break
			}
		}
		if match {
			start := offsets[i]
			return start, offsets[i+len(kwRunes)] - start
		}
	}
	return -1, 0
}

// removeSpan 去掉命中的片段；只压缩片段两侧的空白，其余原样保留
// removeSpan drops the matched span, collapsing whitespace only at the
// junction; the rest of the prompt keeps its original spacing and newlines.
func removeSpan(text string, idx, length int) string {
	before := strings.TrimRight(text[:idx], " \t\r\n")
	after := strings.TrimLeft(text[idx+length:], " \t\r\n")
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + " " + after
	}
}
