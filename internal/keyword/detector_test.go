package keyword

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetect_ChineseKeyword(t *testing.T) {
	d := New()

	result := d.Detect("全力冲")
	if !result.Detected {
		t.Fatal("全力冲 should be detected")
	}
	if result.Mode != ModeUltrawork {
		t.Fatalf("mode = %q, want %q", result.Mode, ModeUltrawork)
	}
	if result.MatchedKeyword != "全力冲" {
		t.Fatalf("matched = %q", result.MatchedKeyword)
	}
	if result.CleanedPrompt != "" {
		t.Fatalf("cleaned prompt should be empty after removal, got %q", result.CleanedPrompt)
	}
}

func TestDetect_KeywordRemovedFromPrompt(t *testing.T) {
	d := New()

	result := d.Detect("全力冲 重构支付模块")
	if !result.Detected {
		t.Fatal("should detect")
	}
	if result.CleanedPrompt != "重构支付模块" {
		t.Fatalf("cleaned = %q", result.CleanedPrompt)
	}
	if strings.Contains(result.CleanedPrompt, "全力冲") {
		t.Fatal("matched keyword must be removed")
	}
}

func TestDetect_EnglishCaseInsensitive(t *testing.T) {
	d := New()

	result := d.Detect("ULTRAWORK fix the login bug")
	if !result.Detected || result.Mode != ModeUltrawork {
		t.Fatalf("english keyword should match case-insensitively: %+v", result)
	}
	if result.CleanedPrompt != "fix the login bug" {
		t.Fatalf("cleaned = %q", result.CleanedPrompt)
	}
}

func TestDetect_CaseFoldingRunesBeforeKeyword(t *testing.T) {
	d := New()

	// 'İ' 与 'Ⱥ' 小写后字节长度改变；命中位置必须按原文计算
	// 'İ' and 'Ⱥ' change byte length when lowercased; match offsets must
	// address the original input, not a lowered copy.
	tests := []struct {
		input   string
		cleaned string
	}{
		{"İ ultrawork now", "İ now"},
		{"İİ ultrawork", "İİ"},
		{"Ⱥ ultrawork", "Ⱥ"},
		{"ⱥⱥⱥ ULTRAWORK go", "ⱥⱥⱥ go"},
	}
	for _, tt := range tests {
		result := d.Detect(tt.input)
		if !result.Detected || result.Mode != ModeUltrawork {
			t.Fatalf("Detect(%q) should match ultrawork: %+v", tt.input, result)
		}
		if !strings.EqualFold(result.MatchedKeyword, "ultrawork") {
			t.Fatalf("Detect(%q) matched = %q", tt.input, result.MatchedKeyword)
		}
		if result.CleanedPrompt != tt.cleaned {
			t.Fatalf("Detect(%q) cleaned = %q, want %q", tt.input, result.CleanedPrompt, tt.cleaned)
		}
		if !utf8.ValidString(result.CleanedPrompt) {
			t.Fatalf("Detect(%q) produced invalid UTF-8: %q", tt.input, result.CleanedPrompt)
		}
	}
}

func TestDetect_MultilinePromptKeepsStructure(t *testing.T) {
	d := New()

	input := "ultrawork fix the parser:\n\n```\nif x  != nil {\n\treturn\n}\n```"
	result := d.Detect(input)
	if !result.Detected {
		t.Fatal("should detect")
	}
	want := "fix the parser:\n\n```\nif x  != nil {\n\treturn\n}\n```"
	if result.CleanedPrompt != want {
		t.Fatalf("cleaned = %q, want %q", result.CleanedPrompt, want)
	}
}

func TestDetect_ChineseIsCaseSensitiveExact(t *testing.T) {
	d := New()
	// 中文列表按原文匹配；不相关文本不命中
	// The ZH list matches the exact phrase; unrelated text does not trigger
	result := d.Detect("全 力 冲")
	if result.Detected {
		t.Fatal("spaced-out phrase must not match")
	}
}

func TestDetect_NoMatchLeavesInputUnchanged(t *testing.T) {
	d := New()

	result := d.Detect("hello world")
	if result.Detected {
		t.Fatal("plain text should not detect")
	}
	if result.CleanedPrompt != "hello world" {
		t.Fatalf("cleaned = %q, want input unchanged", result.CleanedPrompt)
	}
	if result.Triggers != nil || result.Mode != "" {
		t.Fatalf("no-match result should carry no mode or triggers: %+v", result)
	}
}

func TestDetect_FirstMatchWinsInRegistrationOrder(t *testing.T) {
	d := New()

	// ultrawork 注册在 search 之前
	// ultrawork is registered before search
	result := d.Detect("ultrawork deepsearch the codebase")
	if result.Mode != ModeUltrawork {
		t.Fatalf("earlier registration should win: %q", result.Mode)
	}
}

func TestDetect_TriggersBundle(t *testing.T) {
	d := New()

	result := d.Detect("ultrawork go")
	if result.Triggers == nil {
		t.Fatal("detection should carry the trigger bundle")
	}
	if !result.Triggers.EnableSubagents || !result.Triggers.EnableTodoContinuation || !result.Triggers.EnableFullVerify {
		t.Fatalf("ultrawork should switch on everything: %+v", result.Triggers)
	}

	search := d.Detect("deepsearch for usages")
	if search.Triggers == nil || len(search.Triggers.PriorityAgents) == 0 {
		t.Fatalf("search mode should carry priority agents: %+v", search.Triggers)
	}
}

func TestGenerateActivationMessage(t *testing.T) {
	d := New()

	if msg := d.GenerateActivationMessage(Result{Detected: false}); msg != "" {
		t.Fatalf("no detection should yield empty banner, got %q", msg)
	}

	result := d.Detect("ultrawork")
	msg := d.GenerateActivationMessage(result)
	if !strings.Contains(msg, "ULTRAWORK") {
		t.Fatalf("banner should name the mode: %q", msg)
	}
}

func TestAddConfig_RuntimeMode(t *testing.T) {
	d := New()

	err := d.AddConfig(ModeConfig{
		Mode:     "review",
		Keywords: Keywords{EN: []string{"deepreview"}},
		Triggers: Triggers{EnableFullVerify: true},
	})
	if err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	result := d.Detect("deepreview the diff")
	if !result.Detected || result.Mode != "review" {
		t.Fatalf("runtime mode should be detectable: %+v", result)
	}
	banner := d.GenerateActivationMessage(result)
	if !strings.Contains(banner, "REVIEW") || !strings.Contains(banner, "full verify") {
		t.Fatalf("generic banner should name mode and capabilities: %q", banner)
	}
}

func TestAddConfig_Validation(t *testing.T) {
	d := New()
	if err := d.AddConfig(ModeConfig{Mode: "", Keywords: Keywords{EN: []string{"x"}}}); err == nil {
		t.Fatal("empty mode must be rejected")
	}
	if err := d.AddConfig(ModeConfig{Mode: "empty"}); err == nil {
		t.Fatal("config without keywords must be rejected")
	}
}

func TestConfigs_ReturnsCopy(t *testing.T) {
	d := New()
	configs := d.Configs()
	if len(configs) != len(DefaultConfigs()) {
		t.Fatalf("configs = %d, want %d", len(configs), len(DefaultConfigs()))
	}
	configs[0].Mode = "tampered"
	if d.Configs()[0].Mode == "tampered" {
		t.Fatal("Configs must return a copy")
	}
}
