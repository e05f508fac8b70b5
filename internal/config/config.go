package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ProviderConfig struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
}

type LedgerConfig struct {
	MaxIterations         int  `json:"max_iterations"`
	EnableAutoExtract     bool `json:"enable_auto_extract"`
	EnableCodeCommentScan bool `json:"enable_code_comment_scan"`
}

type BudgetConfig struct {
	WarningThreshold    float64 `json:"warning_threshold"`
	CompactThreshold    float64 `json:"compact_threshold"`
	EmergencyThreshold  float64 `json:"emergency_threshold"`
	KeepRecent          int     `json:"keep_recent"`
	EmergencyKeepRecent int     `json:"emergency_keep_recent"`
	ContextTokenLimit   int     `json:"context_token_limit"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Ledger   LedgerConfig   `json:"ledger"`
	Budget   BudgetConfig   `json:"budget"`
	Storage  StorageConfig  `json:"storage"`
}

type fileLedgerConfig struct {
	MaxIterations         *int  `json:"max_iterations"`
	EnableAutoExtract     *bool `json:"enable_auto_extract"`
	EnableCodeCommentScan *bool `json:"enable_code_comment_scan"`
}

type fileBudgetConfig struct {
	WarningThreshold    *float64 `json:"warning_threshold"`
	CompactThreshold    *float64 `json:"compact_threshold"`
	EmergencyThreshold  *float64 `json:"emergency_threshold"`
	KeepRecent          *int     `json:"keep_recent"`
	EmergencyKeepRecent *int     `json:"emergency_keep_recent"`
	ContextTokenLimit   *int     `json:"context_token_limit"`
}

type fileConfig struct {
	Provider *ProviderConfig   `json:"provider"`
	Ledger   *fileLedgerConfig `json:"ledger"`
	Budget   *fileBudgetConfig `json:"budget"`
	Storage  *StorageConfig    `json:"storage"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			TimeoutMS: 30000,
		},
		Ledger: LedgerConfig{
			MaxIterations:         50,
			EnableAutoExtract:     true,
			EnableCodeCommentScan: true,
		},
		Budget: BudgetConfig{
			WarningThreshold:    0.70,
			CompactThreshold:    0.85,
			EmergencyThreshold:  0.95,
			KeepRecent:          6,
			EmergencyKeepRecent: 2,
			ContextTokenLimit:   128000,
		},
		Storage: StorageConfig{
			BaseDir: "~/.contctl",
		},
	}
}

// Load 加载配置：默认值 <- 全局文件 <- 项目文件 <- 环境变量
// Load layers defaults, the global file, the project file, then env overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFromFile(&cfg, filepath.Join(home, ".contctl", "config.json")); err != nil {
			return Config{}, err
		}
	}

	resolved := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("CONTCTL_CONFIG_PATH")); envPath != "" {
		resolved = envPath
	}
	if resolved == "" {
		resolved = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolved); err != nil {
		return Config{}, err
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findProjectConfigPath() string {
	candidates := []string{
		"contctl.config.json",
		".contctl/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(stripJSONComments(data), &fc); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fc)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		if strings.TrimSpace(fc.Provider.BaseURL) != "" {
			cfg.Provider.BaseURL = fc.Provider.BaseURL
		}
		if strings.TrimSpace(fc.Provider.Model) != "" {
			cfg.Provider.Model = fc.Provider.Model
		}
		if strings.TrimSpace(fc.Provider.APIKey) != "" {
			cfg.Provider.APIKey = fc.Provider.APIKey
		}
		if fc.Provider.TimeoutMS > 0 {
			cfg.Provider.TimeoutMS = fc.Provider.TimeoutMS
		}
	}
	if fc.Ledger != nil {
		if fc.Ledger.MaxIterations != nil {
			cfg.Ledger.MaxIterations = *fc.Ledger.MaxIterations
		}
		if fc.Ledger.EnableAutoExtract != nil {
			cfg.Ledger.EnableAutoExtract = *fc.Ledger.EnableAutoExtract
		}
		if fc.Ledger.EnableCodeCommentScan != nil {
			cfg.Ledger.EnableCodeCommentScan = *fc.Ledger.EnableCodeCommentScan
		}
	}
	if fc.Budget != nil {
		if fc.Budget.WarningThreshold != nil {
			cfg.Budget.WarningThreshold = *fc.Budget.WarningThreshold
		}
		if fc.Budget.CompactThreshold != nil {
			cfg.Budget.CompactThreshold = *fc.Budget.CompactThreshold
		}
		if fc.Budget.EmergencyThreshold != nil {
			cfg.Budget.EmergencyThreshold = *fc.Budget.EmergencyThreshold
		}
		if fc.Budget.KeepRecent != nil {
			cfg.Budget.KeepRecent = *fc.Budget.KeepRecent
		}
		if fc.Budget.EmergencyKeepRecent != nil {
			cfg.Budget.EmergencyKeepRecent = *fc.Budget.EmergencyKeepRecent
		}
		if fc.Budget.ContextTokenLimit != nil {
			cfg.Budget.ContextTokenLimit = *fc.Budget.ContextTokenLimit
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = fc.Storage.BaseDir
		}
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("CONTCTL_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTCTL_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTCTL_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTCTL_MAX_ITERATIONS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CONTCTL_MAX_ITERATIONS: %q", v)
		}
		cfg.Ledger.MaxIterations = n
	}
	if v := strings.TrimSpace(os.Getenv("CONTCTL_STORAGE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}
	return nil
}

// normalize 校验合并后的配置；显式非法值被拒绝，未设置的零值回落默认
// normalize validates the merged config. Explicit invalid values (negative
// ceiling, misordered thresholds) are rejected; unset zeros fall back to
// defaults.
func normalize(cfg *Config) error {
	def := Default()

	if cfg.Ledger.MaxIterations < 0 {
		return fmt.Errorf("ledger.max_iterations must be positive, got %d", cfg.Ledger.MaxIterations)
	}
	if cfg.Ledger.MaxIterations == 0 {
		cfg.Ledger.MaxIterations = def.Ledger.MaxIterations
	}

	b := &cfg.Budget
	if b.WarningThreshold == 0 {
		b.WarningThreshold = def.Budget.WarningThreshold
	}
	if b.CompactThreshold == 0 {
		b.CompactThreshold = def.Budget.CompactThreshold
	}
	if b.EmergencyThreshold == 0 {
		b.EmergencyThreshold = def.Budget.EmergencyThreshold
	}
	if b.WarningThreshold <= 0 || b.WarningThreshold >= b.CompactThreshold ||
		b.CompactThreshold >= b.EmergencyThreshold || b.EmergencyThreshold > 1 {
		return fmt.Errorf("budget thresholds must be ascending within (0,1]: %.2f/%.2f/%.2f",
			b.WarningThreshold, b.CompactThreshold, b.EmergencyThreshold)
	}
	if b.KeepRecent < 0 || b.EmergencyKeepRecent < 0 {
		return fmt.Errorf("budget keep-counts must be positive: %d/%d", b.KeepRecent, b.EmergencyKeepRecent)
	}
	if b.KeepRecent == 0 {
		b.KeepRecent = def.Budget.KeepRecent
	}
	if b.EmergencyKeepRecent == 0 {
		b.EmergencyKeepRecent = def.Budget.EmergencyKeepRecent
	}
	if b.EmergencyKeepRecent > b.KeepRecent {
		return fmt.Errorf("budget emergency keep-count %d exceeds keep-count %d",
			b.EmergencyKeepRecent, b.KeepRecent)
	}
	if b.ContextTokenLimit <= 0 {
		b.ContextTokenLimit = def.Budget.ContextTokenLimit
	}

	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}

	dir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = dir
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments 去掉 // 与 /* */ 注释，字符串字面量内的不动
// stripJSONComments removes // and /* */ comments outside string literals
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == '"':
				state = stateString
				out.WriteByte(c)
			case c == '/' && next == '/':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			default:
				out.WriteByte(c)
			}
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return out.Bytes()
}
