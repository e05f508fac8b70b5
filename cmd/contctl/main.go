package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contctl/internal/budget"
	"contctl/internal/chat"
	"contctl/internal/config"
	"contctl/internal/keyword"
	"contctl/internal/ledger"
	"contctl/internal/storage"
	"contctl/internal/summarizer"

	"github.com/chzyer/readline"
)

// app 把三个控制组件和宿主循环状态捆在一起
// app bundles the three controller components with the host loop state
type app struct {
	cfg       config.Config
	ledger    *ledger.Ledger
	monitor   *budget.Monitor
	detector  *keyword.Detector
	tokenizer *budget.Tokenizer
	sessionID string
	messages  []chat.Message
	triggers  keyword.Triggers
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	// summarizer 可选；没有 API key 就走纯本地降级路径
	// The summarizer is optional; without an API key everything degrades locally
	var summ summarizer.Summarizer
	if strings.TrimSpace(cfg.Provider.APIKey) != "" {
		summ = summarizer.NewOpenAI(summarizer.OpenAIConfig{
			BaseURL:   cfg.Provider.BaseURL,
			APIKey:    cfg.Provider.APIKey,
			Model:     cfg.Provider.Model,
			TimeoutMS: cfg.Provider.TimeoutMS,
		})
	}

	var repo ledger.Repository
	sqliteRepo, err := storage.NewSQLiteRepository(filepath.Join(cfg.Storage.BaseDir, "contctl.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "todo snapshots disabled: %v\n", err)
	} else {
		repo = sqliteRepo
		defer func() { _ = sqliteRepo.Close() }()
	}

	a := &app{
		cfg: cfg,
		ledger: ledger.New(ledger.Config{
			MaxIterations:         cfg.Ledger.MaxIterations,
			EnableAutoExtract:     cfg.Ledger.EnableAutoExtract,
			EnableCodeCommentScan: cfg.Ledger.EnableCodeCommentScan,
		}, summ, repo),
		monitor: budget.New(
			budget.Thresholds{
				Warning:   cfg.Budget.WarningThreshold,
				Compact:   cfg.Budget.CompactThreshold,
				Emergency: cfg.Budget.EmergencyThreshold,
			},
			budget.CompactSettings{
				KeepRecent:          cfg.Budget.KeepRecent,
				EmergencyKeepRecent: cfg.Budget.EmergencyKeepRecent,
			},
			summ,
		),
		detector:  keyword.New(),
		tokenizer: budget.NewTokenizerForModel(cfg.Provider.Model),
		sessionID: newSessionID(),
	}

	inputReader, inputErr := newLineInput(filepath.Join(cfg.Storage.BaseDir, "contctl.history"))
	if inputErr != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", inputErr)
	}
	defer func() { _ = inputReader.Close() }()

	fmt.Printf("contctl session %s (model %s, context limit %d)\n",
		a.sessionID, cfg.Provider.Model, cfg.Budget.ContextTokenLimit)
	printCommands(os.Stdout)

	for {
		line, err := inputReader.ReadLine("> ")
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Fprintln(os.Stdout)
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(os.Stderr, "\nexit")
				return
			default:
				fmt.Fprintf(os.Stderr, "read input failed: %v\n", err)
				return
			}
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, shouldExit := a.handleCommand(input, os.Stdout)
			if handled {
				if shouldExit {
					return
				}
				continue
			}
		}

		a.runTurn(input, os.Stdout)
	}
}

func newSessionID() string {
	return "sess-" + time.Now().UTC().Format("20060102-150405")
}
