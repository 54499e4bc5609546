package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/playctl/playctl/pkg/ai"
	"github.com/playctl/playctl/pkg/config"
	"github.com/playctl/playctl/pkg/controller"
	"github.com/playctl/playctl/pkg/ipc"
	pmcp "github.com/playctl/playctl/pkg/mcp"
	"github.com/playctl/playctl/pkg/plugin"
	"github.com/playctl/playctl/pkg/protocol"
	"github.com/playctl/playctl/pkg/query"
	"github.com/playctl/playctl/pkg/report"
	"github.com/playctl/playctl/pkg/script"
	"github.com/playctl/playctl/pkg/session"
	"github.com/playctl/playctl/pkg/tui"
)

// Version is set at build time via ldflags.
var version = "dev"

func main() {
	loadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets any
// variables that aren't already set in the environment. Lines are KEY=VALUE
// (or KEY="VALUE"). Comments (#) and blanks are skipped. The .env file is
// gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "playctl [flags] [-- ansible-playbook args...]",
	Short: "Interactive execution controller for Ansible playbooks",
	Long: `playctl sits between the Ansible engine and the operator: execution
pauses at each task so you can inspect variables, retry failures, modify
state, or hand a failure to an AI for diagnosis.

Everything after -- is passed to ansible-playbook, which playctl spawns
with the bundled strategy plugin active.

Examples:
  playctl -- site.yml -i inventory
  playctl --headless --script replay.json -- site.yml
  playctl --bind 0.0.0.0:9000 --secret s3cret -- site.yml

Environment:
  PLAYCTL_HEADLESS       run without the TUI (same as --headless)
  PLAYCTL_SOCKET         socket path or TCP host:port
  PLAYCTL_SECRET         shared secret for the engine handshake
  PLAYCTL_TEST_SCRIPT    scripted actions file (same as --script)
  OPENAI_API_KEY         enables AI failure analysis
  PLAYCTL_MODEL          AI model (default: gpt-4)
  PLAYCTL_API_BASE       custom API endpoint (for local models)
  PLAYCTL_QUOTA_TOKENS   daily token limit
  PLAYCTL_QUOTA_USD      daily cost limit in USD`,
	Args: cobra.ArbitraryArgs,
	RunE: runPlaybook,
}

var (
	flagReport      string
	flagBind        string
	flagSecret      string
	flagScript      string
	flagReplay      string
	flagHeadless    bool
	flagAutoAnalyze bool
	flagVerbose     int
)

func init() {
	rootCmd.Flags().StringVar(&flagReport, "report", "", "write an execution report on exit (.md or .json by extension)")
	rootCmd.Flags().StringVar(&flagBind, "bind", "", "listen on a TCP host:port instead of the unix socket")
	rootCmd.Flags().StringVar(&flagSecret, "secret", "", "shared secret required in the engine handshake")
	rootCmd.Flags().StringVar(&flagScript, "script", "", "scripted actions file for unattended runs")
	rootCmd.Flags().StringVar(&flagReplay, "replay", "", "open an archived session read-only instead of running")
	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "run without the TUI, auto-proceeding through tasks")
	rootCmd.Flags().BoolVar(&flagAutoAnalyze, "auto-analyze", false, "ask the AI to diagnose every failure in headless mode")
	rootCmd.Flags().CountVarP(&flagVerbose, "verbose", "v", "verbosity (repeat for more, also passed to ansible-playbook)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- run ---

func runPlaybook(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagBind != "" {
		cfg.BindAddr = flagBind
	}
	if flagSecret != "" {
		cfg.Secret = flagSecret
	}
	if flagScript != "" {
		cfg.ScriptPath = flagScript
	}

	headless := flagHeadless || cfg.Headless
	autoAnalyze := flagAutoAnalyze || cfg.AutoAnalyze

	logger, closeLog := buildLogger(cfg, headless)
	defer closeLog()

	if flagReplay != "" {
		return runReplay(flagReplay, logger)
	}

	state := controller.NewState()
	if cfg.ScriptPath != "" {
		entries, err := script.Load(cfg.ScriptPath)
		if err != nil {
			logger.Warn("test script not loaded, continuing unscripted", "path", cfg.ScriptPath, "error", err)
		} else {
			state.Scripts = entries
			logger.Info("test script loaded", "path", cfg.ScriptPath, "entries", len(entries))
		}
	}

	inbound := make(chan protocol.Message, 100)
	outbound := make(chan protocol.Message, 100)

	ctrl := controller.New(state, outbound, logger)
	ctrl.Headless = headless
	ctrl.AutoAnalyze = autoAnalyze
	if flagVerbose > 0 {
		ctrl.Tracer = controller.LogTracer{Logger: logger}
	}

	var aiClient *ai.Client
	if cfg.AIEnabled() {
		client, err := newAIClient(cfg, logger)
		if err != nil {
			logger.Warn("AI disabled", "error", err)
		} else {
			aiClient = client
			ctrl.AI = client
		}
	}

	if cfg.BindAddr != "" && cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "warning: listening on TCP without a secret; any client that connects can drive this run")
	}

	ln, err := ipc.Bind(cfg.SocketPath, cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("bind control socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := &ipc.Server{
		Listener: ln,
		Secret:   cfg.Secret,
		Inbound:  inbound,
		Outbound: outbound,
		Logger:   logger,
	}
	go srv.Serve(ctx)

	if len(args) > 0 {
		if err := spawnAnsible(args, flagVerbose, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "failed to spawn ansible-playbook: %v\n", err)
		}
	}

	if headless {
		fmt.Println("Running in HEADLESS mode")
		runner := controller.NewRunner(ctrl, inbound)
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	} else {
		uiCfg := tui.Config{Controller: ctrl, Inbound: inbound}
		if aiClient != nil {
			uiCfg.Chat = aiClient
		}
		if err := tui.Run(uiCfg); err != nil {
			return fmt.Errorf("run TUI: %w", err)
		}
	}
	cancel()

	if aiClient != nil {
		if tokens, usd := aiClient.Usage(); tokens > 0 {
			fmt.Printf("AI usage today: %d tokens ($%.2f)\n", tokens, usd)
		}
	}
	return finishRun(state, flagReport)
}

// newAIClient builds the AI client from config. A missing config dir only
// disables quota persistence, not the client.
func newAIClient(cfg *config.Config, logger *slog.Logger) (*ai.Client, error) {
	stateDir, _ := config.Dir()
	return ai.NewClient(ai.Options{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.APIBase,
		Model:       cfg.Model,
		StateDir:    stateDir,
		QuotaTokens: cfg.QuotaTokens,
		QuotaUSD:    cfg.QuotaUSD,
		Logger:      logger,
	})
}

// runReplay opens an archived session in the TUI with every control key
// disabled. No socket is bound and no engine is spawned.
func runReplay(path string, logger *slog.Logger) error {
	sess, err := session.Load(path)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	state := controller.NewState()
	sess.RestoreTo(state)

	ctrl := controller.New(state, nil, logger)
	return tui.Run(tui.Config{Controller: ctrl, Replay: true})
}

// spawnAnsible starts ansible-playbook with the strategy plugin active,
// pointed back at our socket. Child output goes to ansible_child.log so it
// can't corrupt the TUI.
func spawnAnsible(args []string, verbose int, cfg *config.Config, logger *slog.Logger) error {
	pluginDir, err := plugin.DefaultDir()
	if err != nil {
		return err
	}
	if _, wrote, err := plugin.Ensure(pluginDir); err != nil {
		return fmt.Errorf("install strategy plugin: %w", err)
	} else if wrote {
		logger.Info("strategy plugin installed", "dir", pluginDir)
	}

	argv := args
	if verbose > 0 {
		argv = append([]string{"-" + strings.Repeat("v", verbose)}, args...)
	}
	child := exec.Command("ansible-playbook", argv...)

	socket := cfg.SocketPath
	if cfg.BindAddr != "" {
		socket = cfg.BindAddr
	}
	env := append(os.Environ(),
		"ANSIBLE_STRATEGY="+plugin.Name,
		"ANSIBLE_STRATEGY_PLUGINS="+pluginDir,
		"PLAYCTL_SOCKET="+socket,
	)
	if cfg.Secret != "" {
		env = append(env, "PLAYCTL_SECRET="+cfg.Secret)
	}
	child.Env = env

	logFile, err := os.Create("ansible_child.log")
	if err != nil {
		return fmt.Errorf("create ansible_child.log: %w", err)
	}
	child.Stdout = logFile
	child.Stderr = logFile
	child.Stdin = nil

	if err := child.Start(); err != nil {
		logFile.Close()
		return err
	}
	logger.Info("ansible-playbook started", "pid", child.Process.Pid, "args", argv)

	// Reap the child so it never lingers as a zombie.
	go func() {
		child.Wait()
		logFile.Close()
	}()
	return nil
}

// finishRun archives the session, prints the drift summary, and writes the
// --report file if one was requested.
func finishRun(state *controller.State, reportPath string) error {
	sess := session.FromState(state)

	if dir, err := config.Dir(); err == nil {
		archiveDir := filepath.Join(dir, "archive")
		if err := os.MkdirAll(archiveDir, 0o755); err == nil {
			name := fmt.Sprintf("session_%s.json.gz", time.Now().UTC().Format("20060102_150405"))
			path := filepath.Join(archiveDir, name)
			if err := sess.Save(path); err != nil {
				fmt.Fprintf(os.Stderr, "failed to archive session: %v\n", err)
			} else {
				fmt.Printf("Session archived to: %s\n", path)
			}
		}
	}

	gen := report.NewGenerator(state)
	fmt.Println()
	fmt.Println(gen.DriftSummary())

	if reportPath != "" {
		if err := writeReport(gen, reportPath); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", reportPath)
	}
	return nil
}

func writeReport(gen *report.Generator, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return gen.SaveJSON(path)
	}
	return gen.SaveMarkdown(path)
}

// buildLogger routes logs to stderr when headless and to a file under the
// config directory when the TUI owns the terminal.
func buildLogger(cfg *config.Config, headless bool) (*slog.Logger, func()) {
	level := parseLevel(cfg.LogLevel)
	if flagVerbose > 0 {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if headless {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}
	}

	dir, err := config.Dir()
	if err != nil {
		return slog.New(slog.DiscardHandler), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "playctl.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler), func() {}
	}
	return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --- replay ---

var replayCmd = &cobra.Command{
	Use:   "replay <session.json.gz>",
	Short: "Open an archived session read-only in the TUI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, closeLog := buildLogger(cfg, false)
		defer closeLog()
		return runReplay(args[0], logger)
	},
}

// --- query ---

var (
	queryInput  string
	queryFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query [expression]",
	Short: "Query an archived session with an expression, or start a REPL",
	Long: `Evaluate an expression against an archived session document. The
document exposes history, hosts, host_facts, play_recap, unreachable_hosts,
breakpoints, current_task, task_vars, and facts.

Examples:
  playctl query -i session.json.gz 'filter(history, .failed)'
  playctl query -i session.json.gz 'group_by(history, .host)' -f yaml
  playctl query -i session.json.gz          # interactive REPL`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryInput, "input", "i", "", "session archive (.json.gz)")
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "pretty-json", "output format: json, pretty-json, yaml")
	queryCmd.MarkFlagRequired("input")
}

func runQuery(cmd *cobra.Command, args []string) error {
	sess, err := session.Load(queryInput)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	doc, err := sess.Document()
	if err != nil {
		return err
	}
	engine := query.NewEngine(doc)

	if len(args) == 0 {
		return query.NewREPL(engine, os.Stdout).Run()
	}

	mode, err := query.ParseMode(queryFormat)
	if err != nil {
		return err
	}
	result, err := engine.Eval(args[0])
	if err != nil {
		return fmt.Errorf("eval %q: %w", args[0], err)
	}
	rendered, err := query.Render(result, mode)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <session.json.gz> <output>",
	Short: "Generate a report from an archived session",
	Long:  "Render an archived session as a Markdown or JSON report. The output format follows the extension: .json produces JSON, anything else Markdown.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := session.Load(args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		state := controller.NewState()
		sess.RestoreTo(state)
		if err := writeReport(report.NewGenerator(state), args[1]); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", args[1])
		return nil
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve archived sessions to AI agents over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		s := pmcp.NewServer(version, filepath.Join(dir, "archive"))
		return server.ServeStdio(s)
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the configured AI provider",
	Long: `Query the provider's model catalog and print one model per line. The
configured model (PLAYCTL_MODEL) is marked with an asterisk. Falls back to
the configured model alone when the catalog is unreachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.AIEnabled() {
			return fmt.Errorf("AI is not configured; set OPENAI_API_KEY")
		}
		client, err := newAIClient(cfg, slog.New(slog.DiscardHandler))
		if err != nil {
			return err
		}
		for _, name := range client.ListModels(cmd.Context()) {
			marker := "  "
			if name == client.Model() {
				marker = "* "
			}
			fmt.Println(marker + name)
		}
		return nil
	},
}

// --- init ---

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Install the Ansible strategy plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := plugin.DefaultDir()
		if err != nil {
			return err
		}
		path, err := plugin.Install(dir)
		if err != nil {
			return err
		}
		fmt.Printf("Strategy plugin installed to %s\n", path)
		fmt.Println()
		fmt.Println("playctl sets ANSIBLE_STRATEGY automatically when spawning the")
		fmt.Println("playbook. To use the plugin with a standalone ansible-playbook:")
		fmt.Println()
		fmt.Printf("    export ANSIBLE_STRATEGY=%s\n", plugin.Name)
		fmt.Printf("    export ANSIBLE_STRATEGY_PLUGINS=%s\n", dir)
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the playctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("playctl %s\n", version)
	},
}
