// Command advisor runs the M&A advisory workflow: an interactive strategy
// elicitation dialogue followed by a background analysis pipeline whose
// progress is polled and rendered until completion.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"advisor/pkg/artifact"
	"advisor/pkg/config"
	"advisor/pkg/elicit"
	"advisor/pkg/eventlog"
	"advisor/pkg/llm"
	"advisor/pkg/logx"
	"advisor/pkg/persistence"
	"advisor/pkg/pipeline"
	"advisor/pkg/status"
	"advisor/pkg/tokens"
	"advisor/pkg/watch"
)

// App wires the advisor components around one shared tracker.
type App struct {
	cfg     config.Config
	logger  *logx.Logger
	bot     *elicit.Bot
	tracker *status.Tracker
	runner  *pipeline.Runner
	watcher *watch.Watcher
	poller  *watch.Reconciler
	journal *eventlog.Writer
	ledger  *persistence.Ledger
}

func main() {
	configPath := flag.String("config", "advisor.yaml", "path to the configuration file")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}

	if err := run(*configPath, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "advisor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string) error {
	logger := logx.NewLogger("advisor")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	apiKey, err := resolveAPIKey(&cfg)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(cfg.Model, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	if err := artifact.EnsureLayout(cfg.OutputDir); err != nil {
		return err
	}

	counter, err := tokens.NewCounter()
	if err != nil {
		logger.Warn("Token counter unavailable, prompt budget disabled: %v", err)
	}

	recorder := status.NewPrometheusRecorder()
	tracker := status.NewTracker(artifact.TotalMilestones, recorder)

	journal, err := eventlog.NewWriter(cfg.EventLogDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	ledger, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	store, err := status.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(tracker, pipeline.NewStages(client, cfg.OutputDir), cfg.Pipeline.StageTimeout)
	runner.SetJournal(journal)
	runner.SetSnapshotStore(store)
	runner.SetRecorder(ledger)

	app := &App{
		cfg:     cfg,
		logger:  logger,
		bot:     elicit.NewBot(client, counter, cfg.Elicitation.MaxRetries, cfg.Elicitation.MaxPromptTokens),
		tracker: tracker,
		runner:  runner,
		watcher: watch.NewWatcher(cfg.OutputDir, tracker),
		poller:  watch.NewReconciler(cfg.OutputDir, tracker, cfg.Pipeline.PollInterval),
		journal: journal,
		ledger:  ledger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutdown requested")
		runner.Stop()
		cancel()
	}()

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("Metrics endpoint failed: %v", err)
			}
		}()
	}

	if err := app.watcher.Start(ctx); err != nil {
		// The reconciler alone keeps progress correct.
		logger.Warn("Filesystem watcher disabled: %v", err)
	}
	app.poller.Start(ctx)

	return app.chatLoop(ctx)
}

// chatLoop runs the foreground dialogue and command surface.
func (a *App) chatLoop(ctx context.Context) error {
	fmt.Println("M&A Strategy Advisor")
	fmt.Println("Commands: /start  /reset  /status  /runs  /log  /quit")
	fmt.Println()
	a.logger.Info("Elicitation session %s started", a.bot.SessionID())

	welcome, _ := a.bot.Advance(ctx, "")
	fmt.Printf("advisor> %s\n", welcome)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit":
			a.runner.Stop()
			a.runner.Wait()
			return nil
		case input == "/start":
			a.startAnalysis(ctx)
		case input == "/reset":
			a.reset()
		case input == "/status":
			renderStatus(a.tracker.Snapshot())
		case input == "/runs":
			a.renderRuns()
		case input == "/log":
			a.renderEvents()
		default:
			reply, complete := a.bot.Advance(ctx, input)
			fmt.Printf("advisor> %s\n", reply)
			if complete {
				a.startAnalysis(ctx)
			}
		}
	}
}

// startAnalysis persists the elicitation snapshot, kicks off the pipeline,
// and renders progress until the run stops. Idempotent when already running.
func (a *App) startAnalysis(ctx context.Context) {
	if !a.bot.Complete() && !artifact.Satisfied(artifact.Path(a.cfg.OutputDir, artifact.StrategyInfoFile)) {
		fmt.Println("advisor> The strategy discussion isn't finished yet. Keep chatting, or /reset to start over.")
		return
	}

	if a.bot.Complete() {
		record := a.bot.Record()
		if _, err := record.SaveSnapshot(a.cfg.OutputDir); err != nil {
			fmt.Printf("advisor> Failed to save strategy snapshot: %v\n", err)
			return
		}
	}

	runID, started := a.runner.Start(ctx)
	if !started {
		fmt.Printf("advisor> Analysis already running (run %s).\n", runID)
		return
	}
	fmt.Printf("advisor> Analysis started (run %s).\n", runID)

	ticker := time.NewTicker(a.cfg.Pipeline.PollInterval)
	defer ticker.Stop()
	for range ticker.C {
		st := a.tracker.Snapshot()
		renderStatus(st)
		if !st.IsRunning {
			break
		}
		if ctx.Err() != nil {
			return
		}
	}

	final := a.tracker.Snapshot()
	if final.Error != "" {
		fmt.Printf("advisor> Analysis stopped: %s\n", final.Error)
		return
	}
	fmt.Printf("advisor> %s. Reports are in %s.\n", final.Message, a.cfg.OutputDir)
}

// reset clears artifacts and status ahead of a fresh run.
func (a *App) reset() {
	if a.runner.Running() {
		fmt.Println("advisor> Cannot reset while an analysis is running. Use /quit to cancel it first.")
		return
	}
	if err := artifact.Reset(a.cfg.OutputDir); err != nil {
		fmt.Printf("advisor> Reset failed: %v\n", err)
		return
	}
	a.tracker.Reset()
	fmt.Println("advisor> Artifacts and status cleared. Ready for a new analysis.")
}

func (a *App) renderRuns() {
	runs, err := a.ledger.RecentRuns(10)
	if err != nil {
		fmt.Printf("advisor> Failed to list runs: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Println("advisor> No recorded runs yet.")
		return
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %s  %s", run.StartedAt.Format(time.RFC3339), run.RunID, run.Outcome)
		if run.Error != "" {
			line += "  (" + run.Error + ")"
		}
		fmt.Println(line)
	}
}

// renderEvents prints today's journaled progress events.
func (a *App) renderEvents() {
	events, err := eventlog.ReadEvents(a.cfg.EventLogDir, time.Now())
	if err != nil {
		fmt.Printf("advisor> Failed to read event log: %v\n", err)
		return
	}
	if len(events) == 0 {
		fmt.Println("advisor> No events journaled today.")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %s  %s", ev.Timestamp.Format(time.RFC3339), ev.RunID, ev.Kind)
		if ev.Stage != "" {
			line += "  " + ev.Stage
		}
		if ev.Error != "" {
			line += "  (" + ev.Error + ")"
		}
		fmt.Println(line)
	}
}

func renderStatus(st status.ProcessingStatus) {
	bar := progressBar(st.Progress, 20)
	line := fmt.Sprintf("[%s] %3.0f%%  %s", bar, st.Progress*100, st.Message)
	if st.CurrentAgent != "" {
		line += fmt.Sprintf("  (%s: %s)", st.CurrentAgent, st.CurrentTask)
	}
	if st.Error != "" {
		line += "  error: " + st.Error
	}
	fmt.Println(line)
}

func progressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
}

// resolveAPIKey takes the key from the provider's environment variable,
// falling back to an interactive prompt that keeps the key off the terminal.
func resolveAPIKey(cfg *config.Config) (string, error) {
	if key := cfg.APIKey(); key != "" {
		return key, nil
	}

	fmt.Printf("Enter API key for provider %q (%s): ", cfg.Model.Provider, cfg.Model.APIKeyEnv)
	key, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("no API key provided; set %s or enter one at the prompt", cfg.Model.APIKeyEnv)
	}
	return string(key), nil
}
