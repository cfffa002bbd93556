package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ralph-agent/ralph/internal/bridge"
	"github.com/ralph-agent/ralph/internal/config"
	"github.com/ralph-agent/ralph/internal/display"
	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/logging"
	"github.com/ralph-agent/ralph/internal/runner"
	"github.com/ralph-agent/ralph/internal/session"
	"github.com/ralph-agent/ralph/internal/task"
	"github.com/ralph-agent/ralph/internal/watch"
	"github.com/ralph-agent/ralph/internal/workflow"
)

var (
	flagYolo          bool
	flagResume        string
	flagFeatureList   string
	flagMaxIterations int
	flagPlain         bool
)

func init() {
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = runWorkflow

	rootCmd.Flags().BoolVar(&flagYolo, "yolo", false, "start without consulting a feature list")
	rootCmd.Flags().StringVar(&flagResume, "resume", "", "resume a persisted session by id (prefixes accepted)")
	rootCmd.Flags().StringVar(&flagFeatureList, "feature-list", "", "feature list file (default from config)")
	rootCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", -1, "cap implementation/review retries (0 = unbounded)")
	rootCmd.Flags().BoolVar(&flagPlain, "plain", false, "force plain output even on a terminal")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Workflow.MaxIterations = flagMaxIterations
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && flagResume == "" {
		return errors.New("a prompt is required (or --resume <session-id>)")
	}

	bootLogger, err := logging.NewLogger("", cfg.Logging.Level)
	if err != nil {
		return err
	}

	var store *session.Store
	var initialTasks []task.Task
	if flagResume != "" {
		store, err = session.Open(cfg.Session.Dir, flagResume, bootLogger)
		if err != nil {
			return fmt.Errorf("resuming session: %w", err)
		}
		initialTasks, err = store.LoadTasks()
		if err != nil {
			return fmt.Errorf("loading persisted tasks: %w", err)
		}
		if prompt == "" {
			meta, metaErr := store.Meta()
			if metaErr != nil {
				return fmt.Errorf("reading session metadata: %w", metaErr)
			}
			prompt = meta.Prompt
		}
	} else {
		store, err = session.Create(cfg.Session.Dir, prompt, bootLogger)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}
	defer store.Close()

	logger, err := logging.NewLogger(store.Dir(), cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger = logger.WithSession(store.ID())

	lock, err := session.AcquireLock(store.Dir(), store.ID(), logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	bus := event.NewBus()
	agentRunner := runner.New(cfg.Agent, logger)

	// The bridge observes top-level turns and owns the queued-message,
	// question, and tool-state surfaces. Only turn reporting has a
	// producer in this one-shot command; the rest serve interactive
	// front ends over the same bus.
	br := bridge.New(bus, logger, nil, cfg.Workflow.MessageDispatchDelay())
	agentRunner.SetTurnReporter(br)

	prompt, watcher := withFeatureList(cfg, prompt, bus, logger)
	if watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if useLiveView() {
		return runWithLiveView(ctx, cfg, store, bus, logger, agentRunner, initialTasks, prompt)
	}
	return runPlain(ctx, cfg, store, bus, logger, agentRunner, initialTasks, prompt)
}

// withFeatureList folds the feature-list content into the prompt and
// returns a watcher over the file, unless --yolo disabled it.
func withFeatureList(cfg *config.Config, prompt string, bus *event.Bus, logger *logging.Logger) (string, *watch.Watcher) {
	if flagYolo {
		return prompt, nil
	}
	path := cfg.Workflow.FeatureList
	if flagFeatureList != "" {
		path = flagFeatureList
	}

	watcher, err := watch.New(path, bus, logger)
	if err != nil {
		logger.Warn("feature list unavailable", "path", path, "error", err)
		return prompt, nil
	}
	if content := strings.TrimSpace(watcher.Content()); content != "" {
		prompt = prompt + "\n\n# Feature list\n\n" + content
	}
	return prompt, watcher
}

func runPlain(ctx context.Context, cfg *config.Config, store *session.Store, bus *event.Bus,
	logger *logging.Logger, agentRunner *runner.Runner, initialTasks []task.Task, prompt string) error {

	plain := display.NewPlain(os.Stdout)
	ex := workflow.NewExecutor(workflow.Options{
		Streamer:      agentRunner,
		Spawner:       agentRunner,
		Persister:     store,
		Bus:           bus,
		Logger:        logger,
		MaxIterations: cfg.Workflow.MaxIterations,
		InitialTasks:  initialTasks,
		Callbacks: workflow.Callbacks{
			OnPhaseStarted:  plain.PhaseStarted,
			OnPhaseFinished: plain.PhaseFinished,
		},
	})

	fmt.Printf("session %s\n", store.ID())
	res, err := ex.Run(ctx, prompt)
	if err != nil {
		return err
	}
	plain.Summary(res, ex.Tasks())
	if !res.Success {
		return errors.New("workflow did not complete successfully")
	}
	return nil
}

func runWithLiveView(ctx context.Context, cfg *config.Config, store *session.Store, bus *event.Bus,
	logger *logging.Logger, agentRunner *runner.Runner, initialTasks []task.Task, prompt string) error {

	events := make(chan event.Event, 256)
	bus.SubscribeAll(func(ev event.Event) {
		select {
		case events <- ev:
		default: // never block the engine on a slow view
		}
	})
	done := make(chan bool, 1)

	ex := workflow.NewExecutor(workflow.Options{
		Streamer:      agentRunner,
		Spawner:       agentRunner,
		Persister:     store,
		Bus:           bus,
		Logger:        logger,
		MaxIterations: cfg.Workflow.MaxIterations,
		InitialTasks:  initialTasks,
	})

	program := tea.NewProgram(display.NewModel(store.ID(), events, done))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	type runOutcome struct {
		res workflow.Result
		err error
	}
	outcome := make(chan runOutcome, 1)
	go func() {
		res, err := ex.Run(runCtx, prompt)
		done <- res.Success
		outcome <- runOutcome{res: res, err: err}
	}()

	if _, err := program.Run(); err != nil {
		return err
	}
	// Quitting the view interrupts the run; the engine persists state on
	// its way out either way.
	cancelRun()
	o := <-outcome
	if o.err != nil {
		return o.err
	}

	display.NewPlain(os.Stdout).Summary(o.res, ex.Tasks())
	if !o.res.Success {
		return errors.New("workflow did not complete successfully")
	}
	return nil
}

// useLiveView reports whether stdout is an interactive terminal.
func useLiveView() bool {
	if flagPlain {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
