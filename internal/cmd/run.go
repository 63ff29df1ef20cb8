package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/logging"
	"github.com/bonzai-ai/grove/internal/mode"
	"github.com/bonzai-ai/grove/internal/phase"
	"github.com/bonzai-ai/grove/internal/session"
	"github.com/bonzai-ai/grove/internal/util"
)

var runFlags struct {
	maxConcurrent int
	outputRoot    string
}

var runCmd = &cobra.Command{
	Use:   "run [mode]",
	Short: "Execute a workflow mode's task set through the orchestrator",
	Long: `Run enters the given workflow mode and executes its task set in staged,
concurrency-capped batches. With no mode argument, the project is assessed
first and the recommended mode is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runFlags.maxConcurrent, "max-concurrent", 0, "override the per-batch concurrency cap")
	runCmd.Flags().StringVar(&runFlags.outputRoot, "output-root", "", "override the report output root")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runFlags.maxConcurrent > 0 {
		cfg.Orchestrator.MaxConcurrent = runFlags.maxConcurrent
	}
	if runFlags.outputRoot != "" {
		cfg.Reports.OutputRoot = runFlags.outputRoot
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	var target mode.ID
	if len(args) == 1 {
		target, err = mode.ParseID(args[0])
		if err != nil {
			return err
		}
	} else {
		rec, _, err := assessProject(cmd, cfg, cwd)
		if err != nil {
			return err
		}
		target = rec.Mode
		fmt.Printf("No mode given; assessment recommends %s (confidence %d%%)\n\n",
			okStyle.Render(string(target)), rec.Confidence)
	}

	log, logClose, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer logClose()

	reportRoot := cfg.Reports.ResolveOutputRoot(cwd)
	mgr := session.NewManager(cfg, log)
	orch := phase.New(cfg, mgr, log,
		phase.WithReporter(phase.NewReporter(reportRoot, log)),
		phase.WithEventHandler(&consoleEvents{}),
	)

	machine, err := mode.NewMachine(target,
		mode.WithExecutor(orch),
		mode.WithProject(afero.NewOsFs(), cwd),
		mode.WithLogger(log),
	)
	if err != nil {
		return err
	}

	def, err := mode.Lookup(target)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n\n", def.Icon, titleStyle.Render("Entering "+def.Name+" mode"))

	runErr := machine.StartExecution(cmd.Context())
	printExecutionSummary(orch.Execution())
	if runErr != nil {
		return runErr
	}

	next, err := machine.RecommendedNext(cmd.Context())
	if err == nil && len(next) > 0 {
		fmt.Printf("\n%s %v\n", headerStyle.Render("Recommended next:"), next)
	}
	return nil
}

func openLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), func() {}, nil
	}
	log, err := logging.NewLogger("", cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, func() { _ = log.Close() }, nil
}

func printExecutionSummary(exec *phase.Execution) {
	if exec == nil {
		return
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Execution summary"))
	for _, stage := range exec.Stages {
		glyph := statusGlyph(stage.Status == phase.StatusCompleted)
		fmt.Printf("%s Stage %d: %s — %d/%d tasks completed",
			glyph, stage.Index+1, stage.Name, stage.CompletedTasks(), len(stage.Tasks))
		if stage.FailureCount > 0 {
			fmt.Printf(", %s", failStyle.Render(fmt.Sprintf("%d failed", stage.FailureCount)))
		}
		fmt.Println()
		if stage.ReportPath != "" {
			fmt.Println(dimStyle.Render("  report: " + stage.ReportPath))
		}
	}
	fmt.Printf("\nOverall: %s\n", string(exec.Status))
}

// consoleEvents streams task-level progress to stdout during a run.
type consoleEvents struct {
	phase.NopEventHandler
}

const taskLineWidth = 100

func (consoleEvents) OnTaskStarted(task *phase.Task) {
	fmt.Println(util.TruncateANSI(dimStyle.Render("▸")+" "+task.Name, taskLineWidth))
}

func (consoleEvents) OnTaskCompleted(task *phase.Task) {
	fmt.Println(util.TruncateANSI(okStyle.Render("✓")+" "+task.Name, taskLineWidth))
}

func (consoleEvents) OnTaskFailed(task *phase.Task, err error) {
	fmt.Println(util.TruncateANSI(failStyle.Render("✗")+" "+task.Name+": "+err.Error(), taskLineWidth))
}
