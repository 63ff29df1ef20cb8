package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/phase"
	"github.com/bonzai-ai/grove/internal/session"
)

var sweepFlags struct {
	itemsFile     string
	stages        int
	tasksPerStage int
	maxConcurrent int
}

var sweepCmd = &cobra.Command{
	Use:   "sweep --items file",
	Short: "Run the fixed numeric stage configuration over a work list",
	Long: `Sweep divides an external work list (one item per line) across a fixed
grid of stages and tasks, then executes it through the orchestrator. The
reference shape is 5 stages of 25 tasks; both counts are configurable.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepFlags.itemsFile, "items", "", "file with one work item per line (required)")
	sweepCmd.Flags().IntVar(&sweepFlags.stages, "stages", 0, "number of sweep stages (default from config)")
	sweepCmd.Flags().IntVar(&sweepFlags.tasksPerStage, "tasks-per-stage", 0, "tasks per stage (default from config)")
	sweepCmd.Flags().IntVar(&sweepFlags.maxConcurrent, "max-concurrent", 0, "override the per-batch concurrency cap")
	_ = sweepCmd.MarkFlagRequired("items")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if sweepFlags.maxConcurrent > 0 {
		cfg.Orchestrator.MaxConcurrent = sweepFlags.maxConcurrent
	}
	stages := cfg.Orchestrator.SweepStages
	if sweepFlags.stages > 0 {
		stages = sweepFlags.stages
	}
	tasksPerStage := cfg.Orchestrator.SweepTasksPerStage
	if sweepFlags.tasksPerStage > 0 {
		tasksPerStage = sweepFlags.tasksPerStage
	}

	items, err := readItems(sweepFlags.itemsFile)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no work items in %s", sweepFlags.itemsFile)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	log, logClose, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer logClose()

	mgr := session.NewManager(cfg, log)
	orch := phase.New(cfg, mgr, log,
		phase.WithReporter(phase.NewReporter(cfg.Reports.ResolveOutputRoot(cwd), log)),
		phase.WithEventHandler(&consoleEvents{}),
	)

	defs := phase.SweepDefinitions(items, stages, tasksPerStage)
	if _, err := orch.Initialize(defs, phase.Policy{Mode: "Sweep"}); err != nil {
		return err
	}

	fmt.Printf("%s %d items across %d stages of %d tasks\n\n",
		titleStyle.Render("Sweep:"), len(items), stages, tasksPerStage)

	runErr := orch.Run(cmd.Context())
	printExecutionSummary(orch.Execution())
	return runErr
}

func readItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open items file: %w", err)
	}
	defer f.Close()

	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	return items, nil
}
