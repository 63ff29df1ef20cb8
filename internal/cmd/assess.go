package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bonzai-ai/grove/internal/assess"
	"github.com/bonzai-ai/grove/internal/config"
)

var assessCmd = &cobra.Command{
	Use:   "assess [path]",
	Short: "Inspect a project tree and recommend a workflow mode",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("cannot assess %s: %w", root, err)
	}

	rec, features, err := assessProject(cmd, cfg, root)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Project assessment"))
	fmt.Printf("Path: %s\n\n", root)

	fmt.Println(headerStyle.Render("Observed"))
	fmt.Printf("  %s dev server runnable\n", statusGlyph(features.DevServer))
	fmt.Printf("  %s features complete (%d TODO markers / %d source files)\n",
		statusGlyph(features.FeaturesComplete), features.TodoCount, features.SourceFiles)
	fmt.Printf("  %s code clean (%d FIXME/HACK markers)\n", statusGlyph(features.CodeClean), features.FixmeCount)
	fmt.Printf("  %s tested (%d test files)\n", statusGlyph(features.Tested), features.TestFiles)
	fmt.Printf("  %s deployment configured\n", statusGlyph(features.Deployed))
	fmt.Printf("  %s monitoring configured\n", statusGlyph(features.Monitored))
	fmt.Printf("  %s backlog tracked\n", statusGlyph(features.Backlog))

	fmt.Println()
	fmt.Printf("%s %s (confidence %d%%)\n",
		headerStyle.Render("Recommended mode:"), okStyle.Render(string(rec.Mode)), rec.Confidence)
	if len(rec.Alternatives) > 0 {
		fmt.Printf("%s %v\n", dimStyle.Render("Alternatives:"), rec.Alternatives)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Reasoning"))
	for i, step := range rec.Reasoning {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
	return nil
}

func assessProject(cmd *cobra.Command, cfg *config.Config, root string) (assess.Recommendation, assess.Features, error) {
	analyzer := assess.NewAnalyzer(afero.NewOsFs(), assess.Limits{
		MaxDepth: cfg.Assessment.MaxDepth,
		MaxFiles: cfg.Assessment.MaxFiles,
	}, nil)

	features, err := analyzer.Analyze(cmd.Context(), root)
	if err != nil {
		return assess.Recommendation{}, assess.Features{}, fmt.Errorf("assessment failed: %w", err)
	}
	return assess.Recommend(features), features, nil
}
