package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/bonzai-ai/grove/internal/session"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external tool is installed and authenticated",
	Long: `Doctor runs the availability and authentication probes against the
configured external tool and prints remediation steps for whatever fails.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mgr := session.NewManager(cfg, nil)
	ctx := context.Background()

	fmt.Println(titleStyle.Render("grove doctor"))
	fmt.Printf("Tool command: %s\n\n", cfg.Tool.Command)

	availErr := mgr.CheckAvailability(ctx)
	fmt.Printf("%s availability (%s %s)\n", statusGlyph(availErr == nil), cfg.Tool.Command, cfg.Tool.VersionFlag)
	if availErr != nil {
		fmt.Println(dimStyle.Render("  " + availErr.Error()))
		fmt.Println(dimStyle.Render("  Install the tool and ensure it is on PATH."))
		// Authentication cannot be checked without the tool.
		return nil
	}

	authErr := mgr.CheckAuthentication(ctx)
	fmt.Printf("%s authentication\n", statusGlyph(authErr == nil))
	if authErr != nil {
		fmt.Println(dimStyle.Render("  " + authErr.Error()))
		fmt.Println(dimStyle.Render("  Log in with the tool's own auth flow, then re-run grove doctor."))
		return nil
	}

	fmt.Println()
	fmt.Println(okStyle.Render("All checks passed."))
	return nil
}
