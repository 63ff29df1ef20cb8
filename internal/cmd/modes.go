package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bonzai-ai/grove/internal/mode"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the workflow modes and their policies",
	RunE:  runModes,
}

func init() {
	rootCmd.AddCommand(modesCmd)
}

func runModes(cmd *cobra.Command, args []string) error {
	for _, def := range mode.Definitions() {
		fmt.Printf("%s %s\n", def.Icon, titleStyle.Render(def.Name))
		fmt.Println(dimStyle.Render("  " + def.Description))

		fmt.Println(headerStyle.Render("  Guard questions"))
		for _, q := range def.GuardQuestions {
			fmt.Printf("    - %s\n", q)
		}

		fmt.Println(headerStyle.Render("  Allowed"))
		for _, a := range def.AllowedActions {
			fmt.Printf("    - %s\n", a)
		}

		fmt.Println(headerStyle.Render("  Forbidden"))
		for _, a := range def.ForbiddenActions {
			fmt.Printf("    - %s\n", a)
		}

		fmt.Println(headerStyle.Render("  Success criteria"))
		for _, c := range def.Criteria {
			req := "optional"
			if c.Required {
				req = "required"
			}
			fmt.Printf("    - %s (%s)\n", c.Description, req)
		}

		next := make([]string, 0, len(def.Next))
		for _, id := range def.Next {
			next = append(next, string(id))
		}
		fmt.Printf("  %s %s\n\n", headerStyle.Render("Recommended next:"), strings.Join(next, ", "))
	}
	return nil
}
