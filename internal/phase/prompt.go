package phase

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the policy-aware prompt for a task. It embeds the
// owning mode's guard questions and allowed/forbidden action lists around
// the task's own instruction and work items, so the external tool is biased
// toward the mode's intent.
func BuildPrompt(task *Task) string {
	var sb strings.Builder

	if task.Policy.Mode != "" {
		sb.WriteString(fmt.Sprintf("You are working in %s mode.\n\n", task.Policy.Mode))
	}

	sb.WriteString(fmt.Sprintf("Task: %s\n", task.Name))
	if task.Instruction != "" {
		sb.WriteString(task.Instruction)
		sb.WriteString("\n")
	}

	if len(task.Items) > 0 {
		sb.WriteString("\nWork items assigned to this task:\n")
		for _, item := range task.Items {
			sb.WriteString(fmt.Sprintf("- %s\n", item))
		}
	}

	if len(task.Policy.GuardQuestions) > 0 {
		sb.WriteString("\nBefore acting, ask yourself:\n")
		for _, q := range task.Policy.GuardQuestions {
			sb.WriteString(fmt.Sprintf("- %s\n", q))
		}
	}

	if len(task.Policy.AllowedActions) > 0 {
		sb.WriteString("\nYou may:\n")
		for _, a := range task.Policy.AllowedActions {
			sb.WriteString(fmt.Sprintf("- %s\n", a))
		}
	}

	if len(task.Policy.ForbiddenActions) > 0 {
		sb.WriteString("\nYou must not:\n")
		for _, a := range task.Policy.ForbiddenActions {
			sb.WriteString(fmt.Sprintf("- %s\n", a))
		}
	}

	return sb.String()
}
