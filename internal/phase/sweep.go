package phase

import "fmt"

// PartitionStrings splits items into n slices using ceiling division, so
// every slice but the last has the same length and the last may be shorter.
// Slices beyond the available items are empty, never nil-padded short counts.
func PartitionStrings(items []string, n int) [][]string {
	if n <= 0 {
		return nil
	}

	size := (len(items) + n - 1) / n
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}
		out[i] = append([]string{}, items[start:end]...)
	}
	return out
}

// sweepStageNames are the fixed names for the numeric sweep configuration.
// Stages beyond the list fall back to a generated name.
var sweepStageNames = []string{
	"Reconnaissance",
	"Remediation",
	"Verification",
	"Hardening",
	"Final Audit",
}

// sweepInstructions maps a task's ordinal within its stage to a specific
// instruction. Ordinals without an entry use the generic instruction.
var sweepInstructions = map[int]string{
	0: "Survey the assigned items and fix the most severe one first.",
	1: "Cross-check the assigned items against the project's existing tests before changing anything.",
	2: "Prefer minimal, reviewable changes; split unrelated fixes.",
}

// genericSweepInstruction is the fallback for task ordinals with no
// specific entry in the lookup table.
const genericSweepInstruction = "Work through the assigned items one at a time and report what was fixed."

// SweepStageName returns the display name for sweep stage index i.
func SweepStageName(i int) string {
	if i < len(sweepStageNames) {
		return sweepStageNames[i]
	}
	return fmt.Sprintf("Sweep Stage %d", i+1)
}

// SweepInstruction returns the stage instruction for a task ordinal,
// falling back to the generic instruction when the ordinal has no specific
// entry.
func SweepInstruction(ordinal int) string {
	if instr, ok := sweepInstructions[ordinal]; ok {
		return instr
	}
	return genericSweepInstruction
}

// SweepDefinitions builds the fixed numeric stage configuration: stages
// stages of tasksPerStage tasks each, with the external work list divided
// evenly across each stage's tasks by ceiling division. The reference
// configuration is 5 stages of 25 tasks, but both counts are inputs.
func SweepDefinitions(items []string, stages, tasksPerStage int) []StageDefinition {
	if stages <= 0 || tasksPerStage <= 0 {
		return nil
	}

	defs := make([]StageDefinition, 0, stages)
	for s := 0; s < stages; s++ {
		def := StageDefinition{Name: SweepStageName(s)}
		slices := PartitionStrings(items, tasksPerStage)
		for i := 0; i < tasksPerStage; i++ {
			def.Tasks = append(def.Tasks, TaskDefinition{
				Name:        fmt.Sprintf("%s Agent %d", def.Name, i+1),
				Instruction: SweepInstruction(i),
				Items:       slices[i],
			})
		}
		defs = append(defs, def)
	}
	return defs
}
