package assess

import (
	"fmt"

	"github.com/bonzai-ai/grove/internal/mode"
)

// Recommendation is the decision tree's output: a mode, how sure the tree
// is, the trail of observations that led there, and runner-up modes.
type Recommendation struct {
	Mode         mode.ID
	Confidence   int
	Reasoning    []string
	Alternatives []mode.ID
}

// Recommend maps a feature vector to a mode through a fixed decision tree.
// Checks run in severity order and the first failing check decides. Every
// check contributes one entry to the reasoning trail, so the trail ends
// with the deciding observation and records everything ruled out first.
func Recommend(f Features) Recommendation {
	var trail []string

	if !f.DevServer {
		trail = append(trail,
			"no development server capability found: no dev/start script, Makefile run target, or compose file")
		return Recommendation{
			Mode:         mode.Foundation,
			Confidence:   95,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Build},
		}
	}
	trail = append(trail, "development server capability present")

	if !f.FeaturesComplete {
		trail = append(trail, fmt.Sprintf(
			"%d TODO markers across %d source files suggest unfinished features", f.TodoCount, f.SourceFiles))
		return Recommendation{
			Mode:         mode.Completion,
			Confidence:   85,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Build},
		}
	}
	trail = append(trail, "TODO density is low; planned features look finished")

	if !f.CodeClean {
		trail = append(trail, fmt.Sprintf(
			"%d FIXME/HACK markers across %d source files indicate known debt", f.FixmeCount, f.SourceFiles))
		return Recommendation{
			Mode:         mode.Cleanup,
			Confidence:   80,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Completion},
		}
	}
	trail = append(trail, "debt-marker density is low")

	if !f.Tested {
		trail = append(trail, "no test files found")
		return Recommendation{
			Mode:         mode.Validation,
			Confidence:   85,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Cleanup},
		}
	}
	trail = append(trail, fmt.Sprintf("%d test files present", f.TestFiles))

	if !f.Deployed {
		trail = append(trail, "no deployment configuration found")
		return Recommendation{
			Mode:         mode.Deployment,
			Confidence:   80,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Validation},
		}
	}
	trail = append(trail, "deployment configuration present")

	if !f.Monitored {
		trail = append(trail, "no monitoring configuration found")
		return Recommendation{
			Mode:         mode.Maintenance,
			Confidence:   75,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Deployment},
		}
	}
	trail = append(trail, "monitoring configuration present")

	if f.Backlog {
		trail = append(trail, "a tracked backlog of future work exists")
		return Recommendation{
			Mode:         mode.Enhancement,
			Confidence:   70,
			Reasoning:    trail,
			Alternatives: []mode.ID{mode.Maintenance},
		}
	}
	trail = append(trail, "no backlog found; the project looks stable")

	return Recommendation{
		Mode:         mode.Maintenance,
		Confidence:   60,
		Reasoning:    trail,
		Alternatives: []mode.ID{mode.Enhancement},
	}
}
