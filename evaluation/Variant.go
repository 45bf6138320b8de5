package evaluation

import "fmt"

// Variant selects which intervention state machine the evaluator
// overlays on the policy's own behaviour. Exactly one variant is
// active per run.
type Variant int

const (
	// Autonomous observes and labels the policy's own successful
	// open/take choices without injecting any action.
	Autonomous Variant = iota

	// ScriptedInterleave breaks the policy out of repeated-action
	// stalls and appends a fixed take/put/close probe after every
	// successful step.
	ScriptedInterleave

	// ScriptedProbe fires a fixed open/take/put/close probe whenever
	// the environment signals a visible target, then replays the
	// policy's sampled action to keep the main loop advancing.
	ScriptedProbe
)

// String returns the run-mode tag of the variant.
func (v Variant) String() string {
	switch v {
	case Autonomous:
		return "E2E"
	case ScriptedInterleave:
		return "HYBRID"
	case ScriptedProbe:
		return "OBCOV"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// subdir returns the artifact directory of the variant, relative to
// the evaluator's output root.
func (v Variant) subdir() string {
	switch v {
	case Autonomous:
		return "E2E_rollouts"
	case ScriptedInterleave:
		return "Hybrid_rollouts"
	default:
		return "."
	}
}

// ParseVariant maps a run-mode tag back to its Variant.
func ParseVariant(tag string) (Variant, error) {
	switch tag {
	case "E2E":
		return Autonomous, nil
	case "HYBRID":
		return ScriptedInterleave, nil
	case "OBCOV":
		return ScriptedProbe, nil
	default:
		return 0, fmt.Errorf("parseVariant: unknown variant %q", tag)
	}
}
