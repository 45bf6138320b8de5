package environment

// RewardSignal tags a step reward with the event that produced it.
// Environments attach the signal next to the raw reward magnitude so
// that downstream consumers branch on named events instead of numeric
// reward comparisons.
type RewardSignal int

const (
	// SignalNone marks a step whose reward carries no trigger event.
	SignalNone RewardSignal = iota

	// SignalOpenedContainer marks a step that revealed a receptacle
	// hiding the target object.
	SignalOpenedContainer

	// SignalObjectAcquired marks a step that picked up the target
	// object.
	SignalObjectAcquired

	// SignalObjectBonus marks a step that picked up the high-value
	// target object.
	SignalObjectBonus

	// SignalTargetVisible marks a step on which the target object
	// became visible to the agent.
	SignalTargetVisible
)

func (s RewardSignal) String() string {
	switch s {
	case SignalNone:
		return "None"
	case SignalOpenedContainer:
		return "OpenedContainer"
	case SignalObjectAcquired:
		return "ObjectAcquired"
	case SignalObjectBonus:
		return "ObjectBonus"
	case SignalTargetVisible:
		return "TargetVisible"
	}
	return "Unknown"
}
