package environment

import "fmt"

// ActionName names a discrete action in the embodied-agent action
// vocabulary.
type ActionName string

const (
	Forward   ActionName = "forward"
	Up        ActionName = "up"
	Down      ActionName = "down"
	TurnRight ActionName = "tright"
	TurnLeft  ActionName = "tleft"
	Take      ActionName = "take"
	Put       ActionName = "put"
	Open      ActionName = "open"
	Close     ActionName = "close"
)

// ActionSet maps between action names and the integer indices a policy
// emits. Different evaluation configurations use different vocabularies,
// so the mapping is carried as data rather than hard-coded at use sites.
type ActionSet struct {
	names   []ActionName
	indices map[ActionName]int
}

// NewActionSet creates an ActionSet whose indices follow the order of
// the argument names.
func NewActionSet(names ...ActionName) *ActionSet {
	indices := make(map[ActionName]int, len(names))
	for i, name := range names {
		indices[name] = i
	}
	return &ActionSet{names: names, indices: indices}
}

// FullActionSet returns the nine-action manipulation vocabulary.
func FullActionSet() *ActionSet {
	return NewActionSet(Forward, Up, Down, TurnRight, TurnLeft, Take, Put,
		Open, Close)
}

// NavigationActionSet returns the reduced vocabulary in which take/put
// are only ever issued as scripted interventions, never sampled.
func NavigationActionSet() *ActionSet {
	return NewActionSet(Forward, Up, Down, TurnRight, TurnLeft, Open, Close)
}

// Len returns the number of actions in the set.
func (a *ActionSet) Len() int { return len(a.names) }

// Index returns the integer index of a named action.
func (a *ActionSet) Index(name ActionName) (int, error) {
	i, ok := a.indices[name]
	if !ok {
		return 0, fmt.Errorf("index: no action %q in set", name)
	}
	return i, nil
}

// Name returns the action name at an integer index.
func (a *ActionSet) Name(index int) (ActionName, error) {
	if index < 0 || index >= len(a.names) {
		return "", fmt.Errorf("name: action index %d out of range [0, %d)",
			index, len(a.names))
	}
	return a.names[index], nil
}

// Contains reports whether the set includes a named action.
func (a *ActionSet) Contains(name ActionName) bool {
	_, ok := a.indices[name]
	return ok
}
