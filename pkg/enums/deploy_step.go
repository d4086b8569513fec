package enums

// DeployStep is the position inside the three-transaction deploy saga.
type DeployStep string

const (
	DeployStepNone               DeployStep = ""
	DeployStepCreatingCollection DeployStep = "creating_collection"
	DeployStepAddingTracks       DeployStep = "adding_tracks"
	DeployStepFinalizing         DeployStep = "finalizing"
	DeployStepDone               DeployStep = "done"
)

var deployStepOrder = []DeployStep{
	DeployStepCreatingCollection,
	DeployStepAddingTracks,
	DeployStepFinalizing,
	DeployStepDone,
}

// String returns the literal string for the step.
func (s DeployStep) String() string {
	return string(s)
}

// Ordinal returns the step's position, or -1 when unknown or none.
func (s DeployStep) Ordinal() int {
	for i, candidate := range deployStepOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// After reports whether s comes strictly after other.
func (s DeployStep) After(other DeployStep) bool {
	return s.Ordinal() > other.Ordinal()
}
