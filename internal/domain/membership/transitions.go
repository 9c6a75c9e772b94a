package membership

// Transition is a single edge of the membership status machine.
type Transition struct {
	From Status
	To   Status
}

var validTransitions = map[Transition]bool{
	{StatusPending, StatusActive}:    true, // charge confirmed
	{StatusPending, StatusCancelled}: true, // superseded before confirmation
	{StatusActive, StatusCancelled}:  true, // plan change or cancellation
}

// CanTransition checks whether a membership row may move from one status to another.
func CanTransition(from, to Status) bool {
	return validTransitions[Transition{from, to}]
}

// ChangeTypeFor classifies a plan change by comparing prices.
func ChangeTypeFor(from, to *Plan) ChangeType {
	if from == nil {
		if to.IsFree() {
			return ChangeSwitch
		}
		return ChangeUpgrade
	}
	switch {
	case to.Price > from.Price:
		return ChangeUpgrade
	case to.Price < from.Price:
		return ChangeDowngrade
	default:
		return ChangeSwitch
	}
}
