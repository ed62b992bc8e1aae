package core

// Action is a discrete signal value.
type Action int8

const (
	Sell Action = -1
	None Action = 0
	Buy  Action = 1
)

// Float returns the signal as -1, 0 or +1.
func (a Action) Float() float64 { return float64(a) }

func (a Action) String() string {
	switch {
	case a > 0:
		return "buy"
	case a < 0:
		return "sell"
	default:
		return "none"
	}
}
