package raffle

// State is the lifecycle stage of the raffle.
type State uint8

const (
	// Open accepts entries. No randomness request is outstanding.
	Open State = iota
	// AwaitingRandomness rejects entries while exactly one randomness request
	// is outstanding.
	AwaitingRandomness
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case AwaitingRandomness:
		return "CALCULATING"
	default:
		return "UNDEFINED"
	}
}
