package refresher

// State is the loop's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateCooldownSuccess
	StateCooldownError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateCooldownSuccess:
		return "cooldown_success"
	case StateCooldownError:
		return "cooldown_error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
