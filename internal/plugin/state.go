package plugin

// State represents the lifecycle state of a plugin within one runtime.
type State int

// Plugin states.
const (
	// StateUnrequested - Plugin has not been required by this runtime.
	StateUnrequested State = iota

	// StateLoading - Plugin factory is running; requiring it from its own
	// load chain is a cycle, other callers wait for it.
	StateLoading

	// StateLoaded - Plugin capability is memoized.
	StateLoaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnrequested:
		return "unrequested"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}
