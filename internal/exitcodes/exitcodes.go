package exitcodes

// Exit codes for the trashcan commands
const (
	Success         = 0 // Every dispatched path was deleted
	InvalidConfig   = 2 // Configuration file or flags invalid
	SafetyViolation = 3 // The safety validator refused at least one path
	RuntimeError    = 4 // A deletion or the pool itself failed
)
