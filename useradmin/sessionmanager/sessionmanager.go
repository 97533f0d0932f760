package sessionmanager

// Event reports that a user gained or lost an active login session.
type Event struct {
	UID    uint64
	Active bool
}

// Watcher produces a feed of session status changes. Implementations
// emit an initial event per currently logged-in user so consumers can
// seed their state.
type Watcher interface {
	Events() <-chan Event
	Close() error
}
