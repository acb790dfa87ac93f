//go:build !unix

package scheduler

// WatchSignals is a no-op on non-Unix platforms: SIGTSTP has no equivalent,
// and programmatic Suspend/Resume/Terminate on Controller remain available
// regardless.
func WatchSignals(controller *Controller, onInterrupt func()) (stop func()) {
	return func() {}
}
