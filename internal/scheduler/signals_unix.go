//go:build unix

package scheduler

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// WatchSignals forwards SIGTSTP/SIGCONT to the Controller's suspend/resume
// and invokes onInterrupt on SIGINT, matching  "on SIGTSTP...
// the scheduler stops dispatching new work and forwards a pause signal to
// active sandboxes... On SIGINT the frontend may offer: continue, quit,
// terminate". The returned stop func unregisters the handlers.
func WatchSignals(controller *Controller, onInterrupt func()) (stop func()) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, unix.SIGTSTP, unix.SIGCONT, unix.SIGINT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				switch sig {
				case unix.SIGTSTP:
					_ = controller.Suspend()
				case unix.SIGCONT:
					_ = controller.Resume()
				case unix.SIGINT:
					if onInterrupt != nil {
						onInterrupt()
					}
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
