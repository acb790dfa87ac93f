package bstcontext

import "time"

// Activity is a timed, message-bus-scoped unit of work: 
// "start_activity(name) -> <work> -> end_activity(name, success|failure)"
// guarantee of a matching Start/Success or Start/Fail pair with elapsed
// time that excludes any paused interval.
type Activity struct {
	bus          *Bus
	elementID    string
	action       string
	start        time.Time
	pausedAtOpen time.Duration
	pausedTotal  func() time.Duration
}

// StartActivity begins a timed activity for elementID/action, sending a
// Start message immediately. pausedTotal, if non-nil, should return the
// cumulative duration the scheduler has spent suspended since process
// start; its delta across the activity's lifetime is subtracted from the
// reported elapsed time.
func (b *Bus) StartActivity(elementID, action string, pausedTotal func() time.Duration) *Activity {
	a := &Activity{bus: b, elementID: elementID, action: action, start: time.Now(), pausedTotal: pausedTotal}
	if pausedTotal != nil {
		a.pausedAtOpen = pausedTotal()
	}
	b.Send(Message{Kind: Start, ElementID: elementID, Action: action})
	return a
}

// End closes the activity, sending Success or Fail with elapsed time.
func (a *Activity) End(success bool, text, detail, logFile string) {
	elapsed := time.Since(a.start)
	if a.pausedTotal != nil {
		elapsed -= a.pausedTotal() - a.pausedAtOpen
	}
	kind := Success
	if !success {
		kind = Fail
	}
	a.bus.Send(Message{
		Kind:      kind,
		ElementID: a.elementID,
		Action:    a.action,
		Text:      text,
		Detail:    detail,
		Elapsed:   elapsed,
		LogFile:   logFile,
	})
}
