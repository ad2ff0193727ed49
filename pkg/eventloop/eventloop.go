// Package eventloop implements the Cb cooperative Event Loop: a
// single-threaded FIFO task queue plus a timer list, draining until both
// are empty, a caller-supplied predicate is satisfied, or Stop requests
// that the drain end.
//
// The Task{ID, Data} shape is a degraded form of a Chase-Lev work-stealing
// deque's task record, cut down to plain FIFO semantics — this loop has
// exactly one goroutine ever touching the queue, so there is nothing to
// steal and nothing to synchronize.
package eventloop

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one queued unit of deferred work: an async call's body
// resumption, or a scheduled callback.
type Task struct {
	ID   int64
	Data func()
}

// Timer fires Data once its deadline has passed. Timers become eligible
// at or after the deadline; two timers with the same deadline fire in
// the order they were added.
type Timer struct {
	ID       int64
	Deadline time.Time
	Data     func()
}

// Loop is the cooperative scheduler every async call and timer is
// driven through. Only one task runs at a time; tasks run to completion.
// Drains nest: an await inside a running task pumps the same loop, so
// the stop request and drain depth are tracked rather than a single
// running bit a nested drain would clobber.
type Loop struct {
	queue   []Task
	timers  []Timer
	nextID  int64
	stopReq bool
	depth   int
	log     *logrus.Logger
}

func New(log *logrus.Logger) *Loop {
	if log == nil {
		log = logrus.New()
	}
	return &Loop{log: log}
}

// Post enqueues fn to run on a future Run/Step call, returning a task id
// callers may ignore.
func (l *Loop) Post(fn func()) int64 {
	l.nextID++
	l.queue = append(l.queue, Task{ID: l.nextID, Data: fn})
	return l.nextID
}

// PostTimer schedules fn to run once ms milliseconds of wall clock have
// elapsed.
func (l *Loop) PostTimer(ms int64, fn func()) int64 {
	l.nextID++
	l.timers = append(l.timers, Timer{ID: l.nextID, Deadline: time.Now().Add(time.Duration(ms) * time.Millisecond), Data: fn})
	return l.nextID
}

// Pending reports whether any task or timer remains.
func (l *Loop) Pending() bool { return len(l.queue) > 0 || len(l.timers) > 0 }

// Stop requests the drain in flight (at every nesting level) to exit on
// its next iteration. In-flight callables are not cancelled.
func (l *Loop) Stop() { l.stopReq = true }

// Step advances the loop once: every due timer moves to the task queue,
// then at most one task runs. Running one task per step (rather than a
// whole-queue drain) lets RunUntil re-check its predicate between
// individual tasks. When no work is ready but unready timers remain, the
// thread sleeps ~1 ms.
func (l *Loop) Step() {
	now := time.Now()
	var keep []Timer
	for _, t := range l.timers {
		if !t.Deadline.After(now) {
			l.log.Debugf("eventloop: timer %d due", t.ID)
			l.queue = append(l.queue, Task{ID: t.ID, Data: t.Data})
		} else {
			keep = append(keep, t)
		}
	}
	l.timers = keep
	if len(l.queue) > 0 {
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.log.Debugf("eventloop: running task %d", task.ID)
		task.Data()
		return
	}
	if len(l.timers) > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Run drains the loop until no task or timer remains or Stop is called.
func (l *Loop) Run() {
	defer l.leaveDrain()
	l.depth++
	for !l.stopReq && l.Pending() {
		l.Step()
	}
}

// RunUntil drains the loop until pred returns true, nothing remains, or
// Stop is called — this is how await blocks logical progress on a
// future's readiness bit without spinning a real OS thread.
func (l *Loop) RunUntil(pred func() bool) {
	defer l.leaveDrain()
	l.depth++
	for !l.stopReq && !pred() && l.Pending() {
		l.Step()
	}
}

// leaveDrain unwinds one drain level; the stop request is consumed only
// once the outermost drain has exited, so a Stop raised inside a nested
// await unwinds every level before the loop becomes runnable again.
func (l *Loop) leaveDrain() {
	l.depth--
	if l.depth == 0 {
		l.stopReq = false
	}
}
