package dgsched

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/romshark/dgsched/internal/queue"

	"github.com/segmentio/ksuid"
)

type (
	Time     = time.Time
	Duration = time.Duration
)

const (
	Nanosecond  = time.Nanosecond
	Microsecond = time.Microsecond
	Millisecond = time.Millisecond
	Second      = time.Second
	Minute      = time.Minute
	Hour        = time.Hour
)

type Timer interface {
	Stop() bool
	Reset(Duration) bool
}

type TimeProvider interface {
	Now() Time
	AfterFunc(Duration, func()) Timer
}

// PacketSender transmits a single datagram.
// Delivery is best-effort, implementations must not retry.
// Send is called on the worker goroutine for queued tasks
// and must not call Scheduler.Shutdown.
type PacketSender interface {
	Send(dst netip.AddrPort, payload []byte) error
}

// TaskID identifies a periodic task.
// Zero is reserved for one-shot tasks which can't be canceled.
type TaskID uint64

// Ref is a unique reference to a queued task.
type Ref ksuid.KSUID

// String returns the stringified reference.
func (r Ref) String() string {
	return ksuid.KSUID(r).String()
}

// Created returns the time the task was scheduled at.
func (r Ref) Created() Time {
	return ksuid.KSUID(r).Time()
}

// Task is a snapshot of a queued task.
type Task struct {
	Ref         Ref
	ID          TaskID
	Due         Time
	Interval    Duration
	Destination netip.AddrPort
	Payload     []byte
}

// Periodic returns true for tasks that are requeued after each dispatch.
func (t Task) Periodic() bool { return t.Interval > 0 }

// task is the queued task descriptor.
type task struct {
	ID          TaskID
	Interval    Duration
	Destination netip.AddrPort
	Payload     []byte
}

// New creates a new scheduler dispatching through sender
// and starts its worker goroutine.
// Shutdown must be called to stop the worker.
func New(sender PacketSender, opts ...Option) *Scheduler {
	if sender == nil {
		panic("dgsched: nil packet sender")
	}
	s := &Scheduler{
		provider: timeProvider{},
		sender:   sender,
		log:      slog.Default(),
		queue:    queue.New[task](),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

// Scheduler is a datagram scheduler.
type Scheduler struct {
	provider TimeProvider
	sender   PacketSender
	log      *slog.Logger
	onError  func(*SendError)
	ids      atomic.Uint64
	closed   atomic.Bool

	lock       sync.RWMutex
	timeOffset Duration
	queue      *queue.Queue[task]
	inFlight   struct {
		ID       TaskID
		Canceled bool
	}

	wake         chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once
}

// SendNow sends payload to dst synchronously on the calling goroutine
// bypassing the queue and returns the outcome of the send.
func (s *Scheduler) SendNow(dst netip.AddrPort, payload []byte) error {
	if s.closed.Load() {
		return ErrShutdown
	}
	if err := validateDestination(dst); err != nil {
		return err
	}
	return s.sender.Send(dst, payload)
}

// SendAfter schedules payload to be sent to dst once after the given delay.
// A zero delay makes the task due immediately.
// The returned Ref can be used for inspection, one-shot tasks can't be canceled.
func (s *Scheduler) SendAfter(
	delay Duration,
	dst netip.AddrPort,
	payload []byte,
) (Ref, error) {
	if delay < 0 {
		return Ref{}, fmt.Errorf("%w: negative delay %s", ErrInvalidArgument, delay)
	}
	if err := validateDestination(dst); err != nil {
		return Ref{}, err
	}
	return s.enqueue(delay, task{
		Destination: dst,
		Payload:     bytes.Clone(payload),
	})
}

// SendPeriodic schedules payload to be sent to dst every interval,
// starting one interval from now, until canceled with CancelPeriodic.
func (s *Scheduler) SendPeriodic(
	interval Duration,
	dst netip.AddrPort,
	payload []byte,
) (TaskID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%w: non-positive interval %s", ErrInvalidArgument, interval)
	}
	if err := validateDestination(dst); err != nil {
		return 0, err
	}
	id := TaskID(s.ids.Add(1))
	if _, err := s.enqueue(interval, task{
		ID:          id,
		Interval:    interval,
		Destination: dst,
		Payload:     bytes.Clone(payload),
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// CancelPeriodic removes the periodic task id from the queue
// and returns true if it was either queued or being dispatched.
// A dispatch already in progress isn't interrupted
// but the task won't be requeued.
// Returns false if no such task is pending.
func (s *Scheduler) CancelPeriodic(id TaskID) bool {
	if id == 0 {
		return false
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	removed := s.queue.RemoveFunc(func(e queue.Entry[task]) bool {
		return e.Value.ID == id
	})
	if s.inFlight.ID == id && !s.inFlight.Canceled {
		s.inFlight.Canceled = true
		removed++
	}
	if removed > 0 {
		s.log.Debug("periodic task canceled", slog.Uint64("task_id", uint64(id)))
	}
	return removed > 0
}

// Shutdown stops the worker and discards all pending tasks.
// A dispatch in progress is completed first and Shutdown blocks until
// it returns, so it must not be called from PacketSender.Send or
// the error handler, which run on the worker goroutine.
// Subsequent calls are no-ops.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.lock.Lock()
		s.closed.Store(true)
		dropped := s.queue.Clear()
		s.lock.Unlock()

		s.notify()
		<-s.stopped

		s.log.Info("scheduler shut down", slog.Int("dropped", dropped))
	})
}

// Now returns the current time of the scheduler considering the offset.
func (s *Scheduler) Now() Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.now()
}

// AdvanceTime advances the current time by the given duration.
// Tasks that become due are dispatched by the worker.
func (s *Scheduler) AdvanceTime(by Duration) (newOffset Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.timeOffset += by
	s.notify()
	return s.timeOffset
}

// AdvanceToNext advances the current time to the due time of the next task
// making it due immediately. Does nothing if no tasks are pending.
func (s *Scheduler) AdvanceToNext() (newOffset, advancedBy Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	front, ok := s.queue.Front()
	if !ok {
		return s.timeOffset, 0
	}

	if by := front.Due.Sub(s.now()); by > 0 {
		advancedBy = by
		s.timeOffset += by
	}
	s.notify()
	return s.timeOffset, advancedBy
}

// Offset returns the scheduler's time offset.
func (s *Scheduler) Offset() Duration {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.timeOffset
}

// Len returns the length of the queue (number of pending tasks).
func (s *Scheduler) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.queue.Len()
}

// Has returns true if the task referenced by ref is queued.
func (s *Scheduler) Has(ref Ref) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.queue.Has(ksuid.KSUID(ref))
}

// Scan scans all tasks after the given task in fire order executing fn
// for each until either the end of the queue is reached or fn returns false.
// Starts from the front of the queue if after is zero.
// Returns false if after doesn't exist, otherwise returns true.
func (s *Scheduler) Scan(after Ref, fn func(Task) bool) (ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.queue.Scan(
		ksuid.KSUID(after),
		func(e queue.Entry[task]) bool {
			return fn(Task{
				Ref:         Ref(e.Ref),
				ID:          e.Value.ID,
				Due:         e.Due,
				Interval:    e.Value.Interval,
				Destination: e.Value.Destination,
				Payload:     bytes.Clone(e.Value.Payload),
			})
		},
	)
}

func (s *Scheduler) enqueue(in Duration, t task) (Ref, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed.Load() {
		return Ref{}, ErrShutdown
	}

	now := s.now()
	ref, err := newRef(now)
	if err != nil {
		return Ref{}, fmt.Errorf("generating unique KSUID: %w", err)
	}
	if s.queue.Has(ksuid.KSUID(ref)) {
		return Ref{}, fmt.Errorf("identifier collision: %s", ref)
	}

	due := now.Add(in)
	if s.queue.Push(ksuid.KSUID(ref), due, t) {
		// New earliest deadline
		s.notify()
	}

	s.log.Debug("task scheduled",
		slog.String("task_ref", ref.String()),
		slog.Uint64("task_id", uint64(t.ID)),
		slog.String("destination", t.Destination.String()),
		slog.Duration("in", in),
		slog.Duration("interval", t.Interval),
	)
	return ref, nil
}

// run is the worker loop, the only consumer of the queue.
// It waits for the earliest deadline, dispatches due tasks
// and requeues periodic ones until the scheduler is shut down.
func (s *Scheduler) run() {
	defer close(s.stopped)

	var timer Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		s.lock.Lock()
		if s.closed.Load() {
			s.lock.Unlock()
			return
		}

		now := s.now()
		next, ok := s.queue.Front()
		if !ok {
			// Idle until something is enqueued
			s.lock.Unlock()
			stopTimer()
			<-s.wake
			continue
		}

		if d := next.Due.Sub(now); d > 0 {
			// Wait for the deadline or an earlier task
			s.lock.Unlock()
			if timer == nil {
				timer = s.provider.AfterFunc(d, s.notify)
			} else {
				timer.Reset(d)
			}
			<-s.wake
			continue
		}

		s.queue.Pop()
		s.inFlight.ID, s.inFlight.Canceled = next.Value.ID, false
		s.lock.Unlock()

		s.dispatch(next)

		if next.Value.Interval < 1 {
			continue
		}

		s.lock.Lock()
		if !s.closed.Load() && !s.inFlight.Canceled {
			s.queue.Push(next.Ref, now.Add(next.Value.Interval), next.Value)
		}
		s.inFlight.ID, s.inFlight.Canceled = 0, false
		s.lock.Unlock()
	}
}

// dispatch sends the task's payload reporting failures without retrying.
func (s *Scheduler) dispatch(e queue.Entry[task]) {
	err := s.sender.Send(e.Value.Destination, e.Value.Payload)
	if err == nil {
		s.log.Debug("task dispatched",
			slog.String("task_ref", e.Ref.String()),
			slog.Uint64("task_id", uint64(e.Value.ID)),
		)
		return
	}

	sendErr := &SendError{
		Ref:         Ref(e.Ref),
		ID:          e.Value.ID,
		Destination: e.Value.Destination,
		Err:         err,
	}
	s.log.Error("error sending task",
		slog.String("task_ref", e.Ref.String()),
		slog.Uint64("task_id", uint64(e.Value.ID)),
		slog.String("destination", e.Value.Destination.String()),
		slog.Any("error", err),
	)
	if s.onError != nil {
		s.onError(sendErr)
	}
}

// notify wakes the worker without blocking.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// now returns the current time considering the offset.
func (s *Scheduler) now() Time {
	return s.provider.Now().Add(s.timeOffset)
}

// newRef generates a new unique task reference.
func newRef(tm Time) (Ref, error) {
	k, err := ksuid.NewRandomWithTime(tm)
	if err != nil {
		return Ref{}, err
	}
	return Ref(k), nil
}
