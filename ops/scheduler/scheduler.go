// Package scheduler admits operations according to their conflict rules.
//
// An operation is dispatched immediately, on its own goroutine, when its rule
// conflicts with nothing running and with nothing already waiting. Otherwise it
// waits in a FIFO queue. Each time an operation ends the queue is scanned in
// order and every operation that has become eligible is dispatched. Because
// a newcomer also yields to earlier queued conflicting work, a queued
// target-wide refresh can't be starved by a stream of newer app operations.
//
// Operations on unrelated resources run in parallel with no ordering guarantees.
// The scheduler never interprets errors and never retries.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bootdash/cloudops/common"
	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/common/stats"
	"github.com/bootdash/cloudops/ops"
)

const DefaultHistorySize = 1000

var ErrClosed = errors.New("scheduler is closed")

// Scheduler configuration
// HistorySize - number of finished operations kept for Status lookups.
// VerifyInvariants - re-check the running set on every dispatch and panic
//                    with a SchedulingConflict error if two conflicting
//                    operations would ever run together. Meant for tests.
type Config struct {
	HistorySize      int
	VerifyInvariants bool
}

// Status is a point-in-time view of one operation.
type Status struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rule      string    `json:"rule"`
	State     ops.State `json:"-"`
	StateName string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Submitted time.Time `json:"submitted"`
	Started   time.Time `json:"started,omitempty"`
	Finished  time.Time `json:"finished,omitempty"`
}

type entry struct {
	op        *ops.Operation
	submitted time.Time
	started   time.Time
	done      chan struct{} // closed once the scheduler is through with op
}

func (e *entry) status() Status {
	st := Status{
		ID:        e.op.ID(),
		Name:      e.op.Name(),
		Rule:      e.op.Rule().String(),
		State:     e.op.State(),
		Submitted: e.submitted,
		Started:   e.started,
	}
	st.StateName = st.State.String()
	return st
}

type Scheduler struct {
	config Config
	obs    ops.Observer
	stat   stats.StatsReceiver

	// Guards running, queue, finishing and closed. Never held while an
	// operation body or an observer runs.
	mu      sync.Mutex
	running map[string]*entry
	queue   []*entry
	closed  bool
	// Left running or queue but not yet in history.
	finishing map[string]*entry

	history *lru.Cache
	pending sync.WaitGroup // one per submitted op until it ends
}

// New returns a ready Scheduler. obs and stat may be nil.
func New(config Config, obs ops.Observer, stat stats.StatsReceiver) *Scheduler {
	if obs == nil {
		obs = ops.NopObserver()
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}
	history, err := lru.New(config.HistorySize)
	if err != nil {
		panic(err) // only for size <= 0
	}
	return &Scheduler{
		config:  config,
		obs:     obs,
		stat:    stat,
		running:   make(map[string]*entry),
		finishing: make(map[string]*entry),
		history:   history,
	}
}

// Submit hands op to the scheduler and returns without waiting for it.
func (s *Scheduler) Submit(op *ops.Operation) (*Handle, error) {
	s.stat.Counter(stats.OpSubmittedCounter).Inc(1)
	if op.State() != ops.PENDING {
		return nil, errors.Errorf("can't submit %s in state %s", op, op.State())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.stat.Counter(stats.OpRejectedCounter).Inc(1)
		return nil, ErrClosed
	}
	if s.findLocked(op.ID()) != nil {
		return nil, errors.Errorf("%s already submitted", op)
	}

	e := &entry{op: op, submitted: time.Now(), done: make(chan struct{})}
	s.pending.Add(1)
	if s.admissibleLocked(op.Rule(), len(s.queue)) {
		s.dispatchLocked(e)
	} else {
		log.WithFields(log.Fields{
			"op":      op.String(),
			"queued":  len(s.queue) + 1,
			"running": len(s.running),
		}).Info("Operation conflicts with in-flight work, queueing")
		s.queue = append(s.queue, e)
		s.stat.Counter(stats.OpQueuedCounter).Inc(1)
	}
	s.updateGaugesLocked()
	return &Handle{id: op.ID(), op: op, done: e.done, s: s}, nil
}

// RunSync submits op and waits for it to end or for ctx to be done.
func (s *Scheduler) RunSync(ctx context.Context, op *ops.Operation) error {
	h, err := s.Submit(op)
	if err != nil {
		return err
	}
	return h.Wait(ctx)
}

// Cancel requests cancellation of the operation with the given id.
// A queued operation is removed and ends as CANCELLED right away; a running
// one has its token cancelled and stops at its next checkpoint.
// Returns false if the id is unknown or already finished.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	for i, e := range s.queue {
		if e.op.ID() != id {
			continue
		}
		s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
		s.finishing[id] = e
		// Whatever waited behind it may be eligible now.
		s.admitQueuedLocked()
		s.updateGaugesLocked()
		s.mu.Unlock()

		e.op.CancelPending(s.obs)
		s.finished(e)
		return true
	}
	e, ok := s.running[id]
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.op.Cancel()
	return true
}

// CancelAll cancels every queued and running operation.
func (s *Scheduler) CancelAll() {
	for _, st := range s.Snapshot() {
		s.Cancel(st.ID)
	}
}

// Status finds the operation by id among running, queued and recently finished ones.
func (s *Scheduler) Status(id string) (Status, bool) {
	s.mu.Lock()
	e := s.findLocked(id)
	s.mu.Unlock()
	if e != nil {
		return e.status(), true
	}
	if st, ok := s.history.Get(id); ok {
		return st.(Status), true
	}
	return Status{}, false
}

// Snapshot lists running operations, then queued ones in queue order.
func (s *Scheduler) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.running)+len(s.queue))
	for _, e := range s.running {
		out = append(out, e.status())
	}
	for _, e := range s.queue {
		out = append(out, e.status())
	}
	return out
}

// History lists recently finished operations, oldest first.
func (s *Scheduler) History() []Status {
	keys := s.history.Keys()
	out := make([]Status, 0, len(keys))
	for _, k := range keys {
		if st, ok := s.history.Peek(k); ok {
			out = append(out, st.(Status))
		}
	}
	return out
}

// Close rejects further submissions and blocks until every running and
// queued operation has ended. It does not cancel anything.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()
}

func (s *Scheduler) findLocked(id string) *entry {
	if e, ok := s.running[id]; ok {
		return e
	}
	if e, ok := s.finishing[id]; ok {
		return e
	}
	for _, e := range s.queue {
		if e.op.ID() == id {
			return e
		}
	}
	return nil
}

// admissibleLocked is true when rule conflicts with no running operation and
// with none of the first ahead queued operations.
func (s *Scheduler) admissibleLocked(rule *ops.Rule, ahead int) bool {
	if rule == nil {
		return true
	}
	for _, e := range s.running {
		if rule.ConflictsWith(e.op.Rule()) {
			return false
		}
	}
	for _, e := range s.queue[:ahead] {
		if rule.ConflictsWith(e.op.Rule()) {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatchLocked(e *entry) {
	if s.config.VerifyInvariants {
		s.verifyLocked(e)
	}
	e.started = time.Now()
	s.running[e.op.ID()] = e
	s.stat.Counter(stats.OpAdmittedCounter).Inc(1)
	s.stat.Latency(stats.OpQueueWaitLatency_ms).Record(e.started.Sub(e.submitted))
	log.WithFields(log.Fields{
		"op":      e.op.String(),
		"running": len(s.running),
	}).Debug("Dispatching operation")
	go s.run(e)
}

// admitQueuedLocked scans the queue once, in order. An entry is dispatched
// only if it conflicts with nothing running and nothing still queued ahead
// of it, which keeps admission FIFO within each conflict group.
func (s *Scheduler) admitQueuedLocked() {
	kept := make([]*entry, 0, len(s.queue))
	for _, e := range s.queue {
		if s.admissibleRunningLocked(e.op.Rule()) && !conflictsWithAny(e.op.Rule(), kept) {
			s.dispatchLocked(e)
		} else {
			kept = append(kept, e)
		}
	}
	s.queue = kept
}

func (s *Scheduler) admissibleRunningLocked(rule *ops.Rule) bool {
	for _, e := range s.running {
		if rule.ConflictsWith(e.op.Rule()) {
			return false
		}
	}
	return true
}

func conflictsWithAny(rule *ops.Rule, entries []*entry) bool {
	for _, e := range entries {
		if rule.ConflictsWith(e.op.Rule()) {
			return true
		}
	}
	return false
}

func (s *Scheduler) verifyLocked(e *entry) {
	for _, other := range s.running {
		if e.op.Rule().ConflictsWith(other.op.Rule()) {
			panic(opserrors.NewSchedulingConflict("%s dispatched while %s is running\n%s",
				e.op, other.op, spew.Sdump(s.runningRulesLocked())))
		}
	}
}

func (s *Scheduler) runningRulesLocked() map[string]string {
	rules := make(map[string]string, len(s.running))
	for id, e := range s.running {
		rules[common.ShortID(id)] = fmt.Sprintf("%s %s", e.op.Name(), e.op.Rule())
	}
	return rules
}

func (s *Scheduler) run(e *entry) {
	start := time.Now()
	err := e.op.Run(context.Background(), s.obs)
	s.stat.Latency(stats.OpRunLatency_ms).Record(time.Since(start))

	// Observers report outcomes; this line is bookkeeping only.
	log.WithFields(log.Fields{
		"op":    e.op.String(),
		"state": e.op.State(),
		"err":   err,
	}).Debug("Operation ended")

	s.mu.Lock()
	delete(s.running, e.op.ID())
	s.finishing[e.op.ID()] = e
	s.admitQueuedLocked()
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.finished(e)
}

// finished records an ended entry. Called without the lock.
func (s *Scheduler) finished(e *entry) {
	switch e.op.State() {
	case ops.SUCCEEDED:
		s.stat.Counter(stats.OpSucceededCounter).Inc(1)
	case ops.FAILED:
		s.stat.Counter(stats.OpFailedCounter).Inc(1)
	case ops.CANCELLED:
		s.stat.Counter(stats.OpCancelledCounter).Inc(1)
	}
	st := e.status()
	st.Finished = time.Now()
	if err := e.op.Err(); err != nil {
		st.Error = opserrors.Message(err)
	}
	s.mu.Lock()
	s.history.Add(st.ID, st)
	delete(s.finishing, st.ID)
	s.mu.Unlock()
	close(e.done)
	s.pending.Done()
}

func (s *Scheduler) updateGaugesLocked() {
	s.stat.Gauge(stats.OpRunningGauge).Update(int64(len(s.running)))
	s.stat.Gauge(stats.OpQueuedGauge).Update(int64(len(s.queue)))
}
