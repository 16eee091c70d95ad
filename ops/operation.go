// Package ops defines the unit of work the scheduler runs: a named,
// cancellable Operation with an optional conflict Rule.
package ops

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/bootdash/cloudops/common"
	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/ops/cancel"
)

// Body is the work itself. It should call m.Checkpoint() before each remote
// call and inside loops; ctx is cancelled along with the operation's token.
type Body func(ctx context.Context, m *Monitor) error

// Translator maps errors escaping a Body into the error taxonomy.
type Translator func(error) error

type Option func(*Operation)

// WithToken shares a token with the caller, e.g. one from cancel.Tokens.
func WithToken(t *cancel.Token) Option {
	return func(o *Operation) { o.token = t }
}

// WithTranslator installs a domain error translator. Anything it leaves
// unclassified still goes through errors.Classify.
func WithTranslator(tr Translator) Option {
	return func(o *Operation) { o.translate = tr }
}

// WithMonitors adds external cancellation sources checked at every checkpoint.
func WithMonitors(ms ...cancel.Monitor) Option {
	return func(o *Operation) { o.monitors = append(o.monitors, ms...) }
}

// OnFinish runs fn once the operation reaches an end state, whether or not
// the body ever ran.
func OnFinish(fn func()) Option {
	return func(o *Operation) { o.onFinish = append(o.onFinish, fn) }
}

// Operation runs its Body at most once. State moves monotonically from
// PENDING to RUNNING to one end state, written only by the goroutine running it.
type Operation struct {
	id        string
	name      string
	rule      *Rule
	body      Body
	token     *cancel.Token
	translate Translator
	monitors  []cancel.Monitor
	onFinish  []func()

	state atomic.Int32
	err   error // written once before done is closed
	done  chan struct{}
}

func New(name string, rule *Rule, body Body, opts ...Option) *Operation {
	o := &Operation{
		id:        common.GenUUID(),
		name:      name,
		rule:      rule,
		body:      body,
		translate: opserrors.Classify,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == nil {
		o.token = cancel.New()
	}
	return o
}

func (o *Operation) ID() string           { return o.id }
func (o *Operation) Name() string         { return o.name }
func (o *Operation) Rule() *Rule          { return o.rule }
func (o *Operation) Token() *cancel.Token { return o.token }
func (o *Operation) State() State         { return State(o.state.Load()) }

// Done is closed after the end state is reached and observers were told.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err is the final error. Only meaningful once Done is closed.
func (o *Operation) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Cancel requests cooperative cancellation.
func (o *Operation) Cancel() { o.token.Cancel() }

func (o *Operation) Info() Info {
	return Info{ID: o.id, Name: o.name, Rule: o.rule}
}

func (o *Operation) String() string {
	return fmt.Sprintf("%s[%s %s]", o.name, common.ShortID(o.id), o.rule)
}

func (o *Operation) transition(from, to State) bool {
	if !validTransition(from, to) {
		return false
	}
	return o.state.CompareAndSwap(int32(from), int32(to))
}

// Run executes the body on the calling goroutine and returns its normalized
// error. It reports Started, any Progress, and exactly one Finished to obs;
// an operation already cancelled when Run is called is only reported as
// Finished. A second call returns an error without running anything.
func (o *Operation) Run(ctx context.Context, obs Observer) error {
	if obs == nil {
		obs = NopObserver()
	}
	if !o.transition(PENDING, RUNNING) {
		return errors.Errorf("operation %s already %s", o, o.State())
	}

	ctx, release := cancel.WithToken(ctx, o.token)
	defer release()
	sources := make([]cancel.Monitor, 0, len(o.monitors)+1)
	sources = append(sources, o.monitors...)
	sources = append(sources, cancel.FromContext(ctx))
	m := &Monitor{
		op:      o,
		ctx:     ctx,
		obs:     obs,
		sources: cancel.Merge(o.token, sources...),
	}

	err := m.Checkpoint()
	if err == nil {
		obs.Started(o.Info())
		err = o.body(ctx, m)
	}
	err = o.normalize(err)

	end := SUCCEEDED
	switch {
	case err == nil:
	case opserrors.IsCancelled(err):
		end = CANCELLED
	default:
		end = FAILED
	}
	o.finish(RUNNING, end, err, obs)
	return err
}

// CancelPending ends an operation that never ran. Returns false if it
// already left PENDING.
func (o *Operation) CancelPending(obs Observer) bool {
	o.token.Cancel()
	err := opserrors.NewCancelled("%s cancelled before it started", o.name)
	return o.finish(PENDING, CANCELLED, err, obs)
}

func (o *Operation) finish(from, to State, err error, obs Observer) bool {
	if !o.transition(from, to) {
		return false
	}
	o.err = err
	for _, fn := range o.onFinish {
		fn()
	}
	if obs != nil {
		obs.Finished(o.Info(), to, err)
	}
	close(o.done)
	return true
}

func (o *Operation) normalize(err error) error {
	if err == nil || opserrors.KindOf(err) != opserrors.Unknown {
		return err
	}
	if o.translate != nil {
		err = o.translate(err)
	}
	return opserrors.Classify(err)
}

// Monitor is handed to a running Body.
type Monitor struct {
	op      *Operation
	ctx     context.Context
	obs     Observer
	sources cancel.Monitor
}

// Checkpoint returns a Cancelled error if the token, the run context or any
// external monitor reports cancellation.
func (m *Monitor) Checkpoint() error {
	return cancel.Check(m.sources)
}

// IsCancelled lets a Monitor be passed to code that takes a cancel.Monitor.
func (m *Monitor) IsCancelled() bool {
	return m.sources.IsCancelled()
}

// Step reports progress to the observer.
func (m *Monitor) Step(format string, args ...interface{}) {
	m.obs.Progress(m.op.Info(), fmt.Sprintf(format, args...))
}

func (m *Monitor) Context() context.Context { return m.ctx }
func (m *Monitor) Token() *cancel.Token      { return m.op.token }
func (m *Monitor) Operation() *Operation     { return m.op }
