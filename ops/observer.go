package ops

//go:generate mockgen -source=observer.go -package=ops -destination=observer_mock.go

import (
	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/common/log/tags"
)

// Info identifies an operation to observers.
type Info struct {
	ID   string
	Name string
	Rule *Rule
}

func (i Info) Tags() tags.OpTags {
	t := tags.OpTags{ID: i.ID, Name: i.Name}
	if i.Rule != nil {
		t.Target = i.Rule.Target
		t.App = i.Rule.App
	}
	return t
}

// Observer receives progress reports. Calls arrive from arbitrary goroutines,
// implementations must be safe for concurrent use and must not block.
//
// Finished is called exactly once per operation. A cancelled operation is
// reported with state CANCELLED, never as FAILED.
type Observer interface {
	Started(info Info)
	Progress(info Info, msg string)
	Finished(info Info, state State, err error)
}

type nopObserver struct{}

func NopObserver() Observer { return nopObserver{} }

func (nopObserver) Started(Info)                {}
func (nopObserver) Progress(Info, string)       {}
func (nopObserver) Finished(Info, State, error) {}

type logObserver struct{}

// LogObserver writes every report to the standard logrus logger.
// Failures are logged at error level, cancellations at info.
func LogObserver() Observer { return logObserver{} }

func (logObserver) Started(info Info) {
	info.Tags().Entry().WithField(tags.Rule, info.Rule.String()).Info("Operation started")
}

func (logObserver) Progress(info Info, msg string) {
	info.Tags().Entry().Debug(msg)
}

func (logObserver) Finished(info Info, state State, err error) {
	entry := info.Tags().Entry().WithField(tags.State, state)
	switch state {
	case FAILED:
		entry.WithField("kind", opserrors.KindOf(err)).Errorf("Operation failed: %s", opserrors.Message(err))
	case CANCELLED:
		entry.Info("Operation cancelled")
	default:
		entry.Info("Operation finished")
	}
}

// Observers fans each report out to every member, in order.
type Observers []Observer

func (os Observers) Started(info Info) {
	for _, o := range os {
		o.Started(info)
	}
}

func (os Observers) Progress(info Info, msg string) {
	for _, o := range os {
		o.Progress(info, msg)
	}
}

func (os Observers) Finished(info Info, state State, err error) {
	for _, o := range os {
		o.Finished(info, state, err)
	}
}

var _ Observer = Observers(nil)
