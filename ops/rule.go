package ops

import (
	"fmt"
)

// RuleKind is the resource scope an operation declares.
type RuleKind int

const (
	// The whole target, e.g. a refresh of every app on it.
	TargetWide RuleKind = iota
	// Starting (deploy, start, restart, debug) one app.
	AppStart
	// Stopping one app.
	AppStop
)

func (k RuleKind) String() string {
	switch k {
	case TargetWide:
		return "target"
	case AppStart:
		return "start"
	case AppStop:
		return "stop"
	default:
		panic(fmt.Sprintf("Unknown RuleKind %d", int(k)))
	}
}

// Rule is an immutable conflict scope. A nil *Rule means unconstrained.
//
// Two rules conflict iff they name the same target and either one is
// TargetWide or both have the same kind and app. A start and a stop of the
// same app do not conflict and may run concurrently.
type Rule struct {
	Target string
	App    string
	Kind   RuleKind
}

func TargetRule(target string) *Rule {
	return &Rule{Target: target, Kind: TargetWide}
}

func StartRule(target, app string) *Rule {
	return &Rule{Target: target, App: app, Kind: AppStart}
}

func StopRule(target, app string) *Rule {
	return &Rule{Target: target, App: app, Kind: AppStop}
}

// ConflictsWith is symmetric and side effect free.
func (r *Rule) ConflictsWith(other *Rule) bool {
	if r == nil || other == nil {
		return false
	}
	if r.Target != other.Target {
		return false
	}
	if r.Kind == TargetWide || other.Kind == TargetWide {
		return true
	}
	return r.Kind == other.Kind && r.App == other.App
}

func (r *Rule) String() string {
	if r == nil {
		return "none"
	}
	if r.Kind == TargetWide {
		return fmt.Sprintf("%s(%s)", r.Kind, r.Target)
	}
	return fmt.Sprintf("%s(%s/%s)", r.Kind, r.Target, r.App)
}
