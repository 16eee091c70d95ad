// Package tags holds the logrus fields attached to every operation log line.
package tags

import (
	log "github.com/sirupsen/logrus"
)

const (
	OpID   = "opID"
	OpName = "op"
	Target = "target"
	App    = "app"
	Rule   = "rule"
	State  = "state"
)

// OpTags identifies an operation in logs.
type OpTags struct {
	ID     string
	Name   string
	Target string
	App    string
}

func (t OpTags) Fields() log.Fields {
	f := log.Fields{OpID: t.ID, OpName: t.Name}
	if t.Target != "" {
		f[Target] = t.Target
	}
	if t.App != "" {
		f[App] = t.App
	}
	return f
}

// Entry is shorthand for log.WithFields(t.Fields()).
func (t OpTags) Entry() *log.Entry {
	return log.WithFields(t.Fields())
}
