package hooks

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

const fileLineKey = "file:line"

type contextHook struct {
	trimPrefix string
}

// NewContextHook returns a logrus hook that tags each entry with the
// file:line of the first caller outside logrus and this package.
// Paths are shortened to the part after "cloudops/".
func NewContextHook() log.Hook {
	return contextHook{trimPrefix: "cloudops/"}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame.Function) {
			entry.Data[fileLineKey] = hook.shorten(frame.File, frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func (hook contextHook) shorten(file string, line int) string {
	if i := strings.LastIndex(file, hook.trimPrefix); i >= 0 {
		file = file[i+len(hook.trimPrefix):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func isLoggingFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "hooks.contextHook")
}
