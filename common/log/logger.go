// Package log configures the process-wide logrus logger.
package log

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bootdash/cloudops/common/log/hooks"
)

// LevelEnv, when set, overrides the level passed to Init.
const LevelEnv = "COPS_LOGLEVEL"

// Init sets the standard logger level and installs the file:line hook.
// An unparseable level is an error and leaves the logger untouched.
func Init(levelName string) error {
	if env := os.Getenv(LevelEnv); env != "" {
		levelName = env
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return errors.Wrapf(err, "bad log level %q", levelName)
	}
	logrus.SetLevel(level)
	logrus.AddHook(hooks.NewContextHook())
	return nil
}

// InitFromEnv is the test-binary variant: it only touches the logger when
// LevelEnv is set, so `go test` stays quiet by default.
func InitFromEnv() {
	if env := os.Getenv(LevelEnv); env != "" {
		if level, err := logrus.ParseLevel(env); err == nil {
			logrus.SetLevel(level)
			logrus.AddHook(hooks.NewContextHook())
		}
	}
}
