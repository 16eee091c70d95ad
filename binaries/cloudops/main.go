package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/cli"
)

// CLI binary for cloudops
//	Supported commands: (see "-h" for all options)
//		demo
//		serve
//		tunnel [host]
//		status
//	Global flags:
//		--config [bundled config name or literal JSON]
//		--log_level [<error|info|debug> level and above should be logged]

func main() {
	if err := cli.NewCLI().Exec(); err != nil {
		log.Error("Error running cloudops: ", opserrors.Message(err))
		os.Exit(int(opserrors.ExitCodeOf(err)))
	}
}
