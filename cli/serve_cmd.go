package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	opserrors "github.com/bootdash/cloudops/common/errors"
)

type serveCmd struct {
	refreshInterval time.Duration
}

func (c *serveCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "serve",
		Short: "Serves admin endpoints and refreshes the target until interrupted",
	}
	r.Flags().DurationVar(&c.refreshInterval, "refresh_interval", 30*time.Second, "how often to refresh the target, 0 refreshes once")
	return r
}

func (c *serveCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.serve(ctx, cl)
}

func (c *serveCmd) serve(ctx context.Context, cl *CLI) error {
	comps, err := cl.load()
	if err != nil {
		return err
	}
	defer comps.Close()
	if comps.Server == nil {
		return opserrors.NewExitCodeError(errors.New("no admin address configured"), opserrors.ConfigFailureExitCode)
	}
	ln, err := net.Listen("tcp", comps.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", comps.Server.Addr)
	}
	defer ln.Close()
	go comps.Server.ServeListener(ln)

	var tick <-chan time.Time
	if c.refreshInterval > 0 {
		ticker := time.NewTicker(c.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		if _, err := comps.Scheduler.Submit(comps.Target.Refresh()); err != nil {
			return err
		}
		select {
		case <-tick:
		case <-ctx.Done():
			log.Info("Shutting down")
			comps.Scheduler.CancelAll()
			return nil
		}
	}
}
