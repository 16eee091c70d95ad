package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bootdash/cloudops/common"
	"github.com/bootdash/cloudops/ops"
	"github.com/bootdash/cloudops/ops/scheduler"
	"github.com/bootdash/cloudops/platform"
)

type demoCmd struct {
	app       string
	instances int
	env       string
}

func (c *demoCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "demo",
		Short: "Runs a deploy/start/restart/stop scenario against the configured target",
	}
	r.Flags().StringVar(&c.app, "app", "app1", "app to operate on")
	r.Flags().IntVar(&c.instances, "instances", 2, "instances to deploy")
	r.Flags().StringVar(&c.env, "env", "", "app environment as k1=v1,k2=v2")
	return r
}

func (c *demoCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	comps, err := cl.load()
	if err != nil {
		return err
	}
	defer comps.Close()
	if comps.Server != nil {
		go func() {
			if err := comps.Server.Serve(); err != nil {
				log.Warnf("admin server stopped: %v", err)
			}
		}()
	}

	t := comps.Target
	sched := comps.Scheduler
	var handles []*scheduler.Handle
	phase := func(batch ...*ops.Operation) error {
		var first []*scheduler.Handle
		for _, op := range batch {
			h, err := sched.Submit(op)
			if err != nil {
				return err
			}
			first = append(first, h)
		}
		for _, h := range first {
			h.Wait(context.Background())
		}
		handles = append(handles, first...)
		return nil
	}

	// The restart supersedes the deploy and start submitted ahead of it.
	if err := phase(
		t.Refresh(),
		t.Deploy(platform.PushArgs{
			Name:      c.app,
			Instances: c.instances,
			Env:       common.SplitCommaSepToMap(c.env),
			NoStart:   true,
		}),
		t.Start(c.app),
		t.Restart(c.app),
		t.HealthCheck(c.app),
	); err != nil {
		return err
	}
	if err := phase(t.Stop(c.app), t.Refresh()); err != nil {
		return err
	}

	var statuses []scheduler.Status
	for _, h := range handles {
		if st, ok := h.Status(); ok {
			statuses = append(statuses, st)
		}
	}
	printStatuses(cmd.OutOrStdout(), statuses)
	for _, h := range handles {
		if h.State() == ops.FAILED {
			return errors.Wrapf(h.Err(), "%s", h.Name())
		}
	}
	return nil
}

func printStatuses(out io.Writer, statuses []scheduler.Status) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRULE\tSTATE\tERROR")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Name, st.Rule, st.StateName, st.Error)
	}
	w.Flush()
}
