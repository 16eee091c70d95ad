package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/ops/scheduler"
)

const defaultHttpTries = 3

type statusCmd struct {
	addr  string
	tries int
}

func (c *statusCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "status",
		Short: "Lists active and recently finished operations of a running server",
	}
	r.Flags().StringVar(&c.addr, "addr", "localhost:9191", "admin server address")
	r.Flags().IntVar(&c.tries, "tries", defaultHttpTries, "http attempts, with exponential backoff")
	return r
}

func makePesterClient(tries int) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = tries
	client.LogHook = func(e pester.ErrEntry) {
		log.Debugf("Retrying after failed attempt: %+v", e)
	}
	return client
}

func (c *statusCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/admin/operations", c.addr)
	resp, err := makePesterClient(c.tries).Get(url)
	if err != nil {
		return opserrors.AsTransient(errors.Wrapf(err, "fetching %s", url))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %s: %s", url, resp.Status)
	}

	var view map[string][]scheduler.Status
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return errors.Wrapf(err, "decoding %s", url)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Active:")
	printStatuses(out, view["active"])
	fmt.Fprintln(out, "Finished:")
	printStatuses(out, view["finished"])
	return nil
}
