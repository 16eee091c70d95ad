package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/tunnel"
)

// CodeEnv supplies the one-time SSH code when --code is not given.
const CodeEnv = "CLOUDOPS_SSH_CODE"

type tunnelCmd struct {
	params     tunnel.SessionParams
	remotePort int
	localPort  int
}

func (c *tunnelCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "tunnel [host]",
		Short: "Forwards a local port to a port on the far side of an SSH session",
		Args:  cobra.ExactArgs(1),
	}
	r.Flags().IntVar(&c.params.Port, "port", tunnel.DefaultSSHPort, "ssh port")
	r.Flags().StringVar(&c.params.User, "user", "", "ssh user")
	r.Flags().StringVar(&c.params.Code, "code", "", "one-time code, defaults to $"+CodeEnv)
	r.Flags().StringVar(&c.params.Fingerprint, "fingerprint", "", "expected host key fingerprint")
	r.Flags().StringVar(&c.params.ProxyAddr, "proxy", "", "SOCKS5 proxy host:port")
	r.Flags().IntVar(&c.remotePort, "remote_port", 0, "port to reach on the remote side")
	r.Flags().IntVar(&c.localPort, "local_port", 0, "local port, 0 picks a free one")
	return r
}

func (c *tunnelCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	c.params.Host = args[0]
	if c.params.Code == "" {
		c.params.Code = os.Getenv(CodeEnv)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := cl.load()
	if err != nil {
		return err
	}
	defer comps.Close()
	return c.hold(ctx, comps.Tunnels, func(port int) {
		fmt.Fprintf(cmd.OutOrStdout(), "forwarding localhost:%d -> %s port %d\n", port, c.params.Host, c.remotePort)
	})
}

// hold opens the tunnel and keeps it until ctx ends or the session drops.
func (c *tunnelCmd) hold(ctx context.Context, tunnels *tunnel.Manager, opened func(port int)) error {
	tun, err := tunnels.Open(c.params.Host, c.params, c.remotePort, c.localPort)
	if err != nil {
		return opserrors.Classify(err)
	}
	opened(tun.LocalPort())
	select {
	case <-ctx.Done():
		log.Info("Closing tunnel")
		tun.Dispose()
		return nil
	case <-tun.Done():
		return opserrors.AsTransient(errors.New("ssh session lost"))
	}
}
