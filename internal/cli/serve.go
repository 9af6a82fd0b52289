package cli

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/comigor/mentor-go/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mentor over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := a.newAgent()
			if err != nil {
				return err
			}
			defer ag.Store().Close()

			addr := net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port)
			return server.Run(cmd.Context(), addr, server.New(ag))
		},
	}
	cmd.Flags().String("host", "", "listen host")
	cmd.Flags().String("port", "", "listen port")
	_ = a.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}
