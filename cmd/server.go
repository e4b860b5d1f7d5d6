package cmd

import (
	"github.com/Tautulli/Tautulli-sub004/config"
	server2 "github.com/Tautulli/Tautulli-sub004/server"
	"github.com/spf13/cobra"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the activity monitor and http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.Run(config)
		},
	}
}
