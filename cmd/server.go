package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"gogreen/config"
	"gogreen/web"
)

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the HTTP and websocket server together with the credit reconciler.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			if err := web.Serve(cfg); err != nil {
				log.Fatalf("Server stopped: %v", err)
			}
		},
	}

	cmd.Flags().Bool("dev", true, "Run in development mode")
	cmd.Flags().String("port", "8080", "Port to run the web server on")
	cmd.Flags().String("mq", "go_chan", "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")
	cmd.Flags().String("store", "memory", "Store mode (memory, postgres, redis, mongo)")
	cmd.Flags().String("config", "", "Path to a YAML config file")

	return cmd
}
