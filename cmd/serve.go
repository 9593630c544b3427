package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/devserver"
)

func serveCmd() *cobra.Command {
	var (
		listen string
		ttl    int
		rpm    int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory pairing service for local development",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				exitErr(err)
			}
			if !cmd.Flags().Changed("listen") {
				listen = cfg.DevServer.Listen
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.DevServer.TTLSeconds
			}
			if !cmd.Flags().Changed("rate-limit") {
				rpm = cfg.DevServer.RateLimitRPM
			}

			srv := devserver.New(devserver.Options{
				TTL:          time.Duration(ttl) * time.Second,
				RateLimitRPM: rpm,
			})
			if err := srv.ListenAndServe(cmd.Context(), listen); err != nil {
				exitErr(err)
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8000", "address to listen on")
	cmd.Flags().IntVar(&ttl, "ttl", int(devserver.DefaultTTL/time.Second), "token lifetime in seconds")
	cmd.Flags().IntVar(&rpm, "rate-limit", 0, "requests per minute per client IP (0 disables)")
	return cmd
}
