package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicemux/voicemux-go-bridge/relay"
)

func relayCmd() *cobra.Command {
	var (
		addr  string
		token string
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a local development relay",
		Long: `Serves a minimal relay speaking the bridge wire protocol. Useful for
developing against the bridge without the hosted relay. If --token is
set, joins with any other token are rejected as unauthorized.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			opts := relay.Options{Logger: log}
			if token != "" {
				opts.Authorize = func(t string) bool { return t == token }
			}
			r := relay.New(opts)

			mux := http.NewServeMux()
			mux.Handle("/socket/websocket", r.Handler())

			log.Info("relay listening", "addr", addr)
			return http.ListenAndServe(addr, mux)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("VOICEMUX_RELAY_ADDR", ":4000"), "listen address")
	cmd.Flags().StringVar(&token, "token", "", "require this bearer token on joins")

	return cmd
}
