package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	voicemux "github.com/voicemux/voicemux-go-bridge"
	"github.com/voicemux/voicemux-go-bridge/credstore"
)

func runCmd() *cobra.Command {
	var (
		endpoint    string
		dbPath      string
		metricsAddr string
		keepalive   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon",
		Long: `Connects to the relay with the stored credentials and prints decoded
events. If no credentials are stored yet, the daemon idles until a
pairing sync arrives.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var metrics *voicemux.Metrics
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				metrics = voicemux.NewMetrics(reg)
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						log.Error("metrics server failed", "error", err)
					}
				}()
				log.Info("metrics listening", "addr", metricsAddr)
			}

			sink := voicemux.DispatcherFunc(func(ev voicemux.Event) {
				switch ev.Kind {
				case voicemux.KindLog:
					log.Debug("relay", "msg", ev.Text)
				case voicemux.KindRemoteCommand:
					log.Info("event", "kind", ev.Kind, "action", ev.Action, "text", ev.Text)
				case voicemux.KindJoinError:
					log.Warn("event", "kind", ev.Kind, "reason", ev.Reason)
				default:
					log.Info("event", "kind", ev.Kind, "text", ev.Text, "sender", ev.SenderID)
				}
			})

			bridge := voicemux.New(voicemux.Config{
				Endpoint: endpoint,
				Logger:   log,
				Metrics:  metrics,
			}, store, sink)
			defer bridge.Close()

			bridge.Connect()

			// Keepalive: host runtimes suspend background timers, so an
			// external periodic check re-establishes dropped sessions.
			ticker := time.NewTicker(keepalive)
			defer ticker.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case <-ticker.C:
					bridge.Check()
				case s := <-sig:
					log.Info("shutting down", "signal", s.String())
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", envOr("VOICEMUX_ENDPOINT", "wss://v.knc.jp/socket/websocket"), "relay websocket URL")
	cmd.Flags().StringVar(&dbPath, "db", envOr("VOICEMUX_DB", ""), "credential database path (default ~/.voicemux/bridge.db)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", envOr("VOICEMUX_METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&keepalive, "keepalive", time.Minute, "interval for the reconnect check")

	return cmd
}

func openStore(path string) (*credstore.BoltStore, error) {
	if path == "" {
		var err error
		path, err = credstore.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	return credstore.OpenBolt(path)
}
