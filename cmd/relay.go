package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrefsp/video-democry/internal/config"
	"github.com/andrefsp/video-democry/internal/relay"
	"github.com/andrefsp/video-democry/internal/ui"
)

var (
	flagListenAddr   string
	flagPingInterval time.Duration
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a signaling relay",
	Long: `Run the signaling relay that rooms meet on.

Examples:
  meshcall relay
  meshcall relay --addr :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{ListenAddr: flagListenAddr})
		if err != nil {
			return err
		}
		hub := relay.NewHub(flagPingInterval, slog.Default())
		ui.PrintInfof("%s Relay listening on %s", ui.IconServer, cfg.ListenAddr)
		return relay.Serve(cmd.Context(), cfg.ListenAddr, hub)
	},
}

func init() {
	relayCmd.Flags().StringVarP(&flagListenAddr, "addr", "a", "", "Listen address (env: LISTEN_ADDR)")
	relayCmd.Flags().DurationVar(&flagPingInterval, "ping-interval", relay.DefaultPingInterval, "How often rooms are pinged, 0 disables")
	rootCmd.AddCommand(relayCmd)
}
