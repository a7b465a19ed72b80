package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrefsp/video-democry/internal/call"
	"github.com/andrefsp/video-democry/internal/config"
	"github.com/andrefsp/video-democry/internal/logging"
	"github.com/andrefsp/video-democry/internal/media"
	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/session"
	"github.com/andrefsp/video-democry/internal/ui"
	"github.com/andrefsp/video-democry/internal/version"
)

var (
	flagDomain   string
	flagRelayURL string
	flagUsername string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagTopology string
	flagNoAudio  bool
	flagVideo    string
	flagPlain    bool

	flagMaxRestarts        int
	flagMaxLinkRecreations int
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room",
	Long: `Join a room and keep a WebRTC link to every other participant.
Without a room name a new one is generated.

Examples:
  meshcall join
  meshcall join brave-ramen-otter
  meshcall join --relay-url ws://localhost:8080/ws --video clip.h264 demo
  meshcall join --topology sfu demo`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var roomID string
		if len(args) == 1 {
			roomID = args[0]
		}
		return joinRoom(cmd.Context(), roomID)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagDomain, "domain", "d", "", "Relay domain (env: DOMAIN)")
	f.StringVar(&flagRelayURL, "relay-url", "", "Relay WebSocket URL, overrides --domain (env: RELAY_URL)")
	f.StringVarP(&flagUsername, "name", "n", "", "Name shown to others (env: USERNAME)")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL (env: STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server host (env: TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env: TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env: TURN_PASSWORD)")
	f.BoolVar(&flagRelay, "force-relay", false, "Only use TURN candidates (env: FORCE_RELAY)")
	f.StringVar(&flagTopology, "topology", "", "mesh or sfu (env: TOPOLOGY)")
	f.BoolVar(&flagNoAudio, "no-audio", false, "Do not send an audio track")
	f.StringVar(&flagVideo, "video", "", "H.264 Annex-B file to send as video (env: VIDEO_FILE)")
	f.BoolVar(&flagPlain, "plain", false, "Print status lines instead of the live view")
	f.IntVar(&flagMaxRestarts, "max-restarts", 0, "Consecutive failed rejoins before giving up (env: MAX_RESTARTS)")
	f.IntVar(&flagMaxLinkRecreations, "max-link-retries", 0, "Failed links per peer before giving up on it (env: MAX_LINK_RECREATIONS)")

	rootCmd.AddCommand(joinCmd)
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	if opts.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func joinRoom(ctx context.Context, roomID string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:             flagDomain,
		RelayURL:           flagRelayURL,
		Room:               roomID,
		Username:           flagUsername,
		STUNServer:         flagSTUN,
		TURNServer:         flagTURN,
		TURNUser:           flagTURNUser,
		TURNPass:           flagTURNPass,
		ForceRelay:         flagRelay,
		Topology:           flagTopology,
		NoAudio:            flagNoAudio,
		VideoFile:          flagVideo,
		MaxRestarts:        flagMaxRestarts,
		MaxLinkRecreations: flagMaxLinkRecreations,
	})
	if err != nil {
		return err
	}
	if cfg.Room == "" {
		cfg.Room = room.NewRoomID()
	}

	logger := slog.Default().With("room", cfg.Room)

	factory, err := negotiation.NewPionFactory(negotiation.PionConfig{
		ICEServers:         cfg.ICEServers(),
		ICETransportPolicy: cfg.ICETransportPolicy(),
		LoggerFactory:      logging.PionFactory(logger),
		Version:            version.Version,
		Logger:             logger,
	})
	if err != nil {
		return call.NewError("create peer connection factory", err)
	}

	sink := media.NewDrainSink(logger)
	endpoint := cfg.RelayEndpoint(cfg.Room)
	sess := session.New(session.Config{
		Endpoint: endpoint,
		RoomID:   cfg.Room,
		Username: cfg.Username,
		Topology: cfg.Topology,
		Constraints: media.Constraints{
			Audio:     cfg.Audio,
			VideoFile: cfg.VideoFile,
		},
		Source:             media.NewGenerator(logger),
		Factory:            factory,
		Sink:               sink,
		MaxRestarts:        cfg.MaxRestarts,
		MaxLinkRecreations: cfg.MaxLinkRecreations,
		Logger:             logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	info := ui.RoomInfo{RoomID: cfg.Room, Endpoint: endpoint, Username: cfg.Username}
	snapshot := func() []ui.PeerRow {
		return ui.PeerRows(sess.Links(), sink.Stats())
	}

	var push func(call.Status)
	var stopUI func()
	if flagPlain {
		fmt.Println(info.View())
		sp := ui.NewConnectionSpinner("Joining room...")
		sp.Start()
		push = func(st call.Status) {
			if !sp.Active() {
				fmt.Println(ui.FormatStatus(st))
				return
			}
			switch st.Kind {
			case call.StatusJoined:
				sp.Success(ui.FormatStatus(st))
			case call.StatusSessionStopped:
				sp.Error(ui.FormatStatus(st))
			default:
				sp.UpdateMessage(ui.FormatStatus(st))
			}
		}
		stopUI = sp.Stop
	} else {
		roomUI := ui.NewRoomUI(info, snapshot, cancel)
		roomUI.Start()
		push = roomUI.Push
		stopUI = roomUI.Stop
	}

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for st := range sess.Statuses() {
			push(st)
		}
	}()

	started := time.Now()
	runErr := sess.Run(ctx)
	<-forwarded
	stopUI()

	fmt.Println()
	ui.RenderCallSummary(ui.CallSummary{
		RoomID:   cfg.Room,
		Elapsed:  time.Since(started),
		Restarts: sess.Restarts(),
		Peers:    snapshot(),
	})

	if runErr != nil {
		return call.NewError("join room", runErr)
	}
	return nil
}
