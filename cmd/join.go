package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/huddle"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/rooms"
	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagDomain   string
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagPortMin  uint16
	flagPortMax  uint16

	flagUser       string
	flagToken      string
	flagCamera     string
	flagMicrophone string
	flagScreen     string
	flagOutput     string
	flagAudio      bool
	flagVideo      bool
	flagManual     string
	flagPoll       time.Duration
	flagHeadless   bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room and start a huddle",
	Long: `Join a room and open the huddle screen. Without a room id a new one is made up
and printed so others can join it.

Press h to join or leave the huddle, m and v to toggle the microphone and
camera, s to share the screen.

Examples:
  huddle join
  huddle join kitten-waffle-stardust-happy
  huddle join --camera cam.ivf --microphone mic.ogg my-room
  huddle join --manual file:///tmp/huddle --poll 1s my-room
  huddle join --headless --output recordings my-room`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{
			Domain:       flagDomain,
			Server:       flagServer,
			STUNServer:   flagSTUN,
			TURNServer:   flagTURN,
			TURNUser:     flagTURNUser,
			TURNPass:     flagTURNPass,
			ForceRelay:   flagRelay,
			PortMin:      flagPortMin,
			PortMax:      flagPortMax,
			UserID:       flagUser,
			Token:        flagToken,
			Camera:       flagCamera,
			Microphone:   flagMicrophone,
			Screen:       flagScreen,
			OutputDir:    flagOutput,
			ManualStore:  flagManual,
			PollInterval: flagPoll,
		}
		if cmd.Flags().Changed("audio") {
			opts.Audio = &flagAudio
		}
		if cmd.Flags().Changed("video") {
			opts.Video = &flagVideo
		}

		roomID := ""
		if len(args) == 1 {
			roomID = args[0]
		}
		return joinRoom(cmd.Context(), roomID, opts)
	},
}

func joinRoom(ctx context.Context, roomID string, opts config.Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	if roomID == "" {
		roomID = rooms.NewID(nil)
	}
	// Nobody presses p in headless mode.
	if flagHeadless && cfg.ManualStore != "" && cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	logger := slog.Default().With("room", roomID, "user", cfg.UserID)

	factory, err := rtc.NewPionFactory(cfg, logger)
	if err != nil {
		return huddle.NewError("set up webrtc", err)
	}
	surfaces, err := media.NewFileSurfaces(cfg.OutputDir, logger)
	if err != nil {
		return huddle.NewError("prepare recordings", err)
	}

	sp := ui.NewConnectionSpinner("Connecting to the relay...")
	if cfg.ManualStore != "" {
		sp.UpdateMessage("Opening the signaling log...")
	}
	sp.Start()
	conn, err := NewConnectionContext(ctx, cfg, roomID, logger)
	if err != nil {
		sp.Error("Could not connect")
		return err
	}
	defer conn.Close()
	sp.Stop()

	session, err := huddle.New(huddle.Options{
		RoomID:       roomID,
		UserID:       cfg.UserID,
		Bus:          conn.Dispatcher,
		Factory:      factory,
		Devices:      media.NewFileDevices(cfg.Camera, cfg.Microphone, cfg.Screen, logger),
		Surfaces:     surfaces,
		AudioEnabled: cfg.AudioEnabled,
		VideoEnabled: cfg.VideoEnabled,
		Logger:       logger,
	})
	if err != nil {
		return huddle.NewError("create session", err)
	}
	defer session.Close()

	if flagHeadless {
		return runHeadless(ctx, session, roomID, cfg)
	}
	return ui.NewHuddleUI(ctx, session, conn.Poll()).Run()
}

// runHeadless joins the huddle right away and stays until interrupted.
func runHeadless(ctx context.Context, session *huddle.Session, roomID string, cfg *config.Config) error {
	fmt.Println(ui.RoomInfo{RoomID: roomID, UserID: cfg.UserID}.View())

	sp := ui.NewWaitingSpinner("Starting the huddle...")
	sp.Start()
	if err := session.Enable(ctx); err != nil {
		sp.Error("Could not start the huddle")
		return err
	}
	sp.Success(fmt.Sprintf("In the huddle, recording remote streams to %s", cfg.OutputDir))

	reported := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			session.Disable()
			return nil
		case <-session.Updates():
			snap := session.Snapshot()
			slog.Info("huddle state changed", "peers", len(snap.Peers), "remote_streams", snap.RemoteStreams)
			for _, p := range snap.Peers {
				if p.State == huddle.PeerFailed && !reported[p.UserID] {
					reported[p.UserID] = true
					ui.PrintWarningf("Lost %s: %s", p.UserID, p.Error)
				} else if p.State != huddle.PeerFailed {
					delete(reported, p.UserID)
				}
			}
		}
	}
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagDomain, "domain", "d", "", "Relay server domain (default: "+config.DefaultDomain+")")
	f.StringVar(&flagServer, "server", "", "Relay WebSocket URL, overrides --domain")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.BoolVar(&flagRelay, "relay", false, "Force relay through TURN")
	f.Uint16Var(&flagPortMin, "port-min", 0, "Lowest UDP port for ICE")
	f.Uint16Var(&flagPortMax, "port-max", 0, "Highest UDP port for ICE")

	f.StringVarP(&flagUser, "user", "u", "", "Your participant id (default: the token's user, else random)")
	f.StringVar(&flagToken, "token", "", "Relay access token")
	f.StringVar(&flagCamera, "camera", "", "IVF (VP8) file played as the camera")
	f.StringVar(&flagMicrophone, "microphone", "", "Ogg (Opus) file played as the microphone")
	f.StringVar(&flagScreen, "screen", "", "IVF (VP8) file played as the shared screen")
	f.StringVarP(&flagOutput, "output", "o", "", "Directory for remote stream recordings")
	f.BoolVar(&flagAudio, "audio", false, "Start with the microphone on")
	f.BoolVar(&flagVideo, "video", true, "Start with the camera on")
	f.StringVar(&flagManual, "manual", "", "Signal through a shared log (memory:, file:///dir, redis://host) instead of the relay")
	f.DurationVar(&flagPoll, "poll", 0, "Poll the manual log at this interval; 0 polls only on the p key")
	f.BoolVar(&flagHeadless, "headless", false, "Join immediately without the interactive screen")

	rootCmd.AddCommand(joinCmd)
}
