package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"duet/internal/app"
	"duet/internal/domain"
	"duet/internal/services/session"
)

var (
	home     string
	secret   string
	relayURL string
	debug    bool

	wire   *app.Wire
	authCh = make(chan domain.AuthResponseBody, 4)
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:           "duet",
		Short:         "End-to-end encrypted chat node",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			if secret != "" {
				cfg.MasterSecret = secret
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if debug {
				cfg.Debug = true
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}

			log, err := app.NewLogger(filepath.Join(cfg.Home, app.LogFile), cfg.Debug)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, log, nil, hooks())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			_ = wire.Log.Sync()
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "node dir (default ~/.duet)")
	root.PersistentFlags().StringVarP(&secret, "secret", "s", "", "master secret protecting keys at rest")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay websocket URL (e.g. ws://127.0.0.1:8080/ws)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	root.AddCommand(signupCmd(), runCmd(), fingerprintCmd())
	return root.Execute()
}

// hooks prints session events on stdout.
func hooks() session.Hooks {
	return session.Hooks{
		OnMessage: func(r session.Received) {
			fmt.Printf("\n[%s] %s: %s\n", r.Chat.Name, peerLabel(r.Chat), r.Plaintext)
		},
		OnChat: func(c domain.Chat) {
			if c.Initiator {
				fmt.Printf("\nchat %q with %s confirmed (%s)\n", c.Name, peerLabel(c), c.ID)
				return
			}
			fmt.Printf("\n%s opened chat %q (%s)\n", peerLabel(c), c.Name, c.ID)
		},
		OnAuth: func(b domain.AuthResponseBody) {
			select {
			case authCh <- b:
			default:
				wire.Log.Debug("auth notice dropped", zap.String("status", string(b.Status)))
			}
		},
	}
}

func peerLabel(c domain.Chat) string {
	if c.PeerName == "" {
		return c.Peer.String()
	}
	return fmt.Sprintf("%s (%s)", c.PeerName, c.Peer)
}
