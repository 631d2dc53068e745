package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"duet/internal/app"
	"duet/internal/domain"
)

// authTimeout bounds how long a command waits for the relay.
const authTimeout = 15 * time.Second

func signupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup <telephone> <name>",
		Short: "Generate keys and register with the relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.CheckMasterSecret(wire.Config.MasterSecret); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			stop := startLoop(ctx)
			defer stop()

			tel := domain.Telephone(args[0])
			if err := wire.Session.Signup(ctx, tel, args[1]); err != nil {
				return err
			}
			// The relay answers "created", then the queued refresh logs in.
			if err := waitAuth(ctx, domain.AuthCreated); err != nil {
				return err
			}
			if err := waitAuth(ctx, domain.AuthOK); err != nil {
				return err
			}
			fp, err := wire.Identity.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Account %s created.\nFingerprint: %s\n", tel, fp)
			return nil
		},
	}
}

// startLoop runs the orchestrator until the returned stop is called.
func startLoop(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wire.Session.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// waitAuth waits for the next auth-response and fails unless it has status
// want.
func waitAuth(ctx context.Context, want domain.AuthStatus) error {
	select {
	case b := <-authCh:
		if b.Status != want {
			return fmt.Errorf("relay answered %s: %s", b.Status, b.Msg)
		}
		return nil
	case <-time.After(authTimeout):
		return errors.New("timed out waiting for the relay")
	case <-ctx.Done():
		return ctx.Err()
	}
}
