package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"duet/internal/domain"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <telephone>",
		Short: "Log in and open an interactive session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			stop := startLoop(ctx)
			defer stop()

			tel := domain.Telephone(args[0])
			if err := login(ctx, tel); err != nil {
				return err
			}
			return repl(ctx, tel)
		},
	}
}

func login(ctx context.Context, tel domain.Telephone) error {
	if err := wire.Session.Login(ctx, tel); err != nil {
		return err
	}
	if err := waitAuth(ctx, domain.AuthOK); err != nil {
		fmt.Printf("not yet logged in (%v); will keep retrying\n", err)
		return nil
	}
	fmt.Printf("Logged in as %s. Type \"help\" for commands.\n", tel)
	return nil
}

func repl(ctx context.Context, tel domain.Telephone) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		var err error
		switch name {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Println("create-chat <telephone> <name> [description] | send <chat> <message> | settle <chat> delivered|lost | chats | info | logout | login | exit")
		case "create-chat":
			err = createChat(ctx, rest)
		case "send":
			err = send(ctx, rest)
		case "settle":
			err = settle(rest)
		case "chats":
			err = listChats()
		case "info":
			err = info()
		case "logout":
			err = wire.Session.Logout(ctx)
			if err == nil {
				fmt.Println("logged out")
			}
		case "login":
			err = login(ctx, tel)
		default:
			err = fmt.Errorf("unknown command %q", name)
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func createChat(ctx context.Context, args string) error {
	f := strings.SplitN(args, " ", 3)
	if len(f) < 2 {
		return errors.New("usage: create-chat <telephone> <name> [description]")
	}
	desc := ""
	if len(f) == 3 {
		desc = strings.TrimSpace(f[2])
	}
	chat, err := wire.Session.CreateChat(ctx, domain.Telephone(f[0]), f[1], desc)
	if err != nil {
		return err
	}
	fmt.Printf("chat %s requested; waiting for %s to confirm\n", chat.ID, chat.Peer)
	return nil
}

func send(ctx context.Context, args string) error {
	ref, msg, ok := strings.Cut(args, " ")
	if !ok || strings.TrimSpace(msg) == "" {
		return errors.New("usage: send <chat> <message>")
	}
	chat, err := findChat(ref)
	if err != nil {
		return err
	}
	return wire.Session.SendMessage(ctx, chat.ID, []byte(strings.TrimSpace(msg)))
}

// settle clears a message stuck waiting for its confirmation.
func settle(args string) error {
	ref, outcome, _ := strings.Cut(args, " ")
	var delivered bool
	switch strings.TrimSpace(outcome) {
	case "delivered":
		delivered = true
	case "lost":
	default:
		return errors.New("usage: settle <chat> delivered|lost")
	}
	chat, err := findChat(ref)
	if err != nil {
		return err
	}
	if err := wire.Session.SettlePending(chat.ID, delivered); err != nil {
		return err
	}
	fmt.Printf("chat %s can send again\n", shortID(chat.ID))
	return nil
}

// findChat resolves a chat by name or id prefix.
func findChat(ref string) (domain.Chat, error) {
	chats, err := wire.Session.Chats()
	if err != nil {
		return domain.Chat{}, err
	}
	var found []domain.Chat
	for _, c := range chats {
		if c.Name == ref || c.ID == domain.ChatID(ref) {
			return c, nil
		}
		if strings.HasPrefix(c.ID.String(), ref) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return domain.Chat{}, fmt.Errorf("no chat matches %q", ref)
	case 1:
		return found[0], nil
	default:
		return domain.Chat{}, fmt.Errorf("%q matches %d chats", ref, len(found))
	}
}

func listChats() error {
	chats, err := wire.Session.Chats()
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("no chats")
		return nil
	}
	for _, c := range chats {
		state := "confirmed"
		if !c.Confirmed() {
			state = "pending"
		}
		fmt.Printf("%s  %-16s %-24s %s\n", shortID(c.ID), c.Name, peerLabel(c), state)
	}
	return nil
}

func info() error {
	sess, err := wire.Session.Current()
	if err != nil {
		return err
	}
	fp, err := wire.Identity.Fingerprint()
	if err != nil {
		return err
	}
	name := ""
	if acc, ok, err := wire.Accounts.LoadAccount(sess.User); err == nil && ok {
		name = acc.Name
	}
	fmt.Printf("user:        %s %s\nfingerprint: %s\nauthed:      %v\nsince:       %s\npending:     %d jobs\n",
		sess.User, name, fp, sess.Authed, sess.Since.Format("2006-01-02 15:04:05"),
		wire.Session.Queue().Pending(sess.User))
	return nil
}

func shortID(id domain.ChatID) string {
	if s := id.String(); len(s) > 8 {
		return s[:8]
	}
	return id.String()
}
