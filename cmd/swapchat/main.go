// swapchat is a terminal client for skill swap conversations: a chat list
// with unread markers and a chat window for one conversation at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/adi-253/skillswap/internal/chatclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var serverURL string
	var userID string

	flagSet := pflag.NewFlagSet("swapchat", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:8080", "chat server base URL")
	flagSet.StringVar(&userID, "user", "", "your user id (required)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("--user must be a user id: %q", userID)
	}
	userID = parsed.String()

	conn, err := chatclient.NewConnection(serverURL, userID)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := newModel(ctx, chatclient.NewAPI(serverURL), conn, userID)
	defer model.notifier.Stop()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `swapchat: chat with your skill swap partners.

Usage:
  swapchat --user <id> [--server <url>]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
