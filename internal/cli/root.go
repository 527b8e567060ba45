// Package cli implements the process entry points: the control panel bot
// and the worker process it spawns for every userbot.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree:
//
//	manager-for-userbot start bot-process
//	manager-for-userbot start worker-process <phone>
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "manager-for-userbot",
		Short:         "Telegram panel that supervises userbot worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a process",
	}
	start.AddCommand(newBotProcessCommand(), newWorkerProcessCommand())
	root.AddCommand(start)
	return root
}

// Execute runs the command tree until SIGINT or SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCommand().ExecuteContext(ctx)
}
