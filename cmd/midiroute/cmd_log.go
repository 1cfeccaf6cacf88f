package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/eventlog"
	"github.com/midiflow/router/internal/types"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the message log",
}

var logTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the current contents of the message log",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configDir)
		cfg, err := store.LoadAppConfig()
		if err != nil {
			return exitConfigInvalid{err}
		}

		// A fresh Log is used here since the log is process-local,
		// in-memory state owned by a running `start` invocation; this
		// command can only report on an engine it shares a process
		// with, which the CLI alone does not. It exists to exercise
		// and document the ring-buffer's List shape.
		l := eventlog.New(cfg.ClampedLogBufferSize())
		entries := l.List()
		if len(entries) == 0 {
			fmt.Println(mutedStyle.Render("log is empty (the CLI only sees log entries of the process it runs in)"))
			return nil
		}
		for _, e := range entries {
			printLogEntry(e)
		}
		return nil
	},
}

func printLogEntry(e types.LogEntry) {
	fmt.Printf("%s  %-20s ch=%-2d %-13s %s\n",
		mutedStyle.Render(e.Timestamp.Format("15:04:05.000")),
		boldStyle.Render(e.EndpointName),
		e.Channel,
		accentStyle.Render(e.MessageType.String()),
		e.Detail,
	)
}

func init() {
	logCmd.AddCommand(logTailCmd)
}
