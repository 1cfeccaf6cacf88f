package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/midiflow/router/internal/supervisor"
)

var feedAddr string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the routing engine and block until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := feedAddr
		if background {
			addr = ""
		}

		a, err := newApp(configDir, overridesViper, addr)
		if err != nil {
			return exitConfigInvalid{err}
		}

		if err := a.Start(rootCtx); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		if !background {
			fmt.Println(passStyle.Render("midiroute running") + mutedStyle.Render(" — press Ctrl-C to stop"))
			fmt.Println(mutedStyle.Render("event feed at ws://" + addr + "/ws"))
		}

		<-rootCtx.Done()
		rootCancel()

		stopCtx, cancel := context.WithTimeout(context.Background(), supervisor.DefaultStopTimeout+time.Second)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		return nil
	},
}
