package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/midiflow/router/internal/catalog"
	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/port"
	"github.com/midiflow/router/internal/types"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Inspect the endpoint catalog and manage loopback endpoints",
}

func openCatalog() (*catalog.Catalog, *config.Store, error) {
	store := config.NewStore(configDir)
	cat := catalog.New(port.NewStaticHardwareSource(nil), store)
	if err := cat.Refresh(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("refresh catalog: %w", err)
	}
	return cat, store, nil
}

var endpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known endpoints (hardware and loopback)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, _, err := openCatalog()
		if err != nil {
			return err
		}
		endpoints := cat.List()
		if len(endpoints) == 0 {
			fmt.Println(mutedStyle.Render("no endpoints known"))
			return nil
		}
		for _, e := range endpoints {
			dirs := directionLabel(e)
			status := passStyle.Render("online")
			if !e.IsOnline {
				status = warnStyle.Render("offline")
			}
			fmt.Printf("%s  %-28s %-9s %-8s %s\n",
				accentStyle.Render(string(e.ID)), boldStyle.Render(e.Name), e.Kind.String(), dirs, status)
		}
		return nil
	},
}

func directionLabel(e types.EndpointDescriptor) string {
	switch {
	case e.SupportsInput && e.SupportsOutput:
		return "in/out"
	case e.SupportsInput:
		return "in"
	case e.SupportsOutput:
		return "out"
	default:
		return "-"
	}
}

var endpointsAddLoopbackCmd = &cobra.Command{
	Use:   "add-loopback [name]",
	Short: "Create a new user-managed loopback endpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		cat, _, err := openCatalog()
		if err != nil {
			return err
		}
		desc, err := cat.CreateLoopback(name)
		if err != nil {
			return fmt.Errorf("create loopback: %w", err)
		}
		fmt.Println(passStyle.Render("loopback created:"), desc.ID, desc.Name)
		return nil
	},
}

var endpointsRmCmd = &cobra.Command{
	Use:   "rm <endpointId>",
	Short: "Delete a user-managed loopback endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.EndpointId(strings.TrimSpace(args[0]))
		cat, _, err := openCatalog()
		if err != nil {
			return err
		}
		if !cat.DeleteLoopback(id) {
			return fmt.Errorf("no such loopback endpoint: %s", id)
		}
		fmt.Println(passStyle.Render("loopback removed:"), id)
		return nil
	},
}

func init() {
	endpointsCmd.AddCommand(endpointsListCmd, endpointsAddLoopbackCmd, endpointsRmCmd)
}
