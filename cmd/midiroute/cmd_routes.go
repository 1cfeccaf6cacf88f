package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/types"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Inspect and edit the persisted route matrix",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routes in the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configDir)
		cfg, err := store.LoadAppConfig()
		if err != nil {
			return exitConfigInvalid{err}
		}
		routes, err := cfg.ActiveRoutes()
		if err != nil {
			return exitConfigInvalid{err}
		}
		if len(routes) == 0 {
			fmt.Println(mutedStyle.Render("no routes configured"))
			return nil
		}
		for _, r := range routes {
			status := passStyle.Render("enabled")
			if !r.Enabled {
				status = warnStyle.Render("disabled")
			}
			fmt.Printf("%s  %s -> %s  [%s]\n",
				accentStyle.Render(string(r.ID)), boldStyle.Render(string(r.Source)), boldStyle.Render(string(r.Target)), status)
		}
		return nil
	},
}

var (
	routeAddChannels     string
	routeAddMessageTypes string
	routeAddDisabled     bool
)

var routesAddCmd = &cobra.Command{
	Use:   "add <source> <target>",
	Short: "Add a route to the active profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configDir)
		cfg, err := store.LoadAppConfig()
		if err != nil {
			return exitConfigInvalid{err}
		}

		channels, err := parseChannels(routeAddChannels)
		if err != nil {
			return exitConfigInvalid{err}
		}
		msgTypes, err := parseMessageTypes(routeAddMessageTypes)
		if err != nil {
			return exitConfigInvalid{err}
		}
		filter, err := types.NewRouteFilter(channels, msgTypes)
		if err != nil {
			return exitConfigInvalid{err}
		}

		route := types.RouteDefinition{
			ID:      types.RouteId(uuid.NewString()),
			Source:  types.EndpointId(args[0]),
			Target:  types.EndpointId(args[1]),
			Enabled: !routeAddDisabled,
			Filter:  filter,
		}
		doc := config.FromRouteDefinition(route)

		profile := findOrCreateActiveProfile(cfg)
		profile.Routes = append(profile.Routes, doc)

		if err := store.SaveAppConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println(passStyle.Render("route added:"), route.ID)
		return nil
	},
}

var routesRmCmd = &cobra.Command{
	Use:   "rm <routeId>",
	Short: "Remove a route from the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configDir)
		cfg, err := store.LoadAppConfig()
		if err != nil {
			return exitConfigInvalid{err}
		}

		profile := findOrCreateActiveProfile(cfg)
		target := args[0]
		kept := profile.Routes[:0]
		removed := false
		for _, r := range profile.Routes {
			if r.ID == target {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		profile.Routes = kept

		if !removed {
			return fmt.Errorf("no such route: %s", target)
		}
		if err := store.SaveAppConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println(passStyle.Render("route removed:"), target)
		return nil
	},
}

func init() {
	routesAddCmd.Flags().StringVar(&routeAddChannels, "channels", "", "comma-separated channel list (1-16), empty = all")
	routesAddCmd.Flags().StringVar(&routeAddMessageTypes, "types", "", "comma-separated MessageType names, empty = all")
	routesAddCmd.Flags().BoolVar(&routeAddDisabled, "disabled", false, "create the route in a disabled state")

	routesCmd.AddCommand(routesListCmd, routesAddCmd, routesRmCmd)
}

// findOrCreateActiveProfile returns a pointer into cfg.Profiles matching
// cfg.ActiveProfileName, creating one if none matches.
func findOrCreateActiveProfile(cfg *config.AppConfig) *config.ProfileDoc {
	name := cfg.ActiveProfileName
	if name == "" {
		name = config.DefaultProfileName
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == name {
			return &cfg.Profiles[i]
		}
	}
	cfg.Profiles = append(cfg.Profiles, config.ProfileDoc{Name: name})
	return &cfg.Profiles[len(cfg.Profiles)-1]
}

func parseChannels(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseMessageTypes(raw string) ([]types.MessageType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]types.MessageType, 0, len(parts))
	for _, p := range parts {
		t, ok := types.ParseMessageType(strings.TrimSpace(p))
		if !ok {
			return nil, fmt.Errorf("unknown message type %q", p)
		}
		out = append(out, t)
	}
	return out, nil
}
