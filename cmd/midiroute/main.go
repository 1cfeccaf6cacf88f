package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midiflow/router/internal/config"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

var (
	configDir  string
	background bool

	overridesViper *viper.Viper

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// exitConfigInvalid is returned by commands whose failure should map to
// exit code 2 (configuration invalid) rather than 1 (startup failure),
// per spec.md §6.4.
type exitConfigInvalid struct{ err error }

func (e exitConfigInvalid) Error() string { return e.err.Error() }
func (e exitConfigInvalid) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "midiroute",
	Short: "midiroute - a MIDI routing engine",
	Long:  `midiroute routes MIDI traffic between endpoints according to a persisted route matrix, reconciling open ports against a live endpoint catalog.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "directory holding config.json and loopbacks.json")
	rootCmd.PersistentFlags().BoolVar(&background, "background", false, "suppress interactive UI collaborator startup")

	startCmd.Flags().StringVar(&feedAddr, "feed-addr", "127.0.0.1:9494", "listen address for the event feed websocket, ignored with --background")
	startCmd.Flags().Int("debounce-millis", 120, "reconciliation debounce, in milliseconds")
	startCmd.Flags().Int("log-buffer-size", 0, "MessageLog capacity override (0 = use persisted config)")
	startCmd.Flags().Int("sysex-max-bytes", config.DefaultSysExMaxBytes, "truncation cap for inbound SysEx message data")
	startCmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector address for traffic metrics (e.g. localhost:4318); empty disables the exporter")

	overridesViper = config.NewViper()
	_ = overridesViper.BindPFlag("debounceMillis", startCmd.Flags().Lookup("debounce-millis"))
	_ = overridesViper.BindPFlag("logBufferSize", startCmd.Flags().Lookup("log-buffer-size"))
	_ = overridesViper.BindPFlag("sysExMaxBytes", startCmd.Flags().Lookup("sysex-max-bytes"))
	_ = overridesViper.BindPFlag("otlpEndpoint", startCmd.Flags().Lookup("otlp-endpoint"))

	rootCmd.AddCommand(startCmd, routesCmd, endpointsCmd, logCmd)
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/midiroute"
	}
	return "."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var invalid exitConfigInvalid
		if errors.As(err, &invalid) {
			fmt.Fprintln(os.Stderr, failStyle.Render("configuration invalid:"), invalid.err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, failStyle.Render("error:"), err)
		os.Exit(1)
	}
}
