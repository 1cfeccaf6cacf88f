package config

import (
	"time"

	"github.com/spf13/viper"
)

// Overrides are operator-supplied tunables layered over the persisted
// AppConfig: environment variables and CLI flags (bound by cmd/midiroute
// via viper.BindPFlag) take precedence over the defaults set here.
// Grounded on the teacher's cmd/bd/config.go viper.New()+SetConfigType
// usage, generalized from a read-only yaml validation pass to a live
// defaults-plus-overrides source.
type Overrides struct {
	Debounce      time.Duration
	LogBufferSize int
	SysExMaxBytes int
	OTLPEndpoint  string
}

// DefaultSysExMaxBytes bounds how large a single SysEx message's Data the
// session will keep before truncating the remainder (spec.md §3).
const DefaultSysExMaxBytes = 4096

// NewViper returns a *viper.Viper preloaded with midiflow's defaults and
// its environment variable prefix, ready for cmd/midiroute to layer
// cobra flags on top of via BindPFlag.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MIDIFLOW")
	v.AutomaticEnv()
	v.SetDefault("debounceMillis", 120)
	v.SetDefault("sysExMaxBytes", DefaultSysExMaxBytes)
	v.SetDefault("otlpEndpoint", "")
	return v
}

// ResolveOverrides reads the current Overrides from v, after any CLI
// flags or environment variables have been layered on. LogBufferSize is
// left at zero unless an operator explicitly set MIDIFLOW_LOGBUFFERSIZE
// or bound a --log-buffer-size flag; it carries no SetDefault so the
// persisted AppConfig's value is what governs absent an explicit
// override (see newApp in cmd/midiroute).
func ResolveOverrides(v *viper.Viper) Overrides {
	return Overrides{
		Debounce:      time.Duration(v.GetInt("debounceMillis")) * time.Millisecond,
		LogBufferSize: v.GetInt("logBufferSize"),
		SysExMaxBytes: v.GetInt("sysExMaxBytes"),
		OTLPEndpoint:  v.GetString("otlpEndpoint"),
	}
}
