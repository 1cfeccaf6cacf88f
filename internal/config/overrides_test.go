package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveOverrides_Defaults(t *testing.T) {
	v := NewViper()
	o := ResolveOverrides(v)
	assert.Equal(t, 120*time.Millisecond, o.Debounce)
	assert.Equal(t, 0, o.LogBufferSize, "unset until an operator overrides it; the persisted AppConfig governs otherwise")
	assert.Equal(t, DefaultSysExMaxBytes, o.SysExMaxBytes)
}

func TestResolveOverrides_LogBufferSizeEnvOverride(t *testing.T) {
	t.Setenv("MIDIFLOW_LOGBUFFERSIZE", "750")
	v := NewViper()
	o := ResolveOverrides(v)
	assert.Equal(t, 750, o.LogBufferSize)
}

func TestResolveOverrides_EnvVarOverridesDefault(t *testing.T) {
	t.Setenv("MIDIFLOW_DEBOUNCEMILLIS", "50")
	v := NewViper()
	o := ResolveOverrides(v)
	assert.Equal(t, 50*time.Millisecond, o.Debounce)
}

func TestResolveOverrides_ExplicitSetOverridesEnv(t *testing.T) {
	t.Setenv("MIDIFLOW_LOGBUFFERSIZE", "10")
	v := NewViper()
	v.Set("logBufferSize", 999)
	o := ResolveOverrides(v)
	assert.Equal(t, 999, o.LogBufferSize)
}
