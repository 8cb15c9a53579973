package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hailam/kestrel/internal/engine"
)

// isolate keeps the user's real config directory and working directory out
// of the test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Chdir(dir)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	var c Config
	require.NoError(t, c.Load(nil))

	require.Equal(t, 64, c.Hash)
	require.Equal(t, 1, c.Threads)
	require.Equal(t, 10*time.Millisecond, c.MoveOverhead)
	require.Equal(t, "info", c.LogLevel)
	require.False(t, c.UseAnalysis)
	require.Equal(t, engine.DefaultSearchParams(), c.Search.Params())
	require.Empty(t, c.ConfigFile)
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "kestrel.yaml")
	yaml := `
hash: 128
threads: 2
move_overhead: 50ms
search:
  futility_margin: 120
  lmr_divisor: 2.5
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))
	t.Setenv("KESTREL_THREADS", "3")
	t.Setenv("KESTREL_SEARCH_RFP_MARGIN", "90")

	var c Config
	require.NoError(t, c.Load([]string{"--config", file, "--hash", "256"}))

	require.Equal(t, file, c.ConfigFile)
	require.Equal(t, 256, c.Hash)                         // flag beats file
	require.Equal(t, 3, c.Threads)                        // env beats file
	require.Equal(t, 50*time.Millisecond, c.MoveOverhead) // file beats default
	require.Equal(t, 120, c.Search.FutilityMargin)
	require.Equal(t, 2.5, c.Search.LMRDivisor)
	require.Equal(t, 90, c.Search.RFPMargin)

	opts := c.EngineOptions()
	require.Equal(t, 256, opts.HashMB)
	require.Equal(t, 120, opts.Params.FutilityMargin)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	var c Config
	err := c.Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	var base Config
	require.NoError(t, base.Load(nil))

	for name, mutate := range map[string]func(*Config){
		"zero hash":     func(c *Config) { c.Hash = 0 },
		"zero threads":  func(c *Config) { c.Threads = 0 },
		"lmr divisor":   func(c *Config) { c.Search.LMRDivisor = 0 },
		"null divisor":  func(c *Config) { c.Search.NullMoveEvalDivisor = 0 },
		"iir depth":     func(c *Config) { c.Search.IIRMinDepth = 1 },
		"aspiration":    func(c *Config) { c.Search.AspirationDelta = 0 },
		"move overhead": func(c *Config) { c.MoveOverhead = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			err := c.Validate()
			require.True(t, errors.Is(err, ErrInvalid))
		})
	}
}
