// Package config loads engine settings from defaults, an optional YAML
// file, KESTREL_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hailam/kestrel/internal/engine"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const envPrefix = "KESTREL"

// SearchConfig mirrors engine.SearchParams with configuration keys.
type SearchConfig struct {
	RFPMaxDepth              int     `mapstructure:"rfp_max_depth"`
	RFPMargin                int     `mapstructure:"rfp_margin"`
	NullMoveMinDepth         int     `mapstructure:"null_move_min_depth"`
	NullMoveBase             int     `mapstructure:"null_move_base"`
	NullMoveDepthDivisor     int     `mapstructure:"null_move_depth_divisor"`
	NullMoveEvalDivisor      int     `mapstructure:"null_move_eval_divisor"`
	FutilityMaxDepth         int     `mapstructure:"futility_max_depth"`
	FutilityBase             int     `mapstructure:"futility_base"`
	FutilityMargin           int     `mapstructure:"futility_margin"`
	LMPBase                  int     `mapstructure:"lmp_base"`
	LMPFactor                int     `mapstructure:"lmp_factor"`
	LMRBase                  float64 `mapstructure:"lmr_base"`
	LMRDivisor               float64 `mapstructure:"lmr_divisor"`
	LMRHistoryDivisor        int     `mapstructure:"lmr_history_divisor"`
	HistoryPruneMaxDepth     int     `mapstructure:"history_prune_max_depth"`
	HistoryPruneFactor       int     `mapstructure:"history_prune_factor"`
	SEEQuietMargin           int     `mapstructure:"see_quiet_margin"`
	SEECaptureMargin         int     `mapstructure:"see_capture_margin"`
	SingularMinDepth         int     `mapstructure:"singular_min_depth"`
	SingularMarginFactor     int     `mapstructure:"singular_margin_factor"`
	LowDepthSingularMinDepth int     `mapstructure:"low_depth_singular_min_depth"`
	LowDepthSingularMargin   int     `mapstructure:"low_depth_singular_margin"`
	AspirationDelta          int     `mapstructure:"aspiration_delta"`
	AspirationMaxWidenings   int     `mapstructure:"aspiration_max_widenings"`
	QSearchDeltaMargin       int     `mapstructure:"qsearch_delta_margin"`
	IIRMinDepth              int     `mapstructure:"iir_min_depth"`
}

type Config struct {
	Hash          int           `mapstructure:"hash"`
	Threads       int           `mapstructure:"threads"`
	MoveOverhead  time.Duration `mapstructure:"move_overhead"`
	AnalysisDir   string        `mapstructure:"analysis_dir"`
	UseAnalysis   bool          `mapstructure:"use_analysis"`
	SharedHistory bool          `mapstructure:"shared_history"`
	LogLevel      string        `mapstructure:"log_level"`
	CPUProfile    string        `mapstructure:"cpuprofile"`
	Search        SearchConfig  `mapstructure:"search"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"hash":           "hash",
	"threads":        "threads",
	"move-overhead":  "move_overhead",
	"analysis-dir":   "analysis_dir",
	"use-analysis":   "use_analysis",
	"shared-history": "shared_history",
	"log-level":      "log_level",
	"cpuprofile":     "cpuprofile",
}

// Load fills c from args, the environment and the config file.
func (c *Config) Load(args []string) error {
	fs := pflag.NewFlagSet("kestrel", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.Int("hash", 64, "transposition table size in MB")
	fs.Int("threads", 1, "number of search threads")
	fs.Duration("move-overhead", 10*time.Millisecond, "time reserved per move for transport latency")
	fs.String("analysis-dir", "", "directory of the analysis store (default: platform data dir)")
	fs.Bool("use-analysis", false, "seed searches from and save results to the analysis store")
	fs.Bool("shared-history", false, "share history tables between search threads")
	fs.String("log-level", "info", "log level: trace, debug, info, warn, error")
	fs.String("cpuprofile", "", "write a CPU profile to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "kestrel"))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	c.ConfigFile = v.ConfigFileUsed()
	return c.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hash", 64)
	v.SetDefault("threads", 1)
	v.SetDefault("move_overhead", 10*time.Millisecond)
	v.SetDefault("analysis_dir", "")
	v.SetDefault("use_analysis", false)
	v.SetDefault("shared_history", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("cpuprofile", "")

	p := engine.DefaultSearchParams()
	v.SetDefault("search.rfp_max_depth", p.RFPMaxDepth)
	v.SetDefault("search.rfp_margin", p.RFPMargin)
	v.SetDefault("search.null_move_min_depth", p.NullMoveMinDepth)
	v.SetDefault("search.null_move_base", p.NullMoveBase)
	v.SetDefault("search.null_move_depth_divisor", p.NullMoveDepthDivisor)
	v.SetDefault("search.null_move_eval_divisor", p.NullMoveEvalDivisor)
	v.SetDefault("search.futility_max_depth", p.FutilityMaxDepth)
	v.SetDefault("search.futility_base", p.FutilityBase)
	v.SetDefault("search.futility_margin", p.FutilityMargin)
	v.SetDefault("search.lmp_base", p.LMPBase)
	v.SetDefault("search.lmp_factor", p.LMPFactor)
	v.SetDefault("search.lmr_base", p.LMRBase)
	v.SetDefault("search.lmr_divisor", p.LMRDivisor)
	v.SetDefault("search.lmr_history_divisor", p.LMRHistoryDivisor)
	v.SetDefault("search.history_prune_max_depth", p.HistoryPruneMaxDepth)
	v.SetDefault("search.history_prune_factor", p.HistoryPruneFactor)
	v.SetDefault("search.see_quiet_margin", p.SEEQuietMargin)
	v.SetDefault("search.see_capture_margin", p.SEECaptureMargin)
	v.SetDefault("search.singular_min_depth", p.SingularMinDepth)
	v.SetDefault("search.singular_margin_factor", p.SingularMarginFactor)
	v.SetDefault("search.low_depth_singular_min_depth", p.LowDepthSingularMinDepth)
	v.SetDefault("search.low_depth_singular_margin", p.LowDepthSingularMargin)
	v.SetDefault("search.aspiration_delta", p.AspirationDelta)
	v.SetDefault("search.aspiration_max_widenings", p.AspirationMaxWidenings)
	v.SetDefault("search.qsearch_delta_margin", p.QSearchDeltaMargin)
	v.SetDefault("search.iir_min_depth", p.IIRMinDepth)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	s := c.Search
	switch {
	case c.Hash < 1 || c.Hash > 1<<20:
		return fmt.Errorf("%w: hash %d MB out of range", ErrInvalid, c.Hash)
	case c.Threads < 1 || c.Threads > 1024:
		return fmt.Errorf("%w: threads %d out of range", ErrInvalid, c.Threads)
	case c.MoveOverhead < 0:
		return fmt.Errorf("%w: negative move overhead", ErrInvalid)
	case s.NullMoveDepthDivisor <= 0 || s.NullMoveEvalDivisor <= 0:
		return fmt.Errorf("%w: null move divisors must be positive", ErrInvalid)
	case s.LMRDivisor <= 0 || s.LMRHistoryDivisor <= 0:
		return fmt.Errorf("%w: lmr divisors must be positive", ErrInvalid)
	case s.IIRMinDepth < 2:
		return fmt.Errorf("%w: iir_min_depth must be at least 2", ErrInvalid)
	case s.AspirationDelta <= 0:
		return fmt.Errorf("%w: aspiration_delta must be positive", ErrInvalid)
	case s.SingularMinDepth < 1 || s.LowDepthSingularMinDepth < 1:
		return fmt.Errorf("%w: singular depths must be positive", ErrInvalid)
	}
	return nil
}

// Params converts the search block for the engine.
func (s SearchConfig) Params() engine.SearchParams {
	return engine.SearchParams{
		RFPMaxDepth:              s.RFPMaxDepth,
		RFPMargin:                s.RFPMargin,
		NullMoveMinDepth:         s.NullMoveMinDepth,
		NullMoveBase:             s.NullMoveBase,
		NullMoveDepthDivisor:     s.NullMoveDepthDivisor,
		NullMoveEvalDivisor:      s.NullMoveEvalDivisor,
		FutilityMaxDepth:         s.FutilityMaxDepth,
		FutilityBase:             s.FutilityBase,
		FutilityMargin:           s.FutilityMargin,
		LMPBase:                  s.LMPBase,
		LMPFactor:                s.LMPFactor,
		LMRBase:                  s.LMRBase,
		LMRDivisor:               s.LMRDivisor,
		LMRHistoryDivisor:        s.LMRHistoryDivisor,
		HistoryPruneMaxDepth:     s.HistoryPruneMaxDepth,
		HistoryPruneFactor:       s.HistoryPruneFactor,
		SEEQuietMargin:           s.SEEQuietMargin,
		SEECaptureMargin:         s.SEECaptureMargin,
		SingularMinDepth:         s.SingularMinDepth,
		SingularMarginFactor:     s.SingularMarginFactor,
		LowDepthSingularMinDepth: s.LowDepthSingularMinDepth,
		LowDepthSingularMargin:   s.LowDepthSingularMargin,
		AspirationDelta:          s.AspirationDelta,
		AspirationMaxWidenings:   s.AspirationMaxWidenings,
		QSearchDeltaMargin:       s.QSearchDeltaMargin,
		IIRMinDepth:              s.IIRMinDepth,
	}
}

// EngineOptions builds the engine options described by c.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		HashMB:        c.Hash,
		Threads:       c.Threads,
		MoveOverhead:  c.MoveOverhead,
		SharedHistory: c.SharedHistory,
		Params:        c.Search.Params(),
	}
}
