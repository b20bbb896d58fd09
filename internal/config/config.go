// Package config loads netspy settings from flags, NETSPY_* environment
// variables and an optional netspy.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zerolethanh/netspy/internal/logger"
	"github.com/zerolethanh/netspy/internal/record"
	"github.com/zerolethanh/netspy/internal/region"
)

const (
	KeyFlag         = "key"
	GUIFlag         = "gui"
	VerbosityFlag   = "verbosity"
	IntervalFlag    = "interval"
	RegionSizeFlag  = "region-size"
	SampleFlag      = "sample"
	MetricsAddrFlag = "metrics-addr"
	LogFileFlag     = "log-file"
	ConfigFlag      = "config"

	DefaultKey = "0x0000DEAD"
)

var (
	ErrInvalidKeyFormat = errors.New("netspy: key must start with 0x")
	ErrKeyParse         = errors.New("netspy: key is not valid hexadecimal")
)

// ConfigError reports a setting that prevents startup.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the resolved runtime configuration.
type Config struct {
	Key         uint32
	RawKey      string
	GUI         bool
	Verbosity   string
	Interval    time.Duration
	RegionSize  int
	Sample      bool
	MetricsAddr string
	LogFile     string
}

// ParseKey parses a region key written as 0x-prefixed hexadecimal, such as
// 0x0000DEAD.
func ParseKey(s string) (uint32, error) {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return 0, &ConfigError{Field: KeyFlag, Value: s, Err: ErrInvalidKeyFormat}
	}
	key, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, &ConfigError{Field: KeyFlag, Value: s, Err: fmt.Errorf("%w: %w", ErrKeyParse, err)}
	}
	return uint32(key), nil
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP(KeyFlag, "k", DefaultKey, "region key, e.g. 0x0000DEAD")
	fs.BoolP(GUIFlag, "g", false, "run the terminal table instead of console output")
	fs.StringP(VerbosityFlag, "v", "info", "log level: "+strings.Join(logger.Levels, ", "))
	fs.Duration(IntervalFlag, time.Second, "refresh interval")
	fs.Int(RegionSizeFlag, region.DefaultSize, "region capacity in bytes")
	fs.Bool(SampleFlag, false, "publish this host's network activity into the region")
	fs.String(MetricsAddrFlag, "", "serve prometheus metrics on this address")
	fs.String(LogFileFlag, "", "write logs to this file instead of stderr")
	fs.String(ConfigFlag, "", "config file (default ./netspy.yaml if present)")
	return fs
}

// Load resolves the configuration. fs may be nil, in which case only the
// environment, config file and defaults are consulted.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyFlag, DefaultKey)
	v.SetDefault(GUIFlag, false)
	v.SetDefault(VerbosityFlag, "info")
	v.SetDefault(IntervalFlag, time.Second)
	v.SetDefault(RegionSizeFlag, region.DefaultSize)
	v.SetDefault(SampleFlag, false)
	v.SetDefault(MetricsAddrFlag, "")
	v.SetDefault(LogFileFlag, "")

	v.SetEnvPrefix("NETSPY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if path := v.GetString(ConfigFlag); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netspy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{Field: ConfigFlag, Value: v.ConfigFileUsed(), Err: err}
		}
	}

	cfg := &Config{
		RawKey:      v.GetString(KeyFlag),
		GUI:         v.GetBool(GUIFlag),
		Verbosity:   v.GetString(VerbosityFlag),
		Interval:    v.GetDuration(IntervalFlag),
		RegionSize:  v.GetInt(RegionSizeFlag),
		Sample:      v.GetBool(SampleFlag),
		MetricsAddr: v.GetString(MetricsAddrFlag),
		LogFile:     v.GetString(LogFileFlag),
	}

	key, err := ParseKey(cfg.RawKey)
	if err != nil {
		return nil, err
	}
	cfg.Key = key

	if !slices.Contains(logger.Levels, cfg.Verbosity) {
		return nil, &ConfigError{Field: VerbosityFlag, Value: cfg.Verbosity, Err: errors.New("unknown level")}
	}
	if cfg.Interval <= 0 {
		return nil, &ConfigError{Field: IntervalFlag, Value: cfg.Interval.String(), Err: errors.New("must be positive")}
	}
	if cfg.RegionSize < record.Size {
		return nil, &ConfigError{Field: RegionSizeFlag, Value: strconv.Itoa(cfg.RegionSize), Err: region.ErrRegionTooSmall}
	}
	return cfg, nil
}
