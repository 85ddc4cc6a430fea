package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FlagPrefixEvderive = "evderive."

	// Base configuration flags

	// FlagRootDir is a flag for specifying the root directory
	FlagRootDir = "home"
	// FlagDBPath is a flag for specifying the database path
	FlagDBPath = FlagPrefixEvderive + "db_path"

	// Chain configuration flags

	// FlagNetwork selects the chain preset
	FlagNetwork = FlagPrefixEvderive + "chain.network"
	// FlagRegolithTime overrides the Regolith activation timestamp of the preset
	FlagRegolithTime = FlagPrefixEvderive + "chain.regolith_time"

	// Driver configuration flags

	// FlagPollInterval is the interval at which the driver polls the pipeline when it is not ready
	FlagPollInterval = FlagPrefixEvderive + "driver.poll_interval"
	// FlagMaxBlocksPerStep bounds how many payloads the driver consumes per poll
	FlagMaxBlocksPerStep = FlagPrefixEvderive + "driver.max_blocks_per_step"

	// Instrumentation configuration flags

	// FlagPrometheus is a flag for enabling Prometheus metrics
	FlagPrometheus = FlagPrefixEvderive + "instrumentation.prometheus"
	// FlagPrometheusListenAddr is a flag for specifying the Prometheus listen address
	FlagPrometheusListenAddr = FlagPrefixEvderive + "instrumentation.prometheus_listen_addr"
	// FlagTracing enables OpenTelemetry tracing
	FlagTracing = FlagPrefixEvderive + "instrumentation.tracing"
	// FlagTracingEndpoint configures the OTLP endpoint (host:port)
	FlagTracingEndpoint = FlagPrefixEvderive + "instrumentation.tracing_endpoint"
	// FlagTracingServiceName configures the service.name resource attribute
	FlagTracingServiceName = FlagPrefixEvderive + "instrumentation.tracing_service_name"
	// FlagTracingSampleRate configures the TraceID ratio-based sampler
	FlagTracingSampleRate = FlagPrefixEvderive + "instrumentation.tracing_sample_rate"

	// Logging configuration flags

	// FlagLogLevel is a flag for specifying the log level
	FlagLogLevel = FlagPrefixEvderive + "log.level"
	// FlagLogFormat is a flag for specifying the log format
	FlagLogFormat = FlagPrefixEvderive + "log.format"
	// FlagLogTrace is a flag for enabling stack traces in error logs
	FlagLogTrace = FlagPrefixEvderive + "log.trace"
)

// ErrReadYaml is returned when the configuration could not be decoded.
var ErrReadYaml = errors.New("reading YAML configuration")

// DurationWrapper is a wrapper for time.Duration that implements encoding.TextMarshaler and encoding.TextUnmarshaler
// needed for YAML marshalling/unmarshalling especially for time.Duration
type DurationWrapper struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler to format the duration as text
func (d DurationWrapper) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler to parse the duration from text
func (d *DurationWrapper) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config stores the derivation node configuration.
type Config struct {
	RootDir string `mapstructure:"-" yaml:"-" comment:"Root directory where ev-derive files are located"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path" comment:"Path inside the root directory where the checkpoint database is located"`

	// Rollup parameters
	Chain ChainConfig `mapstructure:"chain" yaml:"chain"`

	// Engine driver configuration
	Driver DriverConfig `mapstructure:"driver" yaml:"driver"`

	// Instrumentation configuration
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`

	// Logging configuration
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DriverConfig contains the engine driver parameters
type DriverConfig struct {
	PollInterval     DurationWrapper `mapstructure:"poll_interval" yaml:"poll_interval" comment:"Interval between pipeline polls while no payload is ready. Examples: \"100ms\", \"1s\"."`
	MaxBlocksPerStep uint64          `mapstructure:"max_blocks_per_step" yaml:"max_blocks_per_step" comment:"Maximum number of payloads applied per poll. 0 means no limit."`
}

// LogConfig contains all logging configuration parameters
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" comment:"Log level (debug, info, warn, error)"`
	Format string `mapstructure:"format" yaml:"format" comment:"Log format (text, json)"`
	Trace  bool   `mapstructure:"trace" yaml:"trace" comment:"Enable stack traces in error logs"`
}

// Validate validates the config and ensures that the root directory exists.
// It creates the directory if it does not exist.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	fullDir := filepath.Dir(c.ConfigPath())
	if err := os.MkdirAll(fullDir, 0o750); err != nil {
		return fmt.Errorf("could not create directory %q: %w", fullDir, err)
	}

	if err := c.Chain.Validate(); err != nil {
		return fmt.Errorf("invalid chain config: %w", err)
	}

	if c.Driver.PollInterval.Duration <= 0 {
		return fmt.Errorf("driver poll interval must be positive, got %v", c.Driver.PollInterval.Duration)
	}

	if c.Instrumentation != nil {
		if err := c.Instrumentation.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid instrumentation config: %w", err)
		}
	}
	return nil
}

// ConfigPath returns the path to the configuration file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.RootDir, AppConfigDir, ConfigName)
}

// AddGlobalFlags registers the basic configuration flags that are common across applications.
// This includes logging configuration and root directory settings.
func AddGlobalFlags(cmd *cobra.Command, defaultHome string) {
	def := DefaultConfig()

	cmd.PersistentFlags().String(FlagLogLevel, def.Log.Level, "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(FlagLogFormat, def.Log.Format, "Set the log format (text, json)")
	cmd.PersistentFlags().Bool(FlagLogTrace, def.Log.Trace, "Enable stack traces in error logs")
	cmd.PersistentFlags().String(FlagRootDir, DefaultRootDirWithName(defaultHome), "Root directory for application data")
}

// AddFlags adds ev-derive specific configuration options to cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig()

	// Base configuration flags
	cmd.Flags().String(FlagDBPath, def.DBPath, "path for the checkpoint database")

	// Chain configuration flags
	cmd.Flags().String(FlagNetwork, def.Chain.Network, "chain preset (optimism, devnet, custom)")
	cmd.Flags().Uint64(FlagRegolithTime, def.Chain.RegolithTime, "L2 timestamp at which Regolith activates")

	// Driver configuration flags
	cmd.Flags().Duration(FlagPollInterval, def.Driver.PollInterval.Duration, "interval between pipeline polls while no payload is ready")
	cmd.Flags().Uint64(FlagMaxBlocksPerStep, def.Driver.MaxBlocksPerStep, "maximum payloads applied per poll (0 for no limit)")

	// Instrumentation configuration flags
	instrDef := DefaultInstrumentationConfig()
	cmd.Flags().Bool(FlagPrometheus, instrDef.Prometheus, "enable Prometheus metrics")
	cmd.Flags().String(FlagPrometheusListenAddr, instrDef.PrometheusListenAddr, "Prometheus metrics listen address")
	cmd.Flags().Bool(FlagTracing, instrDef.Tracing, "enable OpenTelemetry tracing")
	cmd.Flags().String(FlagTracingEndpoint, instrDef.TracingEndpoint, "OTLP endpoint for traces (host:port)")
	cmd.Flags().String(FlagTracingServiceName, instrDef.TracingServiceName, "OpenTelemetry service.name")
	cmd.Flags().Float64(FlagTracingSampleRate, instrDef.TracingSampleRate, "trace sampling rate (0.0-1.0)")
}

// Load loads the node configuration in the following order of precedence:
// 1. DefaultConfig() and the selected chain preset (lowest priority)
// 2. YAML configuration file
// 3. Environment variables
// 4. Command line flags (highest priority)
func Load(cmd *cobra.Command) (Config, error) {
	home, _ := cmd.Flags().GetString(FlagRootDir)
	if home == "" {
		home = DefaultRootDir
	} else if !filepath.IsAbs(home) {
		absHome, err := filepath.Abs(home)
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = absHome
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigExtension)
	v.AddConfigPath(filepath.Join(home, AppConfigDir))
	v.SetConfigFile(filepath.Join(home, AppConfigDir, ConfigName))
	v.AutomaticEnv()

	executableName, err := os.Executable()
	if err != nil {
		return Config{}, err
	}

	if err := bindFlags(path.Base(executableName), cmd, v); err != nil {
		return Config{}, err
	}

	// if the configuration file does not exist, we ignore the error
	// it will use the defaults
	_ = v.ReadInConfig()

	return loadFromViper(v, home)
}

// loadFromViper decodes the viper settings over the defaults of the selected chain preset.
func loadFromViper(v *viper.Viper, home string) (Config, error) {
	cfg := DefaultConfig()
	cfg.RootDir = home

	if network := v.GetString("chain.network"); network != "" && network != NetworkCustom {
		chain, err := ChainConfigForNetwork(network)
		if err != nil {
			return cfg, err
		}
		cfg.Chain = chain
	} else if network == NetworkCustom {
		cfg.Chain.Network = NetworkCustom
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			func(f reflect.Type, t reflect.Type, data any) (any, error) {
				if t == reflect.TypeFor[DurationWrapper]() && f.Kind() == reflect.String {
					if str, ok := data.(string); ok {
						duration, err := time.ParseDuration(str)
						if err != nil {
							return nil, err
						}
						return DurationWrapper{Duration: duration}, nil
					}
				}
				if t == reflect.TypeFor[DurationWrapper]() && f == reflect.TypeFor[time.Duration]() {
					return DurationWrapper{Duration: data.(time.Duration)}, nil
				}
				return data, nil
			},
			// hashes and addresses are written as hex strings
			mapstructure.TextUnmarshallerHookFunc(),
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, errors.Join(ErrReadYaml, fmt.Errorf("failed creating decoder: %w", err))
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return cfg, errors.Join(ErrReadYaml, fmt.Errorf("failed decoding viper: %w", err))
	}

	return cfg, nil
}

func bindFlags(basename string, cmd *cobra.Command, v *viper.Viper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bindFlags failed: %v", r)
		}
	}()

	bind := func(f *pflag.Flag) {
		flagName := strings.TrimPrefix(f.Name, FlagPrefixEvderive)

		// Environment variables can't have dots or dashes in them, so bind them to their equivalent
		// keys with underscores, e.g. --evderive.log.level to REPLAY_LOG_LEVEL
		envName := strings.NewReplacer(".", "_", "-", "_").Replace(flagName)
		err = v.BindEnv(flagName, fmt.Sprintf("%s_%s", strings.ToUpper(basename), strings.ToUpper(envName)))
		if err != nil {
			panic(err)
		}

		// unset flags must not shadow the preset or the file
		if f.Changed {
			err = v.BindPFlag(flagName, f)
			if err != nil {
				panic(err)
			}
		}
	}

	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)

	return err
}
