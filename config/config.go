package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-signal/globals"
)

const (
	envPrefix = "LSSIGNAL"

	defaultAddr              = "localhost:8000"
	defaultLogLevel          = "INFO"
	defaultSendBufferSize    = 256
	defaultInboundBufferSize = 1000
	defaultMaxMessageSize    = 64 * 1024 // enough for SDP offers
	defaultMaxChatLength     = 5000
	defaultWriteWait         = 10 * time.Second
	defaultPongWait          = 60 * time.Second
	defaultPingPeriod        = (defaultPongWait * 9) / 10
	defaultShutdownTimeout   = 30 * time.Second
	defaultStatsCron         = "@every 5m"
)

// Config is the global configuration object which is filled via the configuration file, the
// environment (LSSIGNAL_*) and the command line.
type Config struct {
	Addr           string   `mapstructure:"addr"`
	SSLCert        string   `mapstructure:"ssl_cert"`
	SSLKey         string   `mapstructure:"ssl_key"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty allows every origin

	// SendBufferSize is the size of each connection's outbound queue. A peer whose queue is full is
	// treated as unreachable and the frame is dropped.
	SendBufferSize    int   `mapstructure:"send_buffer_size"`
	InboundBufferSize int   `mapstructure:"inbound_buffer_size"`
	MaxMessageSize    int64 `mapstructure:"max_message_size"`
	MaxChatLength     int   `mapstructure:"max_chat_length"`

	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// StatsCron is a cron spec for the periodic statistics log line, empty disables it.
	StatsCron string `mapstructure:"stats_cron"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Addr:              defaultAddr,
		LogLevel:          defaultLogLevel,
		AllowedOrigins:    []string{},
		SendBufferSize:    defaultSendBufferSize,
		InboundBufferSize: defaultInboundBufferSize,
		MaxMessageSize:    defaultMaxMessageSize,
		MaxChatLength:     defaultMaxChatLength,
		WriteWait:         defaultWriteWait,
		PongWait:          defaultPongWait,
		PingPeriod:        defaultPingPeriod,
		ShutdownTimeout:   defaultShutdownTimeout,
		StatsCron:         defaultStatsCron,
	}
}

// Validate checks the values which would otherwise break the connection loops.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer_size must be positive, got %d", c.SendBufferSize))
	}
	if c.InboundBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("inbound_buffer_size must be positive, got %d", c.InboundBufferSize))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize))
	}
	if c.MaxChatLength <= 0 {
		errs = append(errs, fmt.Errorf("max_chat_length must be positive, got %d", c.MaxChatLength))
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 || c.PingPeriod <= 0 {
		errs = append(errs, errors.New("write_wait, pong_wait and ping_period must be positive"))
	}
	if c.PingPeriod >= c.PongWait {
		errs = append(errs, fmt.Errorf("ping_period (%s) must be less than pong_wait (%s)", c.PingPeriod, c.PongWait))
	}
	if c.StatsCron != "" {
		if _, err := cron.ParseStandard(c.StatsCron); err != nil {
			errs = append(errs, fmt.Errorf("invalid stats_cron %q: %w", c.StatsCron, err))
		}
	}
	if (c.SSLCert == "") != (c.SSLKey == "") {
		errs = append(errs, errors.New("ssl_cert and ssl_key must be set together"))
	}
	return errors.Join(errs...)
}

// GetFlagSet returns the command line flags which override configuration values.
func GetFlagSet() *pflag.FlagSet {
	d := Default()
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("addr", d.Addr, "ws service address (including port)")
	flagSet.String("ssl-cert", "", "SSL cert for websocket (optional)")
	flagSet.String("ssl-key", "", "SSL key for websocket (optional)")
	flagSet.StringP("log-level", "l", d.LogLevel, "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.StringSlice("allowed-origins", nil, "allowed websocket origins (default: all)")
	flagSet.String("stats-cron", d.StatsCron, "cron spec of the statistics log, empty to disable")
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("ssl_cert", d.SSLCert)
	v.SetDefault("ssl_key", d.SSLKey)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("send_buffer_size", d.SendBufferSize)
	v.SetDefault("inbound_buffer_size", d.InboundBufferSize)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("max_chat_length", d.MaxChatLength)
	v.SetDefault("write_wait", d.WriteWait)
	v.SetDefault("pong_wait", d.PongWait)
	v.SetDefault("ping_period", d.PingPeriod)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("stats_cron", d.StatsCron)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. Environment variables
// (LSSIGNAL_<KEY>) and changed flags of flagSet take precedence. flagSet may be nil.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		if err := v.BindPFlags(flagSet); err != nil {
			globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		if err := v.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", configPath, err)
		}
	}
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
