// Package config provides configuration management for the lifecycle
// controller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
)

// Default configuration values.
const (
	DefaultConfigDir  = ".config/divinepic"
	DefaultConfigFile = "config.yaml"
	DefaultDataDir    = ".local/share/divinepic"

	defaultServicePort = 8000
	defaultHealthPath  = "/health"
	defaultProcessPath = "/upload-images/"
	defaultRegion      = "ap-south-1"
	defaultListenAddr  = ":8080"
	defaultGPUFloor    = 10.0
	defaultLookback    = 15 * time.Minute
)

// Sentinel errors for configuration operations.
var (
	ErrInvalidKey         = errors.New("invalid configuration key")
	ErrInvalidEnvironment = errors.New("invalid environment name")
	ErrInvalidDeviceClass = errors.New("invalid device class")
)

// validEnvironments contains the allowed environment names (unexported).
var validEnvironments = map[string]bool{
	"test":       true,
	"production": true,
}

// validDeviceClasses contains the allowed device class names (unexported).
var validDeviceClasses = map[string]bool{
	"cpu": true,
	"gpu": true,
}

// validKeys is built once from Config struct reflection.
var validKeys = buildValidKeys()

// validate is the shared validator instance.
var validate = validator.New()

// Config represents the full controller configuration.
type Config struct {
	Instance InstanceConfig `mapstructure:"instance" validate:"required"`
	Service  ServiceConfig  `mapstructure:"service"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Idle     IdleConfig     `mapstructure:"idle"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Server   ServerConfig   `mapstructure:"server"`
}

// InstanceConfig identifies the managed instance.
type InstanceConfig struct {
	ID          string `mapstructure:"id" validate:"required"`
	Region      string `mapstructure:"region" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,oneof=test production"`
	DeviceClass string `mapstructure:"device_class" validate:"required,oneof=cpu gpu"`
}

// ServiceConfig describes the inference service running on the instance.
type ServiceConfig struct {
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	HealthPath  string `mapstructure:"health_path" validate:"required"`
	ProcessPath string `mapstructure:"process_path" validate:"required"`
}

// ProbeConfig holds readiness probe overrides. Zero values fall back to the
// device-class defaults.
type ProbeConfig struct {
	Warmup         time.Duration `mapstructure:"warmup"`
	Interval       time.Duration `mapstructure:"interval"`
	Attempts       int           `mapstructure:"attempts" validate:"min=0"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// IdleConfig holds idle-shutdown settings. Zero threshold and interval fall
// back to the environment defaults.
type IdleConfig struct {
	Threshold       time.Duration `mapstructure:"threshold"`
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
	Lookback        time.Duration `mapstructure:"lookback"`
	GPUFloorPercent float64       `mapstructure:"gpu_floor_percent" validate:"min=0,max=100"`
}

// RelayConfig holds processing relay settings. A zero timeout falls back to
// the environment default.
type RelayConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// JournalConfig holds the lifecycle journal location.
type JournalConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig holds trigger server settings.
type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required"`
}

// Validate checks the configuration for errors using struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Environment returns the typed environment.
func (c *Config) Environment() compute.Environment {
	return compute.Environment(c.Instance.Environment)
}

// DeviceClass returns the typed device class.
func (c *Config) DeviceClass() compute.DeviceClass {
	return compute.DeviceClass(c.Instance.DeviceClass)
}

// Loader provides configuration loading and saving.
type Loader struct {
	v       *viper.Viper
	path    string
	homeDir string
}

// NewLoader creates a new configuration loader.
func NewLoader() (*Loader, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}

	configPath := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Environment variable binding
	v.SetEnvPrefix("DIVINEPIC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific env vars to config keys.
	// We intentionally ignore errors here as BindEnv only fails if called with zero arguments.
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("instance.id", "DIVINEPIC_INSTANCE_ID")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("instance.region", "DIVINEPIC_REGION")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("instance.environment", "DIVINEPIC_ENVIRONMENT")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("instance.device_class", "DIVINEPIC_DEVICE_CLASS")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("server.listen", "DIVINEPIC_LISTEN")

	l := &Loader{
		v:       v,
		path:    configPath,
		homeDir: home,
	}

	// Set defaults before any config reading
	l.setDefaults()

	return l, nil
}

// setDefaults sets all environment-independent defaults using Viper. The
// environment-dependent values (idle cadence, relay timeout) are filled in
// after unmarshaling, once the environment is known.
func (l *Loader) setDefaults() {
	l.v.SetDefault("instance.id", "")
	l.v.SetDefault("instance.region", defaultRegion)
	l.v.SetDefault("instance.environment", "test")
	l.v.SetDefault("instance.device_class", "cpu")
	l.v.SetDefault("service.port", defaultServicePort)
	l.v.SetDefault("service.health_path", defaultHealthPath)
	l.v.SetDefault("service.process_path", defaultProcessPath)
	l.v.SetDefault("idle.lookback", defaultLookback.String())
	l.v.SetDefault("idle.gpu_floor_percent", defaultGPUFloor)
	l.v.SetDefault("journal.path", "~/.local/share/divinepic/journal.json")
	l.v.SetDefault("server.listen", defaultListenAddr)
}

// Load reads the configuration file, creating defaults if it doesn't exist.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		if err := l.createDefault(); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Journal.Path = l.expandPath(cfg.Journal.Path)
	applyEnvironmentDefaults(&cfg)

	return &cfg, nil
}

// applyEnvironmentDefaults fills the cadence values that depend on which
// environment the instance serves. Test tolerates a longer idle window;
// production cycles faster and gives processing more headroom.
func applyEnvironmentDefaults(cfg *Config) {
	threshold, interval, relayTimeout := 2*time.Hour, 10*time.Minute, 10*time.Minute
	if cfg.Instance.Environment == "production" {
		threshold, interval, relayTimeout = time.Hour, 5*time.Minute, 15*time.Minute
	}

	if cfg.Idle.Threshold == 0 {
		cfg.Idle.Threshold = threshold
	}
	if cfg.Idle.SampleInterval == 0 {
		cfg.Idle.SampleInterval = interval
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = relayTimeout
	}
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Get returns a configuration value by dot-notation key.
func (l *Loader) Get(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return l.v.Get(key), nil
}

// Set sets a configuration value by dot-notation key.
func (l *Loader) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if key == "instance.environment" && value != "" {
		if !validEnvironments[value] {
			return fmt.Errorf("%w: %s (valid: test, production)", ErrInvalidEnvironment, value)
		}
	}

	if key == "instance.device_class" && value != "" {
		if !validDeviceClasses[value] {
			return fmt.Errorf("%w: %s (valid: cpu, gpu)", ErrInvalidDeviceClass, value)
		}
	}

	l.v.Set(key, value)
	return l.v.WriteConfig()
}

// createDefault writes the default configuration file using Viper.
func (l *Loader) createDefault() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return l.v.SafeWriteConfigAs(l.path)
}

// expandPath replaces ~ with the home directory.
func (l *Loader) expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(l.homeDir, path[2:])
	}
	if path == "~" {
		return l.homeDir
	}
	return path
}

// ValidateKey checks if a key is a valid configuration key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	if validKeys[key] {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrInvalidKey, key)
}

// buildValidKeys builds the set of valid keys from Config struct using reflection.
func buildValidKeys() map[string]bool {
	keys := make(map[string]bool)
	addKeysFromType(reflect.TypeOf(Config{}), "", keys)
	return keys
}

// addKeysFromType recursively adds keys from a struct type.
func addKeysFromType(t reflect.Type, prefix string, keys map[string]bool) {
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		keys[key] = true

		if field.Type.Kind() == reflect.Struct {
			addKeysFromType(field.Type, key, keys)
		}
	}
}

// IsValidEnvironment is a package-level helper for checking environment validity.
func IsValidEnvironment(name string) bool {
	return validEnvironments[name]
}

// IsValidDeviceClass is a package-level helper for checking device class validity.
func IsValidDeviceClass(name string) bool {
	return validDeviceClasses[name]
}
