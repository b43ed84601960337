// Package config loads daemon settings from environment variables with
// sane defaults and validates them before anything starts.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ListenAddr is the loopback address the control API binds to.
	ListenAddr string `koanf:"listen_addr" validate:"required,ip_port"`

	// HostsPath is the system hosts table the daemon manages a region of.
	HostsPath string `koanf:"hosts_path" validate:"required"`

	// StatePath is where the durable state document lives.
	StatePath string `koanf:"state_path" validate:"required"`

	// JournalPath is where the activity journal database lives.
	JournalPath string `koanf:"journal_path" validate:"required"`

	// JournalMax caps how many journal events are kept.
	JournalMax uint `koanf:"journal_max" validate:"required,gte=1"`

	// RedirectIP is the address blocked hostnames resolve to.
	RedirectIP string `koanf:"redirect_ip" validate:"required,ip"`

	// ReconcileInterval is the cadence of the enforcement tick.
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"required,gte=1s,lte=10m"`

	// MonitorInterval is the cadence of informational DNS lookups for
	// blocked sites. Zero disables the monitor.
	MonitorInterval time.Duration `koanf:"monitor_interval" validate:"omitempty,gte=30s,lte=1h"`

	// MonitorUpstream is the resolver the monitor queries, in ip:port
	// form. Empty selects the first nameserver from the system resolver
	// configuration.
	MonitorUpstream string `koanf:"monitor_upstream" validate:"omitempty,ip_port"`

	// CacheSize bounds the monitor's resolution cache.
	CacheSize uint `koanf:"cache_size" validate:"required,gte=1"`
}

// DEFAULT_APP_CONFIG defines the default daemon configuration: loopback
// control API on 9099, the platform hosts table, per-user state under
// ~/.blocking, a 30 second enforcement tick and a five minute monitor.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:               "prod",
	LogLevel:          "info",
	ListenAddr:        "127.0.0.1:9099",
	HostsPath:         defaultHostsPath(),
	StatePath:         filepath.Join(defaultDataDir(), "state.json"),
	JournalPath:       filepath.Join(defaultDataDir(), "journal.db"),
	JournalMax:        1000,
	RedirectIP:        "127.0.0.1",
	ReconcileInterval: 30 * time.Second,
	MonitorInterval:   5 * time.Minute,
	MonitorUpstream:   "",
	CacheSize:         512,
}

func defaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blocking"
	}
	return filepath.Join(home, ".blocking")
}

// validIPPort validates whether the provided field value is a valid IP
// address and port combination in "IP:Port" format.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables with the prefix "BLOCKING_",
// lowercasing keys and trimming values. A package variable so tests can
// swap it out.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "BLOCKING_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "BLOCKING_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into the provided Koanf instance
// using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ip_port" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables over defaults and validates the
// result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config against the same rules Load applies. Called
// again after command line flags override individual fields.
func (c *AppConfig) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
