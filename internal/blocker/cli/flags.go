package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dzli1/blocking/internal/blocker/config"
)

// Flags carries the command line overrides for the daemon configuration.
// Environment variables fill the config first; only flags the user
// explicitly set win over them.
type Flags struct {
	Env               string
	LogLevel          string
	ListenAddr        string
	HostsPath         string
	StatePath         string
	JournalPath       string
	RedirectIP        string
	ReconcileInterval time.Duration
	MonitorInterval   time.Duration
	MonitorUpstream   string
}

// Register declares the flags on cmd, defaulted from the compiled-in
// configuration.
func (f *Flags) Register(cmd *cobra.Command) {
	def := config.DEFAULT_APP_CONFIG
	fs := cmd.Flags()
	fs.StringVar(&f.Env, "env", def.Env, "runtime environment (dev or prod)")
	fs.StringVar(&f.LogLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&f.ListenAddr, "listen", def.ListenAddr, "control API listen address")
	fs.StringVar(&f.HostsPath, "hosts", def.HostsPath, "hosts table path")
	fs.StringVar(&f.StatePath, "state", def.StatePath, "state document path")
	fs.StringVar(&f.JournalPath, "journal", def.JournalPath, "journal database path")
	fs.StringVar(&f.RedirectIP, "redirect-ip", def.RedirectIP, "address blocked hostnames resolve to")
	fs.DurationVar(&f.ReconcileInterval, "reconcile-every", def.ReconcileInterval, "how often to re-assert the hosts table")
	fs.DurationVar(&f.MonitorInterval, "monitor-every", def.MonitorInterval, "how often to resolve blocked sites upstream (0 disables)")
	fs.StringVar(&f.MonitorUpstream, "monitor-upstream", def.MonitorUpstream, "DNS server for the monitor (host:port)")
}

// Apply copies explicitly set flags over cfg, leaving environment
// values alone otherwise.
func (f *Flags) Apply(cmd *cobra.Command, cfg *config.AppConfig) {
	fs := cmd.Flags()
	if fs.Changed("env") {
		cfg.Env = f.Env
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if fs.Changed("listen") {
		cfg.ListenAddr = f.ListenAddr
	}
	if fs.Changed("hosts") {
		cfg.HostsPath = f.HostsPath
	}
	if fs.Changed("state") {
		cfg.StatePath = f.StatePath
	}
	if fs.Changed("journal") {
		cfg.JournalPath = f.JournalPath
	}
	if fs.Changed("redirect-ip") {
		cfg.RedirectIP = f.RedirectIP
	}
	if fs.Changed("reconcile-every") {
		cfg.ReconcileInterval = f.ReconcileInterval
	}
	if fs.Changed("monitor-every") {
		cfg.MonitorInterval = f.MonitorInterval
	}
	if fs.Changed("monitor-upstream") {
		cfg.MonitorUpstream = f.MonitorUpstream
	}
}
