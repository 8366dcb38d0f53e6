// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for rqops. Every command loads
// one of these; the zero-argument deploy contract is satisfied by the
// built-in defaults rooted at ${HOME}/RQ.
type Config struct {
	// Root is the base directory for all deployment data. The fixed
	// three-slot layout lives under it: staging/, prod/, and the
	// prod_<YYYYMMDD> dated backups.
	Root string `yaml:"root"`

	// Deploy configures the deployment pipeline.
	Deploy DeployConfig `yaml:"deploy"`

	// DNS configures the A-record reconciliation job.
	DNS DNSConfig `yaml:"dns"`

	// Cert configures the certificate renewal job.
	Cert CertConfig `yaml:"cert"`

	// Schedule configures long-running schedule mode.
	Schedule ScheduleConfig `yaml:"schedule"`
}

// DeployConfig configures the deployment pipeline.
type DeployConfig struct {
	// Staging is the continuously-synchronized working copy. Must be
	// a git clone with an upstream.
	Staging string `yaml:"staging"`

	// Production is the promoted, running copy.
	Production string `yaml:"production"`

	// BackupRoot is where dated backups of previous production
	// directories are kept. Defaults to Root, making backups siblings
	// of prod/ as prod_<YYYYMMDD>.
	BackupRoot string `yaml:"backup_root"`

	// Session is the reserved tmux session name hosting the service.
	Session string `yaml:"session"`

	// TmuxSocket selects a dedicated tmux server socket. Empty means
	// the default server, where operators expect to find the session.
	TmuxSocket string `yaml:"tmux_socket"`

	// BuildCommand is the build argv, run in BuildDir inside the
	// staged tree.
	BuildCommand []string `yaml:"build_command"`

	// BuildDir is the directory the build runs in, relative to the
	// tree root.
	BuildDir string `yaml:"build_dir"`

	// TestCommand optionally gates promotion after the build. Empty
	// disables the test phase.
	TestCommand []string `yaml:"test_command"`

	// Artifact is the built executable's path relative to the tree
	// root. The service is started from the promoted copy of this
	// path.
	Artifact string `yaml:"artifact"`

	// Ledger is the SQLite database recording every run.
	Ledger string `yaml:"ledger"`

	// Lock is the run lease file. Any rqops invocation of the deploy
	// pipeline takes it, whether triggered by cron or schedule mode.
	Lock string `yaml:"lock"`

	// RetainBackups is how many dated backups `rqops prune` keeps.
	RetainBackups int `yaml:"retain_backups"`

	// ReadyTimeout bounds the wait for a new session's shell to
	// become ready for input. ReadyPoll is the poll interval.
	ReadyTimeout string `yaml:"ready_timeout"`
	ReadyPoll    string `yaml:"ready_poll"`
}

// DNSConfig configures the A-record reconciliation job.
type DNSConfig struct {
	// ProbeURL returns the current WAN IP as a plain-text body.
	ProbeURL string `yaml:"probe_url"`

	// APIBase is the DNS provider's API root.
	APIBase string `yaml:"api_base"`

	// TokenFile holds the provider bearer token. Must be mode 0600.
	TokenFile string `yaml:"token_file"`

	// DomainsFile is a JSONC table mapping domain name to zone and
	// record identifiers.
	DomainsFile string `yaml:"domains_file"`
}

// CertConfig configures the certificate renewal job.
type CertConfig struct {
	// StatusCommand prints the CA CLI's certificate inventory
	// (certbot certificates shape).
	StatusCommand []string `yaml:"status_command"`

	// RenewCommand renews one certificate; the certificate name is
	// appended as "--cert-name <name>".
	RenewCommand []string `yaml:"renew_command"`

	// ThresholdDays triggers renewal at or below this many days to
	// expiry.
	ThresholdDays int `yaml:"threshold_days"`

	// LiveDir is where the CA CLI maintains current key/chain files,
	// one subdirectory per certificate name.
	LiveDir string `yaml:"live_dir"`

	// InstallDir is where renewed key/chain files are copied for the
	// service, permissions tightened to 0600.
	InstallDir string `yaml:"install_dir"`
}

// ScheduleConfig configures schedule mode. Cron expressions are
// standard 5-field; empty disables that task.
type ScheduleConfig struct {
	DeployCron string `yaml:"deploy_cron"`
	DNSCron    string `yaml:"dns_cron"`
	CertCron   string `yaml:"cert_cron"`

	// HeartbeatInterval is how often the scheduler logs a liveness
	// line.
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// Default returns the built-in configuration rooted at ${HOME}/RQ.
// This is what a zero-argument `rqops deploy` runs with.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, "RQ")

	return &Config{
		Root: root,
		Deploy: DeployConfig{
			Staging:       filepath.Join(root, "staging"),
			Production:    filepath.Join(root, "prod"),
			BackupRoot:    root,
			Session:       "rqcore",
			BuildCommand:  []string{"cargo", "build", "--release"},
			BuildDir:      "src/rqcoresrv",
			Artifact:      "src/rqcoresrv/target/release/rqcoresrv",
			Ledger:        filepath.Join(root, "state", "deploy.db"),
			Lock:          filepath.Join(root, "state", "deploy.lock"),
			RetainBackups: 14,
			ReadyTimeout:  "10s",
			ReadyPoll:     "200ms",
		},
		DNS: DNSConfig{
			ProbeURL:    "https://checkip.amazonaws.com/",
			APIBase:     "https://api.cloudflare.com/client/v4",
			TokenFile:   filepath.Join(root, "sensitive_data", "dns_token"),
			DomainsFile: filepath.Join(root, "dns_domains.jsonc"),
		},
		Cert: CertConfig{
			StatusCommand: []string{"certbot", "certificates"},
			RenewCommand:  []string{"certbot", "renew"},
			ThresholdDays: 35,
			LiveDir:       "/etc/letsencrypt/live",
			InstallDir:    filepath.Join(root, "sensitive_data", "https_certs"),
		},
		Schedule: ScheduleConfig{
			DeployCron:        "30 5 * * *",
			DNSCron:           "*/15 * * * *",
			CertCron:          "0 4 * * 0",
			HeartbeatInterval: "1m",
		},
	}
}

// Load loads configuration from the RQOPS_CONFIG environment variable
// when set, and otherwise returns the defaults. Use LoadFile when the
// caller has an explicit --config path.
func Load() (*Config, error) {
	if path := os.Getenv("RQOPS_CONFIG"); path != "" {
		return LoadFile(path)
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file, merged over the
// defaults. The config file is the single source of truth; environment
// variables do not override its values. The only expansion performed
// is ${VAR} and ${VAR:-default} in path fields, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
// RQ_ROOT refers to the configured root, so relative layouts can be
// written once:
//
//	deploy:
//	  staging: ${RQ_ROOT}/staging
func (c *Config) expandVariables() {
	vars := map[string]string{
		"RQ_ROOT": c.Root,
		"HOME":    os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["RQ_ROOT"] = c.Root // update for dependent paths

	for _, field := range []*string{
		&c.Deploy.Staging, &c.Deploy.Production, &c.Deploy.BackupRoot,
		&c.Deploy.Ledger, &c.Deploy.Lock, &c.Deploy.TmuxSocket,
		&c.DNS.TokenFile, &c.DNS.DomainsFile,
		&c.Cert.LiveDir, &c.Cert.InstallDir,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Root == "" {
		errs = append(errs, fmt.Errorf("root is required"))
	}
	if c.Deploy.Staging == "" {
		errs = append(errs, fmt.Errorf("deploy.staging is required"))
	}
	if c.Deploy.Production == "" {
		errs = append(errs, fmt.Errorf("deploy.production is required"))
	}
	if c.Deploy.Staging != "" && c.Deploy.Staging == c.Deploy.Production {
		errs = append(errs, fmt.Errorf("deploy.staging and deploy.production must differ"))
	}
	if c.Deploy.Session == "" {
		errs = append(errs, fmt.Errorf("deploy.session is required"))
	}
	if len(c.Deploy.BuildCommand) == 0 {
		errs = append(errs, fmt.Errorf("deploy.build_command is required"))
	}
	if c.Deploy.Artifact == "" {
		errs = append(errs, fmt.Errorf("deploy.artifact is required"))
	} else if filepath.IsAbs(c.Deploy.Artifact) {
		errs = append(errs, fmt.Errorf("deploy.artifact must be relative to the tree root"))
	}
	if c.Deploy.RetainBackups < 1 {
		errs = append(errs, fmt.Errorf("deploy.retain_backups must be at least 1"))
	}
	if _, err := c.ReadyTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("deploy.ready_timeout: %w", err))
	}
	if _, err := c.ReadyPoll(); err != nil {
		errs = append(errs, fmt.Errorf("deploy.ready_poll: %w", err))
	}
	if c.Cert.ThresholdDays < 1 {
		errs = append(errs, fmt.Errorf("cert.threshold_days must be at least 1"))
	}
	if len(c.Cert.StatusCommand) == 0 {
		errs = append(errs, fmt.Errorf("cert.status_command is required"))
	}
	if len(c.Cert.RenewCommand) == 0 {
		errs = append(errs, fmt.Errorf("cert.renew_command is required"))
	}
	if _, err := c.HeartbeatInterval(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.heartbeat_interval: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ReadyTimeout returns the parsed session readiness timeout.
func (c *Config) ReadyTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Deploy.ReadyTimeout)
}

// ReadyPoll returns the parsed session readiness poll interval.
func (c *Config) ReadyPoll() (time.Duration, error) {
	return time.ParseDuration(c.Deploy.ReadyPoll)
}

// HeartbeatInterval returns the parsed scheduler heartbeat interval.
func (c *Config) HeartbeatInterval() (time.Duration, error) {
	return time.ParseDuration(c.Schedule.HeartbeatInterval)
}

// ArtifactPath returns the absolute path of the build artifact inside
// the given deployment tree.
func (c *Config) ArtifactPath(treeRoot string) string {
	return filepath.Join(treeRoot, filepath.FromSlash(c.Deploy.Artifact))
}

// EnsurePaths creates the directories the pipeline writes to. The
// staging and production trees themselves are not created — their
// absence is a deployment-state condition the pipeline must observe,
// not mask.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Root,
		c.Deploy.BackupRoot,
		filepath.Dir(c.Deploy.Ledger),
		filepath.Dir(c.Deploy.Lock),
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
