package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the full service configuration written to config.yml.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Log      LogConfig      `yaml:"log"`
	Transfer TransferConfig `yaml:"transfer"`
	Docker   DockerConfig   `yaml:"docker"`
	Stacks   StacksConfig   `yaml:"stacks"`
	Fstab    FstabConfig    `yaml:"fstab"`
	Service  ServiceConfig  `yaml:"service"`
	Auth     AuthConfig     `yaml:"auth"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PathsConfig locates the live tree and its mirror.
type PathsConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	LogFile     string `yaml:"log_file"`
}

type LogConfig struct {
	MaxLines  int `yaml:"max_lines"`
	TailLines int `yaml:"tail_lines"`
}

type TransferConfig struct {
	RsyncBin string   `yaml:"rsync_bin"`
	Excludes []string `yaml:"excludes"`
}

type DockerConfig struct {
	Bin           string `yaml:"bin"`
	SelfContainer string `yaml:"self_container"`
	SharedNetwork string `yaml:"shared_network"`
}

type StacksConfig struct {
	Self            string         `yaml:"self"`
	Pattern         string         `yaml:"pattern"`
	ComposeFiles    []string       `yaml:"compose_files"`
	Priorities      map[string]int `yaml:"priorities"`
	DefaultPriority int            `yaml:"default_priority"`
}

type FstabConfig struct {
	Template    string `yaml:"template"`
	Target      string `yaml:"target"`
	MarkerStart string `yaml:"marker_start"`
	MarkerEnd   string `yaml:"marker_end"`
	HostExec    string `yaml:"host_exec"`
	HelperImage string `yaml:"helper_image"`
	MountRoot   string `yaml:"mount_root"`
}

type ServiceConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

type AuthConfig struct {
	Mode         string `yaml:"mode"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// ScheduleConfig holds an optional cron expression for unattended backups.
// Empty means backups only run on request.
type ScheduleConfig struct {
	Backup string `yaml:"backup,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration the container image ships with.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Source:      DefaultSource,
			Destination: DefaultDestination,
			LogFile:     DefaultLogFile,
		},
		Log: LogConfig{
			MaxLines:  DefaultLogMaxLines,
			TailLines: DefaultLogTailLines,
		},
		Transfer: TransferConfig{
			RsyncBin: "rsync",
			Excludes: append([]string(nil), DefaultExcludes...),
		},
		Docker: DockerConfig{
			Bin:           "docker",
			SelfContainer: DefaultSelfContainer,
			SharedNetwork: DefaultSharedNetwork,
		},
		Stacks: StacksConfig{
			Self:            DefaultSelfStack,
			Pattern:         DefaultStackPattern,
			ComposeFiles:    []string{DefaultComposeFile},
			Priorities:      map[string]int{"stack-infra": 0, "stack-auth": 1},
			DefaultPriority: DefaultStackPriority,
		},
		Fstab: FstabConfig{
			Template:    DefaultFstabTemplate,
			Target:      DefaultFstabTarget,
			MarkerStart: DefaultMarkerStart,
			MarkerEnd:   DefaultMarkerEnd,
			HostExec:    HostExecDocker,
			HelperImage: DefaultHelperImage,
			MountRoot:   DefaultMountRoot,
		},
		Service: ServiceConfig{
			BindAddress: DefaultBindAddress,
			Port:        DefaultPort,
		},
		Auth:    AuthConfig{Mode: AuthModeNone},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads config.yml on top of Default(). A missing file is only
// tolerated when allowMissing is set, so the container can run without one.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and values are in range.
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Paths.Destination == "" {
		return fmt.Errorf("paths.destination is required")
	}
	if filepath.Clean(c.Paths.Source) == filepath.Clean(c.Paths.Destination) {
		return fmt.Errorf("paths.source and paths.destination must differ")
	}
	if c.Paths.LogFile == "" {
		return fmt.Errorf("paths.log_file is required")
	}

	if c.Log.MaxLines < 1 {
		return fmt.Errorf("log.max_lines must be >= 1")
	}
	if c.Log.TailLines < 1 {
		return fmt.Errorf("log.tail_lines must be >= 1")
	}

	if c.Transfer.RsyncBin == "" {
		return fmt.Errorf("transfer.rsync_bin is required")
	}
	for _, e := range c.Transfer.Excludes {
		// An exclude starting with '-' would be parsed by rsync as an option.
		if e == "" || strings.HasPrefix(e, "-") {
			return fmt.Errorf("transfer.excludes: invalid pattern %q", e)
		}
	}

	if c.Docker.Bin == "" {
		return fmt.Errorf("docker.bin is required")
	}
	if c.Docker.SelfContainer == "" {
		return fmt.Errorf("docker.self_container is required")
	}

	if c.Stacks.Pattern == "" {
		return fmt.Errorf("stacks.pattern is required")
	}
	if _, err := filepath.Match(c.Stacks.Pattern, ""); err != nil {
		return fmt.Errorf("stacks.pattern: %w", err)
	}
	if len(c.Stacks.ComposeFiles) == 0 {
		return fmt.Errorf("at least one stacks.compose_files entry is required")
	}

	if c.Fstab.MarkerStart == "" || c.Fstab.MarkerEnd == "" {
		return fmt.Errorf("fstab.marker_start and fstab.marker_end are required")
	}
	if c.Fstab.MarkerStart == c.Fstab.MarkerEnd {
		return fmt.Errorf("fstab.marker_start and fstab.marker_end must differ")
	}
	switch c.Fstab.HostExec {
	case HostExecDocker:
		if c.Fstab.HelperImage == "" || c.Fstab.MountRoot == "" {
			return fmt.Errorf("fstab.helper_image and fstab.mount_root are required when host_exec is %q", HostExecDocker)
		}
	case HostExecLocal:
		// ok
	default:
		return fmt.Errorf("fstab.host_exec must be %q or %q", HostExecDocker, HostExecLocal)
	}

	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port must be between 1 and 65535")
	}
	if c.Service.BindAddress == "" {
		return fmt.Errorf("service.bind_address is required")
	}

	switch c.Auth.Mode {
	case AuthModeNone:
		// ok
	case AuthModePassword:
		if c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth.password_hash is required when auth.mode is %q", AuthModePassword)
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q", AuthModeNone, AuthModePassword)
	}

	return nil
}

// Save writes the config to the given path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
