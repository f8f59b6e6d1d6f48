package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete texsyncd configuration
type Config struct {
	Repo  RepoConfig  `yaml:"repo"`
	Paths PathsConfig `yaml:"paths"`
	Sync  SyncConfig  `yaml:"sync"`
	Auth  AuthConfig  `yaml:"auth"`
	Serve ServeConfig `yaml:"serve"`
}

// RepoConfig identifies the GitHub repository and subtree to mirror
type RepoConfig struct {
	Owner      string `yaml:"owner"`
	Name       string `yaml:"name"`
	Ref        string `yaml:"ref"`
	SparsePath string `yaml:"sparse_path"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	MirrorDir    string `yaml:"mirror_dir"`
	MirrorSubdir string `yaml:"mirror_subdir"`
	StateDir     string `yaml:"state_dir"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// AuthConfig configures GitHub API authentication
type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.Owner = os.ExpandEnv(c.Repo.Owner)
	c.Repo.Name = os.ExpandEnv(c.Repo.Name)
	c.Repo.Ref = os.ExpandEnv(c.Repo.Ref)
	c.Repo.SparsePath = os.ExpandEnv(c.Repo.SparsePath)
	c.Paths.MirrorDir = os.ExpandEnv(c.Paths.MirrorDir)
	c.Paths.MirrorSubdir = os.ExpandEnv(c.Paths.MirrorSubdir)
	c.Paths.StateDir = os.ExpandEnv(c.Paths.StateDir)
	c.Auth.TokenFile = os.ExpandEnv(c.Auth.TokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Ref == "" {
		c.Repo.Ref = "main"
	}
	if c.Paths.MirrorSubdir == "" && c.Repo.SparsePath != "" {
		// Mirror the last component of the sparse path by default,
		// e.g. textures/SLUS-21214 -> <mirror_dir>/SLUS-21214
		c.Paths.MirrorSubdir = c.Repo.SparsePath[strings.LastIndex(c.Repo.SparsePath, "/")+1:]
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 1
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = "127.0.0.1:8484"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.Owner == "" {
		return fmt.Errorf("repo.owner is required")
	}
	if c.Repo.Name == "" {
		return fmt.Errorf("repo.name is required")
	}
	if c.Repo.SparsePath == "" {
		return fmt.Errorf("repo.sparse_path is required")
	}
	if strings.HasPrefix(c.Repo.SparsePath, "/") || strings.HasSuffix(c.Repo.SparsePath, "/") {
		return fmt.Errorf("repo.sparse_path must be relative without leading or trailing slashes")
	}
	if c.Paths.MirrorDir == "" {
		return fmt.Errorf("paths.mirror_dir is required")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir is required")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1")
	}
	if c.Serve.Enabled && c.Serve.GitHubWebhookSecretFile == "" {
		return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
	}
	return nil
}

// MirrorRoot returns the directory kept in sync with the remote subtree
func (c *Config) MirrorRoot() string {
	return filepath.Join(c.Paths.MirrorDir, c.Paths.MirrorSubdir)
}

// StateFilePath returns the path to the sync state file
func (c *Config) StateFilePath() string {
	return filepath.Join(c.Paths.StateDir, "state.json")
}

// Token reads the GitHub access token from the configured token file.
// An empty token is valid; the API then works unauthenticated at a
// lower rate limit.
func (c *Config) Token() (string, error) {
	if c.Auth.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
