// Package config resolves server configuration from, in increasing
// precedence order: built-in defaults, an optional YAML file, then CLI
// flags — mirroring the teacher's internal/config+internal/cli split,
// except the YAML layer is a real gopkg.in/yaml.v3 parse instead of the
// teacher's hand-rolled (and, in the teacher, never actually wired in)
// line-based YAML reader.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs to boot, per spec.md §6.
type Config struct {
	Port int `yaml:"port"`

	ReplicaOfHost string `yaml:"replicaOfHost"`
	ReplicaOfPort int    `yaml:"replicaOfPort"`

	Dir        string `yaml:"dir"`
	DBFilename string `yaml:"dbfilename"`

	HTTPAddr     string `yaml:"httpAddr"`
	BacklogBytes int    `yaml:"backlogBytes"`

	LogDir   string `yaml:"logDir"`
	LogLevel string `yaml:"logLevel"`
}

// Default returns the built-in baseline configuration.
func Default() Config {
	return Config{
		Port:         6379,
		Dir:          ".",
		DBFilename:   "dump.rdb",
		BacklogBytes: 1 << 20, // 1MB reconnect backlog, shared by all replicas
		LogDir:       "log",
		LogLevel:     "info",
	}
}

// IsReplica reports whether the server should start as a replica.
func (c Config) IsReplica() bool { return c.ReplicaOfHost != "" }

// LoadYAMLFile merges file's contents into c, file fields taking
// precedence over whatever c already holds.
func LoadYAMLFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	mergeNonZero(c, overlay)
	return nil
}

func mergeNonZero(dst *Config, src Config) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.ReplicaOfHost != "" {
		dst.ReplicaOfHost = src.ReplicaOfHost
	}
	if src.ReplicaOfPort != 0 {
		dst.ReplicaOfPort = src.ReplicaOfPort
	}
	if src.Dir != "" {
		dst.Dir = src.Dir
	}
	if src.DBFilename != "" {
		dst.DBFilename = src.DBFilename
	}
	if src.HTTPAddr != "" {
		dst.HTTPAddr = src.HTTPAddr
	}
	if src.BacklogBytes != 0 {
		dst.BacklogBytes = src.BacklogBytes
	}
	if src.LogDir != "" {
		dst.LogDir = src.LogDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// ParseFlags parses CLI flags over a base config (already populated from
// defaults and an optional YAML file), in the teacher's one-FlagSet style
// (internal/cli/cli.go's runMigrate et al.).
func ParseFlags(base Config, args []string) (Config, error) {
	fs := flag.NewFlagSet("redikv-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := base
	var replicaOfHost string
	fs.IntVar(&cfg.Port, "port", base.Port, "listen port")
	fs.StringVar(&replicaOfHost, "replicaof", "", "host of a master to replicate from (port follows as the next argument)")
	fs.StringVar(&cfg.Dir, "dir", base.Dir, "working directory for RDB dump")
	fs.StringVar(&cfg.DBFilename, "dbfilename", base.DBFilename, "RDB dump file name")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", base.HTTPAddr, "optional admin dashboard address")
	fs.IntVar(&cfg.BacklogBytes, "backlog-bytes", base.BacklogBytes, "reconnect backlog size (one backlog shared by all replicas)")
	fs.StringVar(&cfg.LogDir, "log-dir", base.LogDir, "log directory")
	fs.StringVar(&cfg.LogLevel, "log-level", base.LogLevel, "debug|info|warn|error")
	var configPath string
	fs.StringVar(&configPath, "config", "", "optional YAML config file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if replicaOfHost != "" {
		rest := fs.Args()
		if len(rest) == 0 {
			return Config{}, fmt.Errorf("config: --replicaof requires a port argument")
		}
		port, err := strconv.Atoi(rest[0])
		if err != nil {
			return Config{}, fmt.Errorf("config: --replicaof port: %w", err)
		}
		cfg.ReplicaOfHost = replicaOfHost
		cfg.ReplicaOfPort = port
	}
	_ = configPath // consumed by the caller before ParseFlags to pre-merge YAML
	return cfg, nil
}

// ResolvePath joins a relative path against Dir, matching the teacher's
// config.ResolvePath.
func (c Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// DumpPath is the resolved path to the configured RDB dump file.
func (c Config) DumpPath() string {
	return c.ResolvePath(c.DBFilename)
}
