// Package config loads the optional envboot configuration file.
//
// envboot works without any configuration: the defaults reproduce the
// classic bootstrap script (venv/, requirements.txt, script.py). A project
// may place envboot.yaml, envboot.yml or envboot.json next to them to change
// paths, pick the container runtime or enable a log file.
//
// YAML files are decoded with gopkg.in/yaml.v3. JSON files may contain
// comments and trailing commas; github.com/tidwall/jsonc strips them before
// encoding/json parses the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/envboot/internal/model"
)

// Default values used when a key is absent from the config file.
const (
	// DefaultEnvDir is the environment directory, relative to the working directory.
	DefaultEnvDir = "venv"

	// DefaultManifest is the dependency manifest file.
	DefaultManifest = "requirements.txt"

	// DefaultEntryPoint is the program launched once the environment is ready.
	DefaultEntryPoint = "script.py"

	// DefaultImage is the container image used by the container runtime.
	DefaultImage = "python:3-slim"

	// DefaultLogMaxSizeMB, DefaultLogMaxBackups and DefaultLogMaxAgeDays
	// configure log file rotation when log.file is set.
	DefaultLogMaxSizeMB  = 1
	DefaultLogMaxBackups = 2
	DefaultLogMaxAgeDays = 30
)

// FileNames lists the config file names searched in the working directory,
// in priority order. The first one that exists wins.
var FileNames = []string{"envboot.yaml", "envboot.yml", "envboot.json"}

// Config is the complete envboot configuration.
type Config struct {
	// EnvDir is the isolated environment directory. Relative paths are
	// resolved against the working directory.
	EnvDir string `yaml:"env_dir" json:"env_dir"`

	// Manifest is the pip requirements file installed on every run.
	Manifest string `yaml:"manifest" json:"manifest"`

	// EntryPoint is the program run with the environment's interpreter.
	EntryPoint string `yaml:"entry_point" json:"entry_point"`

	// Python is the interpreter used to create the environment. In
	// container mode it is the command run inside the image, so it must
	// exist there (official python images ship both python and python3).
	Python string `yaml:"python" json:"python"`

	// PipArgs are appended to "pip install -r <manifest>".
	PipArgs []string `yaml:"pip_args" json:"pip_args"`

	// Runtime selects host or container execution.
	Runtime model.Runtime `yaml:"runtime" json:"runtime"`

	// Container configures the container runtime.
	Container ContainerConfig `yaml:"container" json:"container"`

	// Log configures the optional rotating log file.
	Log LogConfig `yaml:"log" json:"log"`
}

// ContainerConfig holds settings for the container runtime.
type ContainerConfig struct {
	// Image is the container image providing python and pip.
	Image string `yaml:"image" json:"image"`

	// Pull is the image pull policy.
	Pull model.PullPolicy `yaml:"pull" json:"pull"`
}

// LogConfig holds settings for the rotating log file.
type LogConfig struct {
	// File is the log file path. Empty disables file logging.
	File string `yaml:"file" json:"file"`

	// MaxSizeMB is the size in megabytes at which the file is rotated.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// MaxAgeDays is the number of days rotated files are kept.
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		EnvDir:     DefaultEnvDir,
		Manifest:   DefaultManifest,
		EntryPoint: DefaultEntryPoint,
		Python:     DefaultPython(),
		Runtime:    model.RuntimeHost,
		Container: ContainerConfig{
			Image: DefaultImage,
			Pull:  model.PullMissing,
		},
		Log: LogConfig{
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

// DefaultPython returns the interpreter name used to create environments
// on the current platform. Windows installs ship "python", everything else
// ships "python3".
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Load resolves and loads the configuration for workDir.
//
// If explicitPath is set it is used exclusively and must exist. Otherwise
// FileNames are searched in workDir; when none exists the defaults are
// returned. The second return value is the path that was loaded, or ""
// for defaults.
//
// All failures are returned as model.CLIError with ExitConfigInvalid.
func Load(workDir, explicitPath string) (*Config, string, error) {
	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, "", model.NewCLIError(
				model.ExitConfigInvalid,
				fmt.Sprintf("config file not found: %s", explicitPath),
			)
		}
		cfg, err := LoadFile(explicitPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, explicitPath, nil
	}

	for _, name := range FileNames {
		path := filepath.Join(workDir, name)
		if !fileExists(path) {
			continue
		}
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	cfg := Default()
	return cfg, "", nil
}

// LoadFile reads a single config file on top of the defaults and validates
// the result. The format is chosen by extension: .json is treated as JSONC,
// anything else as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to read config file", err)
	}

	cfg := Default()

	// Decoding into a pre-populated struct keeps defaults for absent keys.
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path),
			err,
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigInvalid,
			fmt.Sprintf("invalid config file %s", path),
			err,
		)
	}
	return cfg, nil
}

// Validate normalizes enum values and checks the configuration for
// consistency. It returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.EnvDir) == "" {
		errs = append(errs, errors.New("env_dir must not be empty"))
	}
	if strings.TrimSpace(c.Manifest) == "" {
		errs = append(errs, errors.New("manifest must not be empty"))
	}
	if strings.TrimSpace(c.EntryPoint) == "" {
		errs = append(errs, errors.New("entry_point must not be empty"))
	}
	if strings.TrimSpace(c.Python) == "" {
		errs = append(errs, errors.New("python must not be empty"))
	}

	if c.Runtime == "" {
		c.Runtime = model.RuntimeHost
	}
	rt, err := model.ParseRuntime(string(c.Runtime))
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Runtime = rt
	}

	if c.Container.Pull == "" {
		c.Container.Pull = model.PullMissing
	}
	pull, err := model.ParsePullPolicy(string(c.Container.Pull))
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Container.Pull = pull
	}

	if c.Runtime == model.RuntimeContainer {
		if strings.TrimSpace(c.Container.Image) == "" {
			errs = append(errs, errors.New("container.image must not be empty"))
		}
		// The working directory is the only bind mount, so everything the
		// container touches has to live below it.
		paths := []struct{ key, value string }{
			{"env_dir", c.EnvDir},
			{"manifest", c.Manifest},
			{"entry_point", c.EntryPoint},
		}
		for _, p := range paths {
			if p.value != "" && !filepath.IsLocal(p.value) {
				errs = append(errs, fmt.Errorf("%s %q must be a relative path inside the working directory when runtime is container", p.key, p.value))
			}
		}
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log limits must not be negative"))
	}

	return errors.Join(errs...)
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
