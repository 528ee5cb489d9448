package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config represents the application configuration.
type Config struct {
	// Global options that apply to all commands
	Global map[string]string
	// Command-specific options
	Commands map[string]map[string]string
	// Engine configures the embedded interpreter lifecycle. Parsed from the
	// [engine] config section.
	Engine EngineConfig
	// Preprocessor configures source rewriting. Parsed from the
	// [preprocessor] config section.
	Preprocessor PreprocessorConfig
	// Warnings contains any warnings generated during config loading
	Warnings []string
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Commands: make(map[string]map[string]string),
		Engine: EngineConfig{
			BootTimeout:    30 * time.Second,
			InterruptGrace: 3 * time.Second,
		},
		Warnings: make([]string, 0),
	}
}

// EngineConfig controls interpreter bootstrap and cancellation behavior.
type EngineConfig struct {
	// BootTimeout bounds interpreter bootstrap.
	BootTimeout time.Duration `json:"bootTimeout" default:"30s"`
	// InterruptGrace is how long a cooperative interrupt may go unanswered
	// before the interpreter is discarded outright.
	InterruptGrace time.Duration `json:"interruptGrace" default:"3s"`
}

// PreprocessorConfig controls the input() rewriting pass.
type PreprocessorConfig struct {
	// ExtraBuiltins are additional global names the preprocessor treats as
	// host-provided (never awaited as user functions).
	ExtraBuiltins []string `json:"extraBuiltins,omitempty"`
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path.
// The file uses dnsmasq-style format: optionName remainingLineIsTheValue
//
// SECURITY: This function rejects symlinks to prevent symlink attacks
// that could read sensitive files through symlink traversal.
func LoadFromPath(path string) (*Config, error) {
	// Security: Lstat checks the final path component for symlinks.
	// This prevents symlink-to-file attacks (e.g., config -> /etc/passwd).
	// Intermediate directory symlinks are NOT checked, by design:
	// the threat model targets direct file symlink substitution.
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// Reject symlinks to prevent reading sensitive files through symlink attacks
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	// Open the file (symlinks already rejected by Lstat check above)
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	var currentCommand string
	var inEngineSection bool
	var inPreprocessorSection bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Check for section header [section_name]
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sectionName := strings.Trim(line, "[]")
			switch sectionName {
			case "engine":
				inEngineSection = true
				inPreprocessorSection = false
				currentCommand = ""
			case "preprocessor":
				inPreprocessorSection = true
				inEngineSection = false
				currentCommand = ""
			default:
				inEngineSection = false
				inPreprocessorSection = false
				currentCommand = sectionName
				if config.Commands[currentCommand] == nil {
					config.Commands[currentCommand] = make(map[string]string)
				}
			}
			continue
		}

		// Parse option line: optionName remainingLineIsTheValue
		parts := strings.SplitN(line, " ", 2)
		if len(parts) < 1 {
			continue
		}

		optionName := parts[0]
		var value string
		if len(parts) > 1 {
			value = parts[1]
		}

		// Store in appropriate section
		if inEngineSection {
			if err := parseEngineOption(&config.Engine, optionName, value); err != nil {
				return nil, fmt.Errorf("invalid engine option %q: %w", optionName, err)
			}
		} else if inPreprocessorSection {
			if err := parsePreprocessorOption(&config.Preprocessor, optionName, value); err != nil {
				return nil, fmt.Errorf("invalid preprocessor option %q: %w", optionName, err)
			}
		} else if currentCommand == "" {
			// Global option
			config.Global[optionName] = value
		} else {
			// Command-specific option
			config.Commands[currentCommand][optionName] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	// Validate config against schema: detect unknown options and type mismatches.
	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}

	return config, nil
}

// addWarning adds a warning to the config's warnings list.
func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// parseEngineOption parses an [engine] section option.
// Supported options:
//   - bootTimeout <duration>: bound on interpreter bootstrap (default: 30s)
//   - interruptGrace <duration>: interrupt-to-teardown grace period (default: 3s)
func parseEngineOption(ec *EngineConfig, name, value string) error {
	switch name {
	case "bootTimeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value %q: %w", value, err)
		}
		if d <= 0 {
			return fmt.Errorf("bootTimeout must be positive: %s", value)
		}
		ec.BootTimeout = d

	case "interruptGrace":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value %q: %w", value, err)
		}
		if d <= 0 {
			return fmt.Errorf("interruptGrace must be positive: %s", value)
		}
		ec.InterruptGrace = d

	default:
		return fmt.Errorf("unknown engine option: %s", name)
	}
	return nil
}

// parsePreprocessorOption parses a [preprocessor] section option.
// Supported options:
//   - builtin <name> [<name> ...]: additional host-provided global names
func parsePreprocessorOption(pc *PreprocessorConfig, name, value string) error {
	switch name {
	case "builtin":
		names := strings.Fields(value)
		if len(names) == 0 {
			return fmt.Errorf("builtin requires at least one name")
		}
		pc.ExtraBuiltins = append(pc.ExtraBuiltins, names...)

	default:
		return fmt.Errorf("unknown preprocessor option: %s", name)
	}
	return nil
}

// parseBool parses a boolean value from string.
// Accepts: true, false, 1, 0, yes, no (case-insensitive)
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// GetCommandOption returns a command-specific configuration option.
// It first checks command-specific options, then falls back to global options.
func (c *Config) GetCommandOption(command, name string) (string, bool) {
	if cmdOptions, exists := c.Commands[command]; exists {
		if value, exists := cmdOptions[name]; exists {
			return value, true
		}
	}

	// Fall back to global options
	return c.GetGlobalOption(name)
}

// SetGlobalOption sets a global configuration option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// SetCommandOption sets a command-specific configuration option.
func (c *Config) SetCommandOption(command, name, value string) {
	if c.Commands[command] == nil {
		c.Commands[command] = make(map[string]string)
	}
	c.Commands[command][name] = value
}

// GetWarnings returns any warnings generated during config loading.
func (c *Config) GetWarnings() []string {
	return c.Warnings
}

// HasWarnings returns true if there are any warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
