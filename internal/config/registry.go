package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "cabload"
	configFile = "config.yaml"
)

var (
	// Global registry instance (loaded lazily)
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Mutex for thread-safe file operations
	fileMutex sync.Mutex
)

// GetConfigDir returns the directory holding the cabload config file:
//   - Linux: $XDG_CONFIG_HOME/cabload or $HOME/.config/cabload
//   - macOS: $HOME/.config/cabload
//   - Windows: %LOCALAPPDATA%\cabload, else %USERPROFILE%\AppData\Local\cabload
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local", appName), nil
		}
		return "", fmt.Errorf("cannot locate the config directory: LOCALAPPDATA and USERPROFILE are unset")
	}

	// macOS always uses $HOME/.config
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && runtime.GOOS != "darwin" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// ensureConfigDir ensures the configuration directory exists.
// Creates the directory with appropriate permissions if it doesn't exist.
func ensureConfigDir() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// LoadRegistry loads the configuration registry from disk.
// If the file doesn't exist, returns a new default registry.
// Thread-safe - multiple calls will return the same instance.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		globalRegistry, globalRegistryErr = loadRegistryFromDisk()
	})
	return globalRegistry, globalRegistryErr
}

// loadRegistryFromDisk loads the registry from the default location.
func loadRegistryFromDisk() (*Registry, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	reg, err := LoadRegistryFrom(configPath)
	if err != nil {
		return nil, err
	}
	reg.path = ""
	return reg, nil
}

// LoadRegistryFrom loads a registry from an explicit path. Save writes back
// to the same path. A missing file yields a new default registry.
func LoadRegistryFrom(configPath string) (*Registry, error) {
	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		reg := NewRegistry()
		reg.path = configPath
		return reg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if registry.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", registry.Version)
	}

	// Ensure maps are initialized
	if registry.Profiles == nil {
		registry.Profiles = make(map[string]*Profile)
	}
	if registry.Preferences == nil {
		registry.Preferences = defaultPreferences()
	}
	if registry.Preferences.ServiceType == "" {
		registry.Preferences.ServiceType = DefaultServiceType
	}
	for name, p := range registry.Profiles {
		if p == nil {
			delete(registry.Profiles, name)
		}
	}

	registry.path = configPath
	return &registry, nil
}

// Path returns the file the registry is saved to.
func (r *Registry) Path() (string, error) {
	if r.path != "" {
		return r.path, nil
	}
	return GetConfigPath()
}

// Save saves the registry to disk.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) Save() error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	configPath, err := r.Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Ensure config directory exists
	if r.path == "" {
		if err := ensureConfigDir(); err != nil {
			return fmt.Errorf("failed to ensure config directory exists: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# cabload configuration file
# Named connection profiles for the cabinet firmware loader.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	// Atomic rename (this is atomic on all platforms)
	if err := os.Rename(tmpPath, configPath); err != nil {
		// Clean up temp file on error
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig writes a new configuration file holding only the
// example profiles. An empty path selects the default location.
func CreateDefaultConfig(path string) (*Registry, error) {
	registry := NewRegistry()
	registry.path = path
	registry.AddExamples()
	if err := registry.Save(); err != nil {
		return nil, err
	}
	return registry, nil
}

// AddExamples adds the bench-serial and bench-tcp example profiles, keeping
// any existing profiles with those names. bench-serial becomes the default
// when none is set.
func (r *Registry) AddExamples() {
	if r.GetProfile("bench-serial") == nil {
		r.SetProfile("bench-serial", exampleSerialProfile())
	}
	if r.GetProfile("bench-tcp") == nil {
		r.SetProfile("bench-tcp", exampleTCPProfile())
	}
	if r.Default == "" {
		r.Default = "bench-serial"
	}
}

func exampleSerialProfile() *Profile {
	p := DefaultProfile()
	p.Transport = TransportSerial
	p.SerialDevice = "/dev/ttyUSB0"
	return p
}

func exampleTCPProfile() *Profile {
	p := DefaultProfile()
	p.Transport = TransportTCP
	p.Host = "192.168.1.40"
	p.Port = 4001
	return p
}
