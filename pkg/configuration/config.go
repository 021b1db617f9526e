// Package configuration loads the application settings from an INI
// style file (settings.cfg) with optional local overrides
// (settings.local.cfg). Values are read through typed getters with
// defaults, so the toolchain runs without any file present.
package configuration

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds the parsed settings grouped by section.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Initialize loads the global configuration. Safe to call more than
// once; only the first call reads the file.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		// local overrides are optional and silent
		localPath := "settings.local.cfg"
		if _, statErr := os.Stat(localPath); statErr == nil {
			globalConfig.mergeFile(localPath)
		}
	})
	return err
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// no settings file: run entirely on defaults
		return config, nil
	}
	if err := config.mergeFile(filePath); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile parses one INI file into the settings map.
func (c *Config) mergeFile(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(file)
	currentSection := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}
		if idx := strings.Index(line, "="); idx > 0 && currentSection != "" {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			c.settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

func (c *Config) get(section, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sec, ok := c.settings[section]; ok {
		if v, ok := sec[key]; ok {
			return v, true
		}
	}
	return "", false
}

// GetString returns a string setting or the default.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}
	if v, ok := globalConfig.get(section, key); ok {
		return v
	}
	return defaultValue
}

// GetInt returns an integer setting or the default.
func GetInt(section, key string, defaultValue int) int {
	if globalConfig == nil {
		return defaultValue
	}
	if v, ok := globalConfig.get(section, key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetBool returns a boolean setting or the default. Accepts
// true/false, yes/no, on/off, 1/0.
func GetBool(section, key string, defaultValue bool) bool {
	if globalConfig == nil {
		return defaultValue
	}
	v, ok := globalConfig.get(section, key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	}
	return defaultValue
}

// Set overrides one value at runtime (used by tests).
func Set(section, key, value string) {
	if globalConfig == nil {
		globalConfig = &Config{settings: make(map[string]map[string]string)}
	}
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Dump renders the effective settings, for the startup log.
func Dump() string {
	if globalConfig == nil {
		return "(defaults)"
	}
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	var sb strings.Builder
	for section, keys := range globalConfig.settings {
		fmt.Fprintf(&sb, "[%s]", section)
		for k, v := range keys {
			fmt.Fprintf(&sb, " %s=%s", k, v)
		}
		sb.WriteByte(' ')
	}
	return sb.String()
}
