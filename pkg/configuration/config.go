// Package configuration reads the INI style settings file shared by the
// server and the console.
package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LocalOverride is read after the main file, if present, and overrides
// its values.
const LocalOverride = "settings.local.cfg"

// Config holds settings as section -> key -> value.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// sectionOrder is the order sections are written in.
var sectionOrder = []string{"Server", "Interpreter", "Database", "JWT", "Network", "TLS", "Debug"}

// Initialize loads the global configuration. A missing file is created
// with defaults.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		var cfg *Config
		cfg, err = Load(configPath)
		if err != nil {
			return
		}
		if _, statErr := os.Stat(LocalOverride); statErr == nil {
			if mergeErr := cfg.mergeFile(LocalOverride); mergeErr != nil {
				err = fmt.Errorf("reading %s: %w", LocalOverride, mergeErr)
				return
			}
		}
		globalConfig = cfg
	})
	return err
}

// SetGlobal installs cfg as the global configuration.
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

// Load reads a settings file, writing the defaults first when it does not
// exist.
func Load(filePath string) (*Config, error) {
	c := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c.settings = Defaults()
		if err := c.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return c, nil
	}
	if err := c.mergeFile(filePath); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads settings from r.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{settings: make(map[string]map[string]string)}
	if err := c.merge(r); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.merge(f)
}

// merge adds the settings in r, overwriting existing keys. Lines starting
// with ';' or '#' are comments. Keys outside a section are ignored.
func (c *Config) merge(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(r)
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if c.settings[section] == nil {
				c.settings[section] = make(map[string]string)
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || section == "" {
			continue
		}
		c.settings[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return scanner.Err()
}

// Defaults returns the settings written to a fresh configuration file.
func Defaults() map[string]map[string]string {
	return map[string]map[string]string{
		"Server": {
			"http_port":  "8080",
			"static_dir": "web",
		},
		"Interpreter": {
			"max_lines":     "1000",
			"max_steps":     "1000000",
			"max_run_time":  "10m",
			"input_prompt":  "?",
			"output_buffer": "256",
		},
		"Database": {
			"path": "data/retrobasic.db",
		},
		"JWT": {
			"secret_key":             "",
			"token_expiration_hours": "24",
		},
		"Network": {
			"write_wait_timeout":         "10s",
			"pong_timeout":               "60s",
			"max_message_size_kb":        "64",
			"allowed_origins":            "",
			"max_clients":                "100",
			"max_connections_per_minute": "30",
			"max_messages_per_second":    "50",
		},
		"TLS": {
			"enable_tls":           "false",
			"enable_letsencrypt":   "false",
			"force_https_redirect": "false",
			"domain":               "",
			"letsencrypt_email":    "",
			"cert_cache_dir":       "certs",
			"cert_file":            "",
			"key_file":             "",
			"https_port":           "443",
		},
		"Debug": {
			"enable_debug_logging": "true",
			"log_level":            "INFO",
			"log_file":             "logs/retrobasic.log",
			"max_log_size_mb":      "10",
			"log_rotation_count":   "3",
			"log_interpreter":      "true",
			"log_debugger":         "true",
			"log_console":          "false",
			"log_websocket":        "false",
			"log_auth":             "true",
			"log_store":            "false",
			"log_security":         "true",
			"log_config":           "true",
			"log_general":          "true",
		},
	}
}

func (c *Config) saveToFile() error {
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "; RetroBASIC configuration")
	fmt.Fprintln(w, "; Generated automatically - modify with care")
	fmt.Fprintln(w)

	written := make(map[string]bool)
	write := func(section string) {
		values, ok := c.settings[section]
		if !ok || written[section] {
			return
		}
		written[section] = true
		fmt.Fprintf(w, "[%s]\n", section)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s = %s\n", k, values[k])
		}
		fmt.Fprintln(w)
	}
	for _, section := range sectionOrder {
		write(section)
	}
	extra := make([]string, 0)
	for section := range c.settings {
		if !written[section] {
			extra = append(extra, section)
		}
	}
	sort.Strings(extra)
	for _, section := range extra {
		write(section)
	}
	return w.Flush()
}

// String returns a value of this configuration.
func (c *Config) String(section, key, defaultValue string) string {
	if c == nil {
		return defaultValue
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if values, ok := c.settings[section]; ok {
		if v, ok := values[key]; ok {
			return v
		}
	}
	return defaultValue
}

// GetString returns a global setting or defaultValue.
func GetString(section, key, defaultValue string) string {
	return globalConfig.String(section, key, defaultValue)
}

// GetInt returns a global integer setting or defaultValue if it is missing
// or malformed.
func GetInt(section, key string, defaultValue int) int {
	if v, err := strconv.Atoi(GetString(section, key, "")); err == nil {
		return v
	}
	return defaultValue
}

// GetBool returns a global boolean setting.
func GetBool(section, key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(GetString(section, key, "")); err == nil {
		return v
	}
	return defaultValue
}

// GetDuration returns a global duration setting such as "10s".
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(GetString(section, key, "")); err == nil {
		return v
	}
	return defaultValue
}

// GetSection returns a copy of a global section.
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	if globalConfig == nil {
		return result
	}
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	for k, v := range globalConfig.settings[sectionName] {
		result[k] = v
	}
	return result
}

// SetString changes a global setting in memory. Save persists it.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the global configuration back to its file.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	return globalConfig.saveToFile()
}
