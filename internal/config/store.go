package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/genpause/internal/errors"
)

// Store owns the live configuration. Reads return the last valid Config;
// writes go to the YAML file under an advisory lock and are validated before
// they land, so a rejected change leaves both the file and the live
// configuration untouched.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
	cfg  *Config

	watchMu   sync.Mutex
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	watchDone chan struct{}
}

// NewStore creates a store for the config file at path. Empty uses
// ConfigFile(). Call Load before reading.
func NewStore(path string) *Store {
	if path == "" {
		path = ConfigFile()
	}
	return &Store{
		v:    NewViper(path),
		path: path,
		cfg:  Default(),
	}
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// Viper exposes the underlying instance for flag binding.
func (s *Store) Viper() *viper.Viper { return s.v }

// Exists reports whether the config file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the config file, if present, and validates the result. A
// missing file is not an error.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Config, error) {
	if _, err := os.Stat(s.path); err == nil {
		if err := s.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", s.path, err)
		}
	}
	cfg, err := Load(s.v)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s.copyLocked(), nil
}

// Reload re-reads the config file. On error the previous configuration is
// kept and returned alongside the error.
func (s *Store) Reload() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.loadLocked()
	if err != nil {
		return s.copyLocked(), err
	}
	return cfg, nil
}

// Config returns a copy of the live configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Thresholds returns the live coordinator thresholds.
func (s *Store) Thresholds() Thresholds {
	return s.Config().Thresholds()
}

func (s *Store) copyLocked() *Config {
	c := *s.cfg
	c.Resources = append([]string(nil), s.cfg.Resources...)
	c.Demo.Worlds = append([]string(nil), s.cfg.Demo.Worlds...)
	return &c
}

// Set validates and persists a single key. The value is written into the
// config file, preserving the rest of the file including comments, and the
// live configuration is reloaded from it.
func (s *Store) Set(key string, value any) error {
	if !IsKnownKey(key) {
		return errors.NewValidationError("cannot set key").WithField(key).WithCause(errors.ErrUnknownKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock := flock.New(s.path + ".lock")
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	current, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config %s: %w", s.path, err)
	}

	updated, err := setYAMLKey(current, key, value)
	if err != nil {
		return err
	}

	// Validate the candidate with the same defaults and env overrides the
	// live instance uses.
	candidate := NewViper(s.path)
	if err := candidate.ReadConfig(bytes.NewReader(updated)); err != nil {
		return fmt.Errorf("failed to parse updated config: %w", err)
	}
	if _, err := Load(candidate); err != nil {
		return err
	}

	if err := writeFileAtomic(s.path, updated); err != nil {
		return err
	}
	_, err = s.loadLocked()
	return err
}

// SetString parses raw according to the type of key's default and calls
// Set. It is the entry point for values typed by an operator.
func (s *Store) SetString(key, raw string) error {
	value, err := ParseValue(key, raw)
	if err != nil {
		return err
	}
	return s.Set(key, value)
}

// ParseValue converts operator text to the type key expects.
func ParseValue(key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	defaults := viper.New()
	SetDefaults(defaults)
	switch defaults.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.NewValidationError("expected true or false").WithField(key).WithValue(raw)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.NewValidationError("expected a whole number").
				WithField(key).WithValue(raw).WithCause(errors.ErrNotANumber)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.NewValidationError("expected a number").
				WithField(key).WithValue(raw).WithCause(errors.ErrNotANumber)
		}
		return f, nil
	case []string:
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case nil:
		return nil, errors.NewValidationError("cannot set key").WithField(key).WithCause(errors.ErrUnknownKey)
	default:
		return raw, nil
	}
}

// watchDebounce collects the burst of events an editor or an atomic rename
// produces for a single save.
const watchDebounce = 50 * time.Millisecond

// Watch reloads the configuration whenever the file changes and passes the
// outcome to onChange. On a failed reload onChange receives the previous
// configuration and the error. The directory is watched rather than the file
// so that atomic renames, including those made by Set, are seen. Reloads go
// through Reload and never touch the viper instance outside the store lock.
func (s *Store) Watch(onChange func(*Config, error)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return fmt.Errorf("config %s is already watched", s.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	s.watchDone = make(chan struct{})
	go s.watchLoop(watcher, s.stopCh, s.watchDone, onChange)
	return nil
}

// StopWatching ends a Watch. It waits for an in-flight reload callback and
// is a no-op when nothing is watched.
func (s *Store) StopWatching() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return
	}
	close(s.stopCh)
	_ = s.watcher.Close()
	<-s.watchDone
	s.watcher = nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}, onChange func(*Config, error)) {
	defer close(done)

	debounce := time.NewTimer(0)
	<-debounce.C
	target := filepath.Clean(s.path)

	for {
		select {
		case <-stop:
			debounce.Stop()
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			cfg, err := s.Reload()
			if onChange != nil {
				onChange(cfg, err)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Init writes the commented default config file. It refuses to overwrite an
// existing file unless force is set.
func (s *Store) Init(force bool) error {
	if s.Exists() && !force {
		return fmt.Errorf("config file already exists at %s", s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return writeFileAtomic(s.path, []byte(Template))
}

// MarshalYAML renders cfg as it would appear in a config file.
func MarshalYAML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setYAMLKey sets a dotted key in the YAML document data, creating mappings
// as needed. Comments and key order elsewhere in the document are kept.
func setYAMLKey(data []byte, key string, value any) ([]byte, error) {
	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config root must be a mapping")
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}

	parts := strings.Split(key, ".")
	node := root
	for i, part := range parts {
		last := i == len(parts)-1
		child := mappingValue(node, part)
		if child == nil {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			if last {
				child = &valueNode
			} else {
				child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			node.Content = append(node.Content, keyNode, child)
		} else if last {
			// Keep any comments attached to the old value.
			valueNode.HeadComment = child.HeadComment
			valueNode.LineComment = child.LineComment
			valueNode.FootComment = child.FootComment
			*child = valueNode
		} else if child.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config key %s is not a mapping", strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Template is the commented config file written by Init.
const Template = `# genpause configuration
# Environment variables override this file: GENPAUSE_<KEY>, with dots and
# dashes replaced by underscores (e.g. GENPAUSE_MAX_PLAYERS).

# Pause the workload when more users than this are present.
# 0 pauses whenever anyone is present; -1 disables the limit.
max-players: 0

# Used/ceiling ratio above which the workload is paused (0-1, exclusive).
memory-threshold: 0.85

# Monitor and recovery periods in ticks (20 ticks per second).
check-interval: 100
resume-delay: 100

# Reclaim memory shortly after a user joins.
clean-memory-on-join: true

# Manual pause, toggled by the forcepause command.
force-paused: false

# Let the monitor pause the workload on memory pressure.
memory-monitoring-enabled: true

# Glob patterns selecting managed resources. Empty manages all.
resources: []

# Memory ceiling override, e.g. 512mb or 2gb. Empty detects it from
# GOMEMLIMIT or the cgroup limit.
memory-limit: ""

# Collector family override: lowpause, regional, standard, unknown.
gc-family: ""

# The memory hold clears below memory-threshold minus hysteresis.
hysteresis: 0.05

# Recovery polls before giving up.
recovery-attempts: 6

logging:
  # debug, info, warn, error
  level: info
  # Empty writes to a logs directory next to this file.
  dir: ""
  max-size-mb: 10
  max-backups: 3
  compress: false

console:
  # Use the line console even on a terminal.
  plain: false

# Simulated workload run by "genpause run --demo".
demo:
  worlds: [overworld, nether, the_end]
  chunk-kib: 256
  retain-chunks: 64
  interval-ms: 50
`
