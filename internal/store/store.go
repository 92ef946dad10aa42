// Package store persists the handful of device settings written during
// provisioning: broker endpoint and device identity. Values are kept in a
// flat key/value file, TOML by default or YAML when the file name ends in
// ".yaml" or ".yml".
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml"
)

// Keys written by provisioning and read at startup.
const (
	KeyBrokerHost = "broker-host"
	KeyBrokerPort = "broker-port"
	KeyDeviceID   = "device-id"
)

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a simple string key/value store.
type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
}

type errorValue struct {
	key string
	v   interface{}
}

func (e *errorValue) Error() string {
	return fmt.Sprintf("cannot parse '%T' as string for key '%v'", e.v, e.key)
}

func (e *errorValue) Is(o error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(o)
}

type format int

const (
	formatTOML format = iota
	formatYAML
)

// FileStore is a Store backed by a single file. Every Put rewrites the file.
type FileStore struct {
	path   string
	format format

	mu     sync.Mutex
	values map[string]string
}

// Open loads the store at path. A missing file yields an empty store; the
// file is created on the first Put.
func Open(path string) (*FileStore, error) {
	s := FileStore{
		path:   path,
		format: formatTOML,
		values: make(map[string]string),
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		s.format = formatYAML
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("device store %v does not exist yet", path)
			return &s, nil
		}
		return nil, fmt.Errorf("cannot read device store: %w", err)
	}

	var raw map[string]interface{}
	switch s.format {
	case formatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		err = toml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse device store %v: %w", path, err)
	}

	s.values, err = stringValues(raw)
	if err != nil {
		return nil, fmt.Errorf("cannot parse device store %v: %w", path, err)
	}

	return &s, nil
}

// Get returns the value stored for key.
func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, has := s.values[key]
	if !has {
		return "", fmt.Errorf("cannot get '%v': %w", key, ErrNotFound)
	}
	return v, nil
}

// Put stores value for key and writes the file.
func (s *FileStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, had := s.values[key]
	s.values[key] = value
	if err := s.write(); err != nil {
		if had {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *FileStore) write() error {
	var data []byte
	var err error
	switch s.format {
	case formatYAML:
		data, err = yaml.Marshal(s.values)
	default:
		raw := make(map[string]interface{}, len(s.values))
		for k, v := range s.values {
			raw[k] = v
		}
		var tree *toml.Tree
		tree, err = toml.TreeFromMap(raw)
		if err == nil {
			var text string
			text, err = tree.ToTomlString()
			data = []byte(text)
		}
	}
	if err != nil {
		return fmt.Errorf("cannot encode device store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("cannot create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot set file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("cannot replace device store: %w", err)
	}
	log.Debugf("wrote device store %v", s.path)

	return nil
}

// stringValues flattens decoded scalar values into strings. Tables and lists
// are rejected.
func stringValues(raw map[string]interface{}) (map[string]string, error) {
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			values[k] = v
		case int:
			values[k] = strconv.Itoa(v)
		case int64:
			values[k] = strconv.FormatInt(v, 10)
		case uint64:
			values[k] = strconv.FormatUint(v, 10)
		case float64:
			values[k] = strconv.FormatFloat(v, 'g', -1, 64)
		case bool:
			values[k] = strconv.FormatBool(v)
		case time.Time:
			values[k] = v.Format(time.RFC3339)
		default:
			return nil, &errorValue{key: k, v: v}
		}
	}
	return values, nil
}
