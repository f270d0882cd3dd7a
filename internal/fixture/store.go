// internal/fixture/store.go
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"go.uber.org/zap"
)

// pathLocks serializes access per fixture file across every Store in the process.
var pathLocks sync.Map // map[string]*sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Store persists the shared credentials fixture. Writes are atomic (temp file + rename)
// and all operations on one path run one at a time.
type Store struct {
	path   string
	mu     *sync.Mutex
	logger *zap.Logger
}

// NewStore opens the fixture at path. A leading ~ is expanded. The file does not need to exist.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand fixture path %q: %w", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fixture path %q: %w", path, err)
	}
	return &Store{path: abs, mu: lockFor(abs), logger: logger.Named("fixture")}, nil
}

// Path is the absolute location of the fixture file.
func (s *Store) Path() string { return s.path }

// Load reads the fixture. ok is false when the file does not exist yet, which is not
// an error. Unparsable content or a missing field is a *schemas.FixtureCorruptError.
func (s *Store) Load() (creds schemas.Credentials, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes the fixture atomically.
func (s *Store) Save(creds schemas.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(creds)
}

// Update runs a read-modify-write in the fixture's critical section. fn receives the
// current contents (ok false if none) and returns the record to persist. If fn returns
// an error nothing is written.
func (s *Store) Update(fn func(cur schemas.Credentials, ok bool) (schemas.Credentials, error)) (schemas.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.loadLocked()
	if err != nil {
		return schemas.Credentials{}, err
	}
	next, err := fn(cur, ok)
	if err != nil {
		return schemas.Credentials{}, err
	}
	if ok && next == cur {
		return cur, nil
	}
	if err := s.saveLocked(next); err != nil {
		return schemas.Credentials{}, err
	}
	return next, nil
}

// LoadOrCreate returns the existing fixture or persists one produced by gen.
// created reports whether gen was used.
func (s *Store) LoadOrCreate(gen func() (schemas.Credentials, error)) (creds schemas.Credentials, created bool, err error) {
	creds, err = s.Update(func(cur schemas.Credentials, ok bool) (schemas.Credentials, error) {
		if ok {
			return cur, nil
		}
		created = true
		return gen()
	})
	return creds, created, err
}

func (s *Store) loadLocked() (schemas.Credentials, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return schemas.Credentials{}, false, nil
	}
	if err != nil {
		return schemas.Credentials{}, false, fmt.Errorf("failed to read fixture: %w", err)
	}
	creds, err := Decode(data)
	if err != nil {
		var fc *schemas.FixtureCorruptError
		if errors.As(err, &fc) {
			fc.Path = s.path
		}
		return schemas.Credentials{}, false, err
	}
	return creds, true, nil
}

func (s *Store) saveLocked(creds schemas.Credentials) error {
	if !creds.Complete() {
		return fmt.Errorf("refusing to write incomplete fixture for %q", creds.UserName)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".fixture-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp fixture: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp fixture: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp fixture: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp fixture: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to publish fixture: %w", err)
	}
	s.logger.Info("Fixture written.", zap.String("path", s.path), zap.String("user", creds.UserName))
	return nil
}

// Decode parses fixture bytes. The legacy "username" key is accepted when "userName" is absent.
func Decode(data []byte) (schemas.Credentials, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return schemas.Credentials{}, &schemas.FixtureCorruptError{Reason: "file is empty"}
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return schemas.Credentials{}, &schemas.FixtureCorruptError{Reason: "invalid json", Err: err}
	}

	str := func(key string) (string, error) {
		v, present := raw[key]
		if !present || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", &schemas.FixtureCorruptError{Reason: fmt.Sprintf("field %q is not a string", key)}
		}
		return s, nil
	}

	name, err := str("userName")
	if err != nil {
		return schemas.Credentials{}, err
	}
	if name == "" {
		if name, err = str("username"); err != nil {
			return schemas.Credentials{}, err
		}
	}
	pass, err := str("password")
	if err != nil {
		return schemas.Credentials{}, err
	}

	switch {
	case name == "":
		return schemas.Credentials{}, &schemas.FixtureCorruptError{Reason: "missing userName"}
	case pass == "":
		return schemas.Credentials{}, &schemas.FixtureCorruptError{Reason: "missing password"}
	}
	return schemas.Credentials{UserName: name, Password: pass}, nil
}
