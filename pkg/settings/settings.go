// Package settings persists the user's GitHub personal access token.
package settings

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/github"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Settings is the on-disk document.
type Settings struct {
	GitHubPAT string `yaml:"github_pat,omitempty"`
}

// FileStore keeps Settings in a YAML file readable only by its owner.
// It implements github.TokenSource.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// DefaultPath returns $XDG_CONFIG_HOME/reviewer-recommender/settings.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", zerr.Wrap(err, "failed to locate user config directory")
	}
	return filepath.Join(dir, "reviewer-recommender", "settings.yaml"), nil
}

// NewFileStore returns a store backed by path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the settings file. A missing file yields empty settings.
func (s *FileStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (Settings, error) {
	var st Settings
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, zerr.With(zerr.Wrap(err, "failed to read settings"), "path", s.path)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, zerr.With(zerr.Wrap(err, "failed to parse settings"), "path", s.path)
	}
	return st, nil
}

// Token returns the trimmed PAT, or github.ErrCredentialMissing when none is set.
func (s *FileStore) Token(_ context.Context) (string, error) {
	st, err := s.Load()
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(st.GitHubPAT)
	if token == "" {
		return "", github.ErrCredentialMissing
	}
	return token, nil
}

// SetToken stores the trimmed token. An empty token clears it.
// Non-empty tokens must pass github.ValidateToken.
func (s *FileStore) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token != "" {
		if err := github.ValidateToken(token); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	st.GitHubPAT = token
	return s.save(st)
}

// Clear removes the stored token.
func (s *FileStore) Clear() error {
	return s.SetToken("")
}

func (s *FileStore) save(st Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create settings directory"), "path", s.path)
	}

	data, err := yaml.Marshal(&st)
	if err != nil {
		return zerr.Wrap(err, "failed to encode settings")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write settings"), "path", s.path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return zerr.With(zerr.Wrap(err, "failed to write settings"), "path", s.path)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return zerr.With(zerr.Wrap(err, "failed to restrict settings permissions"), "path", s.path)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write settings"), "path", s.path)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace settings"), "path", s.path)
	}
	return nil
}

// Mask returns a token with all but its prefix and last four characters hidden.
func Mask(token string) string {
	const visible = 4
	if len(token) <= 2*visible {
		return strings.Repeat("*", len(token))
	}
	prefix := ""
	if i := strings.LastIndex(token, "_"); i >= 0 && i < len(token)-visible {
		prefix = token[:i+1]
	}
	hidden := len(token) - len(prefix) - visible
	return prefix + strings.Repeat("*", hidden) + token[len(token)-visible:]
}
