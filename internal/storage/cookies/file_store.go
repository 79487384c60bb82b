package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// FileStore keeps the cookie jar in a JSON file keyed by cookie name.
// The jar carries a last_login entry naming the account it belongs to.
type FileStore struct {
	path   string
	login  string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewFileStore creates a cookie store bound to one login
func NewFileStore(path, login string, logger arbor.ILogger) interfaces.CookieStore {
	return &FileStore{
		path:   path,
		login:  login,
		logger: logger,
	}
}

// Load returns the stored cookies. A missing file yields an empty jar. A jar whose
// last_login differs from the configured login is cleared and an empty jar returned.
func (s *FileStore) Load(ctx context.Context) ([]models.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(jar) == 0 {
		return []models.Cookie{}, nil
	}

	if owner, ok := jar[models.LastLoginCookie]; !ok || owner.Value != s.login {
		s.logger.Info().
			Str("path", s.path).
			Msg("Cookie jar belongs to a different login, discarding")
		if err := s.write(map[string]models.Cookie{}); err != nil {
			return nil, err
		}
		return []models.Cookie{}, nil
	}

	names := make([]string, 0, len(jar))
	for name := range jar {
		if name == models.LastLoginCookie {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]models.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, jar[name])
	}

	s.logger.Debug().Int("count", len(cookies)).Msg("Loaded cookies")
	return cookies, nil
}

// Save replaces the jar with cookies, stamped with the configured login
func (s *FileStore) Save(ctx context.Context, cookies []models.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar := make(map[string]models.Cookie, len(cookies)+1)
	for _, c := range cookies {
		if c.Name == models.LastLoginCookie {
			continue
		}
		jar[c.Name] = c
	}
	jar[models.LastLoginCookie] = models.Cookie{
		Name:  models.LastLoginCookie,
		Value: s.login,
	}

	if err := s.write(jar); err != nil {
		return err
	}

	s.logger.Debug().Int("count", len(cookies)).Str("path", s.path).Msg("Saved cookies")
	return nil
}

// Clear empties the jar
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(map[string]models.Cookie{})
}

func (s *FileStore) read() (map[string]models.Cookie, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	jar := map[string]models.Cookie{}
	if err := json.Unmarshal(data, &jar); err != nil {
		// A corrupt jar is treated as empty; the next login rewrites it
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cookie file is not valid JSON, ignoring")
		return nil, nil
	}
	return jar, nil
}

// write replaces the file atomically via a temp file in the same directory
func (s *FileStore) write(jar map[string]models.Cookie) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	data, err := json.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cookie file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}
