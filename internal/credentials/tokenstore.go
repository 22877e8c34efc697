package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/client/transport"
)

// FileTokenStore persists a Box OAuth token as JSON. It implements
// transport.TokenStore so the file format matches mcp-go's OAuth client.
type FileTokenStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileTokenStore creates a token store backed by path. The directory is
// created on first write.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file path.
func (s *FileTokenStore) Path() string {
	return s.path
}

// GetToken reads the stored token. A missing file yields transport.ErrNoToken;
// an unreadable one is reported so a broken token file is not silently replaced.
func (s *FileTokenStore) GetToken(_ context.Context) (*transport.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, transport.ErrNoToken
		}
		return nil, err
	}

	var token transport.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("token file %s is corrupt: %w", s.path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, transport.ErrNoToken
	}
	return &token, nil
}

// SaveToken writes the token atomically with 0600 permissions.
func (s *FileTokenStore) SaveToken(_ context.Context, token *transport.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
