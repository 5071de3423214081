package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CookieCache persists one cookie set per account as a JSON file named by a
// hash of the account, so the file name does not reveal it.
type CookieCache struct {
	dir string
	now func() time.Time
}

type cookieFile struct {
	SavedAt time.Time        `json:"saved_at"`
	Cookies []schemas.Cookie `json:"cookies"`
}

// NewCookieCache returns a cache rooted at dir. A leading ~ is expanded.
func NewCookieCache(dir string, now func() time.Time) (*CookieCache, error) {
	if dir == "" {
		return nil, errors.New("cookie cache directory is empty")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand cookie directory %q: %w", dir, err)
	}
	if now == nil {
		now = time.Now
	}
	return &CookieCache{dir: expanded, now: now}, nil
}

// Path is the file holding account's cookies.
func (c *CookieCache) Path(account string) string {
	sum := sha256.Sum256([]byte(account))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])[:16]+".json")
}

// Load returns the cached cookies for account, or nil when none are cached.
func (c *CookieCache) Load(account string) ([]schemas.Cookie, error) {
	raw, err := os.ReadFile(c.Path(account))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie cache: %w", err)
	}

	var f cookieFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode cookie cache: %w", err)
	}
	return f.Cookies, nil
}

// Save replaces the cached cookies for account. The file is written to a
// temporary name and renamed so readers never see a partial file.
func (c *CookieCache) Save(account string, cookies []schemas.Cookie) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	raw, err := json.Marshal(cookieFile{SavedAt: c.now().UTC(), Cookies: cookies})
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cookie file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict cookie file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cookie file: %w", err)
	}
	if err := os.Rename(tmpName, c.Path(account)); err != nil {
		return fmt.Errorf("failed to store cookie file: %w", err)
	}
	return nil
}

// Delete forgets the cookies for account.
func (c *CookieCache) Delete(account string) error {
	err := os.Remove(c.Path(account))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cookie cache: %w", err)
	}
	return nil
}
