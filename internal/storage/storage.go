package storage

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"libraryportal/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists named record collections as JSON files under a single
// directory, one file per collection. Collections are loaded fully into
// memory and rewritten fully on every save; a missing file reads as an
// empty collection.
type Store struct {
	dir string
}

// New creates the data directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the named collection into out. An absent file leaves out
// untouched, so callers get the empty collection they started with.
func (s *Store) Load(name string, out interface{}) error {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read collection %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode collection %s: %w", name, err)
	}
	return nil
}

// Save rewrites the named collection wholesale.
func (s *Store) Save(name string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), raw, 0o644); err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Collection names. Each collection is owned by exactly one repository.
const (
	CollectionAccounts = "accounts"
	CollectionBooks    = "books"
	CollectionLoans    = "loans"
	CollectionRequests = "requests"
)

// Seed writes the default accounts and catalog on first boot. Collections
// that already exist on disk are left alone, even when empty.
func (s *Store) Seed() error {
	if !s.exists(CollectionAccounts) {
		accounts := []models.Account{
			{ID: 1, Username: "admin", Password: "admin123", Role: models.RoleAdmin},
			{ID: 2, Username: "student1", Password: "stud123", Role: models.RoleStudent},
		}
		if err := s.Save(CollectionAccounts, accounts); err != nil {
			return err
		}
	}
	if !s.exists(CollectionBooks) {
		books := []models.Book{
			{ID: 1, Title: "Clean Code", Author: "Robert C. Martin", Available: 3},
			{ID: 2, Title: "Atomic Habits", Author: "James Clear", Available: 2},
			{ID: 3, Title: "The Pragmatic Programmer", Author: "Andrew Hunt", Available: 1},
		}
		if err := s.Save(CollectionBooks, books); err != nil {
			return err
		}
	}
	if !s.exists(CollectionLoans) {
		if err := s.Save(CollectionLoans, []models.Loan{}); err != nil {
			return err
		}
	}
	if !s.exists(CollectionRequests) {
		if err := s.Save(CollectionRequests, []models.Request{}); err != nil {
			return err
		}
	}
	return nil
}
