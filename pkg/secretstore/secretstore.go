package secretstore

import (
	"errors"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a small encrypted-at-rest KV wrapper (Badger) holding exchange
// API credentials. Encryption is provided by Badger options (value log +
// key registry), not by this wrapper.
type Store struct {
	db *badger.DB
}

// Credentials is an API key/secret pair for the exchange gateway.
type Credentials struct {
	APIKey    string
	APISecret string
}

const (
	keyAPIKey    = "binance.api_key"
	keyAPISecret = "binance.api_secret"
)

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; if nil, DB is opened without encryption (not recommended)
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetString reads one key; found is false when the key does not exist.
func (s *Store) GetString(key string) (val string, found bool, err error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return val, found, nil
}

// SetString writes one key.
func (s *Store) SetString(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// LoadCredentials reads the exchange credentials; found is false when either
// half is missing.
func (s *Store) LoadCredentials() (creds Credentials, found bool, err error) {
	key, okKey, err := s.GetString(keyAPIKey)
	if err != nil {
		return Credentials{}, false, err
	}
	secret, okSecret, err := s.GetString(keyAPISecret)
	if err != nil {
		return Credentials{}, false, err
	}
	if !okKey || !okSecret {
		return Credentials{}, false, nil
	}
	return Credentials{APIKey: key, APISecret: secret}, true, nil
}

// SaveCredentials stores the exchange credentials.
func (s *Store) SaveCredentials(creds Credentials) error {
	if err := s.SetString(keyAPIKey, creds.APIKey); err != nil {
		return err
	}
	return s.SetString(keyAPISecret, creds.APISecret)
}
