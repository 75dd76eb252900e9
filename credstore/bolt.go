package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCreds = []byte("credentials")
	keyCurrent  = []byte("current")
)

// BoltStore is a bbolt-backed Store. Each Set writes the whole record
// in one transaction; bbolt fsyncs on commit, so durability holds by
// the time Set returns.
type BoltStore struct {
	db *bolt.DB
	subscribers
}

// DefaultPath returns the standard on-disk location for the bridge
// database, creating the parent directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".voicemux")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "bridge.db"), nil
}

// OpenBolt opens (or creates) the credential database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCreds)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore: init bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Get() (Credentials, error) {
	var c Credentials
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCreds).Get(keyCurrent)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &c)
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("credstore: get: %w", err)
	}
	return c, nil
}

func (b *BoltStore) Set(c Credentials) error {
	if err := c.validate(); err != nil {
		return err
	}
	c = c.normalized()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("credstore: marshal: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCreds).Put(keyCurrent, raw)
	})
	if err != nil {
		return fmt.Errorf("credstore: set: %w", err)
	}
	b.notify(c)
	return nil
}

func (b *BoltStore) Clear() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCreds).Delete(keyCurrent)
	})
	if err != nil {
		return fmt.Errorf("credstore: clear: %w", err)
	}
	b.notify(Credentials{})
	return nil
}

func (b *BoltStore) Subscribe(fn func(Credentials)) func() {
	return b.add(fn)
}
