// Package credstore persists the session credentials in a small bbolt file.
package credstore

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bilifetch/bilifetch"
)

var buckets = struct {
	Metadata    []byte
	Credentials []byte
}{
	Metadata:    []byte("__metadata__"),
	Credentials: []byte("credentials"),
}

var keys = struct {
	Version []byte
	Current []byte
}{
	Version: []byte("version"),
	Current: []byte("current"),
}

const currentVersion = 1

// record is the persisted schema. Absence of the record means an anonymous
// startup.
type record struct {
	SessionToken string    `json:"session_token"`
	CryptoToken  string    `json:"crypto_token"`
	UserID       string    `json:"user_id,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

type Store struct {
	db *bbolt.DB
}

var _ bilifetch.CredentialStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		metadata, err := tx.CreateBucketIfNotExists(buckets.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(buckets.Credentials); err != nil {
			return err
		}
		versionBytes, err := json.Marshal(currentVersion)
		if err != nil {
			return err
		}
		return metadata.Put(keys.Version, versionBytes)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load() (creds bilifetch.Credentials, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(buckets.Credentials).Get(keys.Current)
		if raw == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		creds = bilifetch.Credentials{
			SessionToken: rec.SessionToken,
			CryptoToken:  rec.CryptoToken,
			UserID:       rec.UserID,
		}
		ok = true
		return nil
	})
	return creds, ok, err
}

func (s *Store) Save(creds bilifetch.Credentials) error {
	raw, err := json.Marshal(record{
		SessionToken: creds.SessionToken,
		CryptoToken:  creds.CryptoToken,
		UserID:       creds.UserID,
		SavedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(buckets.Credentials).Put(keys.Current, raw)
	})
}

func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(buckets.Credentials).Delete(keys.Current)
	})
}
