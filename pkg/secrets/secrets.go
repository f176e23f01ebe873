// Package secrets persists the local-only, never-transmitted key
// material the resolver and crypto handlers consult: signing keys,
// transit keys, and event (group) keys. It is a separate embedded store
// from the relational event/projection database (pkg/store), matching
// spec.md §5's distinction between "the SQLite database" and "local
// secret storage" as separate shared resources.
//
// Grounded on _examples/cuemby-warren/pkg/storage/boltdb.go: one bucket
// per entity kind, JSON-marshaled records, a CRUD method per bucket each
// opening its own db.Update/db.View transaction.
package secrets

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSigningKeys = []byte("signing_keys")
	bucketTransitKeys = []byte("transit_keys")
	bucketEventKeys   = []byte("event_keys")
)

// SigningKey is a local identity's ed25519 key pair, keyed by peer_id
// (spec.md §6 persisted schema: signing_keys(peer_id PK, network_id,
// private_key, created_at)).
type SigningKey struct {
	PeerID     string `json:"peer_id"`
	NetworkID  string `json:"network_id"`
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`

	// KXPublicKey/KXPrivateKey are the Curve25519 key-exchange pair used
	// for sealing/unsealing (key_ref{kind: peer}), kept alongside the
	// ed25519 signing pair under the same peer_id since both belong to
	// the same local identity.
	KXPublicKey  []byte `json:"kx_public_key"`
	KXPrivateKey []byte `json:"kx_private_key"`

	CreatedAt int64 `json:"created_at"`
}

// TransitKey is a hop-by-hop transit secret, keyed by key_id
// (transit_keys(key_id PK, network_id, secret, created_at, expires_at)).
type TransitKey struct {
	KeyID     string `json:"key_id"`
	NetworkID string `json:"network_id"`
	Secret    []byte `json:"secret"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// EventKey is a group/channel event-layer secret, keyed by key_id
// (event_keys(key_id PK, network_id, group_id, secret, created_at,
// expires_at)).
type EventKey struct {
	KeyID     string `json:"key_id"`
	NetworkID string `json:"network_id"`
	GroupID   string `json:"group_id"`
	Secret    []byte `json:"secret"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// Store is the local secret database handle.
type Store struct {
	db *bolt.DB
}

// Open creates (if needed) and opens the bbolt file at path, ensuring
// all three buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open secrets store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSigningKeys, bucketTransitKeys, bucketEventKeys} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init secrets buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutSigningKey upserts a signing key by peer_id.
func (s *Store) PutSigningKey(k SigningKey) error {
	return putJSON(s.db, bucketSigningKeys, k.PeerID, k)
}

// GetSigningKey fetches a signing key by peer_id. Returns ok=false if
// absent.
func (s *Store) GetSigningKey(peerID string) (k SigningKey, ok bool, err error) {
	ok, err = getJSON(s.db, bucketSigningKeys, peerID, &k)
	return k, ok, err
}

// PutTransitKey upserts a transit key by key_id.
func (s *Store) PutTransitKey(k TransitKey) error {
	return putJSON(s.db, bucketTransitKeys, k.KeyID, k)
}

// GetTransitKey fetches a transit key by key_id.
func (s *Store) GetTransitKey(keyID string) (k TransitKey, ok bool, err error) {
	ok, err = getJSON(s.db, bucketTransitKeys, keyID, &k)
	return k, ok, err
}

// PutEventKey upserts an event (group) key by key_id.
func (s *Store) PutEventKey(k EventKey) error {
	return putJSON(s.db, bucketEventKeys, k.KeyID, k)
}

// GetEventKey fetches an event (group) key by key_id.
func (s *Store) GetEventKey(keyID string) (k EventKey, ok bool, err error) {
	ok, err = getJSON(s.db, bucketEventKeys, keyID, &k)
	return k, ok, err
}

func putJSON(db *bolt.DB, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", bucket, err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func getJSON(db *bolt.DB, bucket []byte, key string, v any) (bool, error) {
	var found bool
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return false, fmt.Errorf("get %s: %w", bucket, err)
	}
	return found, nil
}
