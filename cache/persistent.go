package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"boardgame-api-go/game"
	"boardgame-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Bucket per cache namespace. Rows in the id-list buckets hold JSON id
// arrays; rows in the item bucket hold canonical game payloads.
const (
	searchBucket = "search"
	itemBucket   = "item"
	hotBucket    = "hot"
)

// Store is the durable cache tier, backed by BoltDB. Every row carries its
// own absolute expiry; expired rows are deleted when read and purged
// opportunistically when the store is opened, never on a background schedule.
type Store struct {
	db   *bolt.DB
	path string
	now  func() time.Time
}

type storeRow struct {
	Value     json.RawMessage `json:"value"`
	HasStats  bool            `json:"hasStats,omitempty"`
	ExpiresAt int64           `json:"expiresAt"`
}

// NewStore opens (or creates) the cache database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %v", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{searchBucket, itemBucket, hotBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %v", err)
	}

	s := &Store{db: db, path: dbPath, now: time.Now}

	if purged, err := s.PurgeExpired(); err != nil {
		log.Warnf("%s Failed to purge expired rows: %v", logcolors.LogStore, err)
	} else if purged > 0 {
		log.Infof("%s Purged %d expired rows on open", logcolors.LogStore, purged)
	}

	log.Infof("%s Persistent cache initialized at %s", logcolors.LogStore, dbPath)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PurgeExpired walks every bucket and deletes rows whose expiry has passed.
func (s *Store) PurgeExpired() (int, error) {
	now := s.now().Unix()
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{searchBucket, itemBucket, hotBucket} {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var stale [][]byte
			if err := b.ForEach(func(k, v []byte) error {
				var row storeRow
				if err := json.Unmarshal(v, &row); err != nil || row.ExpiresAt < now {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
				purged++
			}
		}
		return nil
	})
	return purged, err
}

// GetSearchIDs returns the stored id list for a normalized search query.
func (s *Store) GetSearchIDs(key string) ([]int, bool, error) {
	return s.getIDs(searchBucket, key)
}

// SetSearchIDs stores the id list for a normalized search query.
func (s *Store) SetSearchIDs(key string, ids []int, ttl time.Duration) error {
	return s.setIDs(searchBucket, key, ids, ttl)
}

// GetHotIDs returns the stored id list for a trending-list kind.
func (s *Store) GetHotIDs(key string) ([]int, bool, error) {
	return s.getIDs(hotBucket, key)
}

// SetHotIDs stores the id list for a trending-list kind.
func (s *Store) SetHotIDs(key string, ids []int, ttl time.Duration) error {
	return s.setIDs(hotBucket, key, ids, ttl)
}

func (s *Store) getIDs(bucket, key string) ([]int, bool, error) {
	var ids []int
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		var row storeRow
		if err := json.Unmarshal(data, &row); err != nil {
			// Corrupt row: drop it and report a miss.
			log.Warnf("%s Dropping corrupt %s row %q: %v", logcolors.LogStore, bucket, key, err)
			return b.Delete([]byte(key))
		}
		if row.ExpiresAt < s.now().Unix() {
			return b.Delete([]byte(key))
		}
		if err := json.Unmarshal(row.Value, &ids); err != nil {
			log.Warnf("%s Dropping corrupt %s row %q: %v", logcolors.LogStore, bucket, key, err)
			return b.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return ids, true, nil
}

func (s *Store) setIDs(bucket, key string, ids []int, ttl time.Duration) error {
	if ids == nil {
		ids = []int{}
	}
	value, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	row := storeRow{Value: value, ExpiresAt: s.now().Add(ttl).Unix()}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// GetItem returns the stored record for a game id. Legacy or partial payloads
// are run through the normalizer before being returned; when the normalized
// shape differs from what was stored, the row is rewritten in place with the
// upgraded shape, preserving its original expiry. The read-normalize-rewrite
// sequence runs inside a single write transaction so concurrent readers of
// the same key cannot interleave.
//
// When needStats is set, a record lacking rating data does not satisfy the
// lookup even if present and unexpired.
func (s *Store) GetItem(id int, needStats bool) (*game.Game, bool, error) {
	key := []byte(strconv.Itoa(id))
	var result *game.Game
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(itemBucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", itemBucket)
		}
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var row storeRow
		if err := json.Unmarshal(data, &row); err != nil {
			log.Warnf("%s Dropping corrupt item row %d: %v", logcolors.LogStore, id, err)
			return b.Delete(key)
		}
		if row.ExpiresAt < s.now().Unix() {
			return b.Delete(key)
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(row.Value, &raw); err != nil {
			log.Warnf("%s Dropping corrupt item row %d: %v", logcolors.LogStore, id, err)
			return b.Delete(key)
		}
		g := game.Normalize(raw)
		if g == nil {
			return b.Delete(key)
		}

		upgraded, err := json.Marshal(g)
		if err != nil {
			return err
		}
		if string(upgraded) != string(row.Value) {
			// Upgrade-on-read: persist the canonical shape, keep the expiry.
			newRow := storeRow{Value: upgraded, HasStats: g.HasStats(), ExpiresAt: row.ExpiresAt}
			newData, err := json.Marshal(newRow)
			if err != nil {
				return err
			}
			if err := b.Put(key, newData); err != nil {
				return err
			}
			log.Debugf("%s Upgraded legacy item row %d on read", logcolors.LogStore, id)
		}

		if needStats && !g.HasStats() {
			return nil
		}
		result = g
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	return result, true, nil
}

// SetItem stores a canonical record, replacing any previous row for its id.
func (s *Store) SetItem(g *game.Game, ttl time.Duration) error {
	if g == nil {
		return fmt.Errorf("nil game")
	}
	id, err := strconv.Atoi(g.ID)
	if err != nil {
		return fmt.Errorf("non-numeric game id %q", g.ID)
	}
	value, err := json.Marshal(g)
	if err != nil {
		return err
	}
	row := storeRow{Value: value, HasStats: g.HasStats(), ExpiresAt: s.now().Add(ttl).Unix()}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(itemBucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", itemBucket)
		}
		return b.Put([]byte(strconv.Itoa(id)), data)
	})
}

// BucketStats describes one namespace of the store.
type BucketStats struct {
	Keys      int `json:"keys"`
	SizeBytes int `json:"size_bytes"`
}

// Stats returns per-namespace key counts and approximate sizes.
func (s *Store) Stats() (map[string]BucketStats, error) {
	out := make(map[string]BucketStats, 3)
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{searchBucket, itemBucket, hotBucket} {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var bs BucketStats
			if err := b.ForEach(func(k, v []byte) error {
				bs.Keys++
				bs.SizeBytes += len(k) + len(v)
				return nil
			}); err != nil {
				return err
			}
			out[name] = bs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
