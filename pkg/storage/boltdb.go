package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/clustercore/clustercore/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCA             = []byte("ca")
	bucketServices       = []byte("installed_services")
	bucketRevocations    = []byte("jwt_blacklist")
	bucketHashJobs       = []byte("hash_jobs")
	bucketGossipSnapshot = []byte("gossip_state")
)

// BoltStore implements Store using an embedded BoltDB file under the
// node's state directory.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the node's local database.
func NewBoltStore(stateDir string) (*BoltStore, error) {
	dbPath := filepath.Join(stateDir, "clustercore.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCA, bucketServices, bucketRevocations, bucketHashJobs, bucketGossipSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("root"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("root"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltStore) SaveInstalledService(rec *InstalledService) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketServices).Put([]byte(rec.Name), data)
	})
}

func (s *BoltStore) GetInstalledService(name string) (*InstalledService, error) {
	var rec InstalledService
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketServices).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("service not installed: %s", name)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListInstalledServices() ([]*InstalledService, error) {
	var out []*InstalledService
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).ForEach(func(k, v []byte) error {
			var rec InstalledService
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, &rec)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteInstalledService(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).Delete([]byte(name))
	})
}

func (s *BoltStore) RevokeToken(jti string, expiry int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRevocations).Put([]byte(jti), []byte(strconv.FormatInt(expiry, 10)))
	})
}

func (s *BoltStore) IsRevoked(jti string) (bool, error) {
	var revoked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(bucketRevocations).Get([]byte(jti)) != nil
		return nil
	})
	return revoked, err
}

func (s *BoltStore) PruneExpiredRevocations(now int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevocations)
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			expiry, err := strconv.ParseInt(string(v), 10, 64)
			if err == nil && expiry < now {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) SaveHashJob(job *types.HashJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHashJobs).Put([]byte(job.JobID), data)
	})
}

func (s *BoltStore) GetHashJob(jobID string) (*types.HashJob, error) {
	var job types.HashJob
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHashJobs).Get([]byte(jobID))
		if v == nil {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return json.Unmarshal(v, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListHashJobs() ([]*types.HashJob, error) {
	var out []*types.HashJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHashJobs).ForEach(func(k, v []byte) error {
			var job types.HashJob
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			out = append(out, &job)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SaveGossipSnapshot(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGossipSnapshot).Put([]byte("table"), data)
	})
}

func (s *BoltStore) GetGossipSnapshot() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketGossipSnapshot).Get([]byte("table"))
		if v == nil {
			return nil
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}
