// Package boltstore is a github.com/etcd-io/bbolt backed store.Store
// implementation: a real persistence path, bucket-per-concern, without
// pulling in a full SQL/ORM stack.
package boltstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/abstractgit/monocore/internal/cache"
	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/internal/syncutil"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
	"github.com/abstractgit/monocore/store"
)

// Comments are stored inline on the MergeRequest record (gob-encoded
// into bucketMRs) rather than in their own bucket: merge requests in
// this core are single-commit and short-lived, so a comment thread never
// grows large enough to need a separate index.
var (
	bucketRefs      = []byte("refs")
	bucketCommits   = []byte("commits")
	bucketTrees     = []byte("trees")
	bucketBlobs     = []byte("blobs")
	bucketTags      = []byte("tags")
	bucketMRs       = []byte("mrs")
	bucketMRsByPath = []byte("mrs_by_path")
)

var allBuckets = [][]byte{
	bucketRefs, bucketCommits, bucketTrees, bucketBlobs, bucketTags,
	bucketMRs, bucketMRsByPath,
}

const mutexStripes = 64

// objectCacheSize bounds the in-memory read-through cache kept in front
// of the commits and trees buckets. Both object kinds are immutable once
// written, so the cache never needs invalidation logic, only eviction.
const objectCacheSize = 4096

// Store is a bbolt-backed store.Store.
type Store struct {
	db         *bbolt.DB
	writeLocks *syncutil.NamedMutex
	mrCounter  int

	commitCache *cache.LRU
	treeCache   *cache.LRU
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if necessary) a bbolt database at path and
// ensures every bucket this store needs exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, xerrors.Errorf("could not open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("could not initialize buckets: %w", err)
	}
	commitCache, err := cache.NewLRU(objectCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("could not initialize commit cache: %w", err)
	}
	treeCache, err := cache.NewLRU(objectCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("could not initialize tree cache: %w", err)
	}
	return &Store{
		db:          db,
		writeLocks:  syncutil.NewNamedMutex(mutexStripes),
		commitCache: commitCache,
		treeCache:   treeCache,
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func init() {
	gob.Register(store.Reference{})
	gob.Register(store.MergeRequest{})
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (s *Store) GetRef(path string) (store.Reference, bool, error) {
	var ref store.Reference
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRefs).Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return decodeGob(data, &ref)
	})
	if err != nil {
		return store.Reference{}, false, xerrors.Errorf("could not read ref %s: %w", path, err)
	}
	return ref, found, nil
}

func (s *Store) SaveRef(path string, commitHash, treeHash hash.Oid, opts ...store.RefOption) error {
	ref := store.Reference{Path: path, CommitHash: commitHash, TreeHash: treeHash}
	for _, opt := range opts {
		opt(&ref)
	}
	data, err := encodeGob(ref)
	if err != nil {
		return xerrors.Errorf("could not encode ref: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(path), data)
	})
	if err != nil {
		return xerrors.Errorf("could not save ref %s: %w", path, err)
	}
	return nil
}

func (s *Store) GetCommit(id hash.Oid) (*object.Commit, bool, error) {
	if v, ok := s.commitCache.Get(id); ok {
		return v.(*object.Commit), true, nil
	}

	var c *object.Commit
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCommits).Get(id.Bytes())
		if data == nil {
			return nil
		}
		o := object.NewWithID(id, object.TypeCommit, append([]byte{}, data...))
		parsed, err := o.AsCommit()
		if err != nil {
			return err
		}
		c = parsed
		return nil
	})
	if err != nil {
		return nil, false, xerrors.Errorf("could not read commit %s: %w", id, err)
	}
	if c != nil {
		s.commitCache.Add(id, c)
	}
	return c, c != nil, nil
}

func (s *Store) GetCommits(ids []hash.Oid) ([]*object.Commit, error) {
	out := make([]*object.Commit, 0, len(ids))
	for _, id := range ids {
		c, ok, err := s.GetCommit(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetTree(id hash.Oid) (*object.Tree, bool, error) {
	if v, ok := s.treeCache.Get(id); ok {
		return v.(*object.Tree), true, nil
	}

	var t *object.Tree
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTrees).Get(id.Bytes())
		if data == nil {
			return nil
		}
		o := object.NewWithID(id, object.TypeTree, append([]byte{}, data...))
		parsed, err := o.AsTree()
		if err != nil {
			return err
		}
		t = parsed
		return nil
	})
	if err != nil {
		return nil, false, xerrors.Errorf("could not read tree %s: %w", id, err)
	}
	if t != nil {
		s.treeCache.Add(id, t)
	}
	return t, t != nil, nil
}

func (s *Store) GetTrees(ids []hash.Oid) ([]*object.Tree, error) {
	out := make([]*object.Tree, 0, len(ids))
	for _, id := range ids {
		t, ok, err := s.GetTree(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetAllBlobHashes() ([]hash.Oid, error) {
	var out []hash.Oid
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, _ []byte) error {
			id, err := hash.FromHex(k)
			if err != nil {
				return err
			}
			out = append(out, id)
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("could not list blobs: %w", err)
	}
	return out, nil
}

func (s *Store) GetAllTrees() ([]*object.Tree, error) {
	var out []*object.Tree
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTrees).ForEach(func(k, v []byte) error {
			id, err := hash.FromHex(k)
			if err != nil {
				return err
			}
			o := object.NewWithID(id, object.TypeTree, append([]byte{}, v...))
			t, err := o.AsTree()
			if err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("could not list trees: %w", err)
	}
	return out, nil
}

func (s *Store) GetAllCommits() ([]*object.Commit, error) {
	var out []*object.Commit
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCommits).ForEach(func(k, v []byte) error {
			id, err := hash.FromHex(k)
			if err != nil {
				return err
			}
			o := object.NewWithID(id, object.TypeCommit, append([]byte{}, v...))
			c, err := o.AsCommit()
			if err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("could not list commits: %w", err)
	}
	return out, nil
}

func (s *Store) GetAllTags() ([]*object.Tag, error) {
	var out []*object.Tag
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(k, v []byte) error {
			id, err := hash.FromHex(k)
			if err != nil {
				return err
			}
			o := object.NewWithID(id, object.TypeTag, append([]byte{}, v...))
			t, err := o.AsTag()
			if err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("could not list tags: %w", err)
	}
	return out, nil
}

func (s *Store) RawBlobsByHash(ids []hash.Oid) (map[hash.Oid][]byte, error) {
	out := make(map[hash.Oid][]byte, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for _, id := range ids {
			if data := b.Get(id.Bytes()); data != nil {
				out[id] = append([]byte{}, data...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("could not read blobs: %w", err)
	}
	return out, nil
}

// SaveEntries persists a batch of decoded pack entries. Each hash's
// write is guarded by its stripe of the NamedMutex (distinct hashes may
// share a stripe), and the idempotency check-then-put happens under a
// single bbolt write transaction; bbolt runs one write transaction at a
// time, so concurrent saves are serialized at that point.
func (s *Store) SaveEntries(entries []packfile.Entry) error {
	for _, e := range entries {
		if err := s.saveEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveEntry(e packfile.Entry) error {
	key := e.ID.Bytes()
	s.writeLocks.Lock(key)
	defer s.writeLocks.Unlock(key)

	bucketName, err := bucketForType(e.Type)
	if err != nil {
		return err
	}

	// Validate before writing so a malformed entry never reaches disk.
	// The parsed form is also what a read immediately after this write
	// would produce, so it's used to warm the read-through cache.
	switch e.Type {
	case object.TypeCommit:
		c, err := e.ToObject().AsCommit()
		if err != nil {
			return fmt.Errorf("could not parse commit %s: %w", e.ID, err)
		}
		defer s.commitCache.Add(e.ID, c)
	case object.TypeTree:
		t, err := e.ToObject().AsTree()
		if err != nil {
			return fmt.Errorf("could not parse tree %s: %w", e.ID, err)
		}
		defer s.treeCache.Add(e.ID, t)
	case object.TypeTag:
		if _, err := e.ToObject().AsTag(); err != nil {
			return fmt.Errorf("could not parse tag %s: %w", e.ID, err)
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(e.ID.Bytes()) != nil {
			return nil
		}
		return b.Put(e.ID.Bytes(), e.Payload)
	})
}

func bucketForType(typ object.Type) ([]byte, error) {
	switch typ {
	case object.TypeCommit:
		return bucketCommits, nil
	case object.TypeTree:
		return bucketTrees, nil
	case object.TypeBlob:
		return bucketBlobs, nil
	case object.TypeTag:
		return bucketTags, nil
	default:
		return nil, fmt.Errorf("cannot persist entry of type %s", typ)
	}
}

func (s *Store) OpenMRForPath(path string) (*store.MergeRequest, bool, error) {
	var id []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		id = tx.Bucket(bucketMRsByPath).Get([]byte(path))
		return nil
	})
	if err != nil {
		return nil, false, xerrors.Errorf("could not look up open mr for %s: %w", path, err)
	}
	if id == nil {
		return nil, false, nil
	}
	return s.getMR(string(id))
}

func (s *Store) getMR(id string) (*store.MergeRequest, bool, error) {
	var mr store.MergeRequest
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMRs).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return decodeGob(data, &mr)
	})
	if err != nil {
		return nil, false, xerrors.Errorf("could not read mr %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	return &mr, true, nil
}

func (s *Store) CreateMR(path string, fromHash, toHash hash.Oid) (*store.MergeRequest, error) {
	s.mrCounter++
	mr := &store.MergeRequest{
		ID:       fmt.Sprintf("mr-%d", s.mrCounter),
		Path:     path,
		FromHash: fromHash,
		ToHash:   toHash,
		State:    store.MRStateOpen,
	}
	if err := s.SaveMR(mr); err != nil {
		return nil, err
	}
	return mr, nil
}

func (s *Store) SaveMR(mr *store.MergeRequest) error {
	data, err := encodeGob(*mr)
	if err != nil {
		return xerrors.Errorf("could not encode mr: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMRs).Put([]byte(mr.ID), data); err != nil {
			return err
		}
		byPath := tx.Bucket(bucketMRsByPath)
		if mr.State == store.MRStateOpen {
			return byPath.Put([]byte(mr.Path), []byte(mr.ID))
		}
		if existing := byPath.Get([]byte(mr.Path)); existing != nil && string(existing) == mr.ID {
			return byPath.Delete([]byte(mr.Path))
		}
		return nil
	})
}

func (s *Store) UpdateMR(mr *store.MergeRequest) error {
	return s.SaveMR(mr)
}

func (s *Store) AddMRComment(mrID string, actorID int64, text string) error {
	mr, ok, err := s.getMR(mrID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrMRNotFound
	}
	mr.Comments = append(mr.Comments, store.Comment{ActorID: actorID, Text: text})
	return s.SaveMR(mr)
}
