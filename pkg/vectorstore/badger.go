package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/expertgraph/pkg/utils"
)

const recordPrefix = "emb/"

// BadgerStore implements Store on an embedded Badger key-value database.
// Keys are emb/<node_id>/<chunk_id>; similarity queries scan the keyspace,
// which is adequate for the corpus sizes this pipeline indexes.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger-backed store at path. An empty
// path opens an in-memory database, used by tests.
func NewBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(nodeID, chunkID string) []byte {
	return []byte(recordPrefix + nodeID + "/" + chunkID)
}

// Upsert stores records by key, replacing any previous vector for the same
// (node_id, chunk_id).
func (s *BadgerStore) Upsert(ctx context.Context, records []*Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rec := range records {
		if rec.NodeID == "" || rec.ChunkID == "" {
			return fmt.Errorf("vector record requires node_id and chunk_id")
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal vector record: %w", err)
		}
		if err := wb.Set(recordKey(rec.NodeID, rec.ChunkID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// ContentHash returns the stored content hash for a key, or "" if absent.
func (s *BadgerStore) ContentHash(ctx context.Context, nodeID, chunkID string) (string, error) {
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(nodeID, chunkID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var rec Record
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			hash = rec.ContentHash
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to read vector record: %w", err)
	}
	return hash, nil
}

// PruneChunks deletes the node's records whose chunk ID is keep or higher.
func (s *BadgerStore) PruneChunks(ctx context.Context, nodeID string, keep int) error {
	if nodeID == "" {
		return fmt.Errorf("prune requires a node_id")
	}
	if keep < 0 {
		keep = 0
	}
	prefix := []byte(recordPrefix + nodeID + "/")

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			n, err := strconv.Atoi(string(key[len(prefix):]))
			if err != nil {
				continue
			}
			if n >= keep {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan chunks for pruning: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to prune stale chunks: %w", err)
	}
	return nil
}

// Search scans all stored vectors and returns the top-K by cosine
// similarity, descending, with (node_id, chunk_id) as the deterministic
// tie-break.
func (s *BadgerStore) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 || len(vector) == 0 {
		return []Hit{}, nil
	}

	var hits []Hit
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				score := utils.CosineSimilarity(vector, rec.Vector)
				hits = append(hits, Hit{
					NodeID:  rec.NodeID,
					ChunkID: rec.ChunkID,
					Score:   score,
					Text:    rec.Text,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		ki := hits[i].NodeID + "/" + hits[i].ChunkID
		kj := hits[j].NodeID + "/" + hits[j].ChunkID
		return strings.Compare(ki, kj) < 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
