// Package store persists one normalized spec per tracked (fileKey, nodeId)
// pair in badger, with a small LRU read cache and zstd-compressed values.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	apperrors "sentinel/internal/errors"
	"sentinel/internal/normalize"
	shared "sentinel/shared/types"
	"sentinel/shared/utils"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const keyPrefix = "spec:"

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Store provides the spec persistence layer. One writer process per key is
// assumed; badger transactions give save-and-detect its crash atomicity.
type Store struct {
	db          *badger.DB
	cache       *lru.Cache[string, *shared.SpecRecord]
	enc         *zstd.Encoder
	dec         *zstd.Decoder
	compressMin int
	logger      *zap.Logger
}

// Options configures Store behavior.
type Options struct {
	// Number of records to keep in the read cache
	CacheSize int
	// Minimum serialized size in bytes before values are compressed
	CompressMin int
	Logger      *zap.Logger
}

func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = 512
	}
	if opts.CompressMin == 0 {
		opts.CompressMin = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, *shared.SpecRecord](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating record cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &Store{
		db:          db,
		cache:       cache,
		enc:         enc,
		dec:         dec,
		compressMin: opts.CompressMin,
		logger:      opts.Logger,
	}, nil
}

// ComputeContentHash digests stable-serialized spec text. Hash equality is
// the sole criterion for "has anything changed" at this layer.
func ComputeContentHash(serialized []byte) string {
	return utils.HashContent(serialized)
}

// NewRecord builds a SpecRecord for a normalized spec, computing its content
// hash over the stable serialization.
func NewRecord(fileKey, nodeID string, spec shared.RawNode) (*shared.SpecRecord, error) {
	serialized, err := normalize.Serialize(spec)
	if err != nil {
		return nil, fmt.Errorf("serializing spec: %w", err)
	}
	return &shared.SpecRecord{
		NodeID:      nodeID,
		FileKey:     fileKey,
		ContentHash: ComputeContentHash(serialized),
		Spec:        spec,
		StoredAt:    time.Now().UTC(),
	}, nil
}

func specKey(fileKey, nodeID string) (string, error) {
	key, err := utils.SanitizeKey(fileKey, nodeID)
	if err != nil {
		return "", err
	}
	return keyPrefix + key, nil
}

// SaveSpec writes or overwrites the record for its (fileKey, nodeId) key.
func (s *Store) SaveSpec(rec *shared.SpecRecord) error {
	key, payload, err := s.prepare(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return apperrors.Storage("writing spec record", err).WithNode(rec.FileKey, rec.NodeID)
	}

	s.cache.Add(key, rec)
	return nil
}

// LoadSpec returns the stored record, or (nil, nil) when none exists.
func (s *Store) LoadSpec(fileKey, nodeID string) (*shared.SpecRecord, error) {
	key, err := specKey(fileKey, nodeID)
	if err != nil {
		return nil, apperrors.Storage("sanitizing spec key", err).WithNode(fileKey, nodeID)
	}

	if rec, ok := s.cache.Get(key); ok {
		return rec, nil
	}

	var rec *shared.SpecRecord
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := s.decode(val)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("reading spec record", err).WithNode(fileKey, nodeID)
	}

	s.cache.Add(key, rec)
	return rec, nil
}

// LoadAllSpecs enumerates every tracked node for a file. Order follows the
// byte order of the sanitized keys; callers must not rely on it across runs.
func (s *Store) LoadAllSpecs(fileKey string) ([]*shared.SpecRecord, error) {
	if fileKey == "" {
		return nil, apperrors.Storage("sanitizing spec key", fmt.Errorf("file key cannot be empty"))
	}
	prefix := []byte(keyPrefix + utils.EncodePart(fileKey) + "_")

	var records []*shared.SpecRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := s.decode(val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("listing spec records", err)
	}
	return records, nil
}

// DetectChanges compares two records by content hash only; it never inspects
// spec content. A nil previous means first observation, reported unchanged.
func (s *Store) DetectChanges(previous, current *shared.SpecRecord) shared.ChangeDetectionResult {
	return shared.ChangeDetectionResult{
		HasChanged: previous != nil && previous.ContentHash != current.ContentHash,
		Previous:   previous,
		Current:    current,
	}
}

// SaveAndDetectChanges loads the previous record, persists the current one
// unconditionally, and reports the comparison. Load and save happen in a
// single badger transaction so a crash can never leave the store pointing at
// data staler than what was reported.
func (s *Store) SaveAndDetectChanges(rec *shared.SpecRecord) (shared.ChangeDetectionResult, error) {
	key, payload, err := s.prepare(rec)
	if err != nil {
		return shared.ChangeDetectionResult{}, err
	}

	var previous *shared.SpecRecord
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == nil {
			if err := item.Value(func(val []byte) error {
				decoded, err := s.decode(val)
				if err != nil {
					return err
				}
				previous = decoded
				return nil
			}); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return shared.ChangeDetectionResult{}, apperrors.Storage("saving spec record", err).WithNode(rec.FileKey, rec.NodeID)
	}

	s.cache.Add(key, rec)
	return s.DetectChanges(previous, rec), nil
}

// RemoveSpec deletes a tracked record. Removing an absent record is not an
// error.
func (s *Store) RemoveSpec(fileKey, nodeID string) error {
	key, err := specKey(fileKey, nodeID)
	if err != nil {
		return apperrors.Storage("sanitizing spec key", err).WithNode(fileKey, nodeID)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return apperrors.Storage("deleting spec record", err).WithNode(fileKey, nodeID)
	}

	s.cache.Remove(key)
	return nil
}

// prepare sanitizes the key and encodes the record payload.
func (s *Store) prepare(rec *shared.SpecRecord) (string, []byte, error) {
	key, err := specKey(rec.FileKey, rec.NodeID)
	if err != nil {
		return "", nil, apperrors.Storage("sanitizing spec key", err).WithNode(rec.FileKey, rec.NodeID)
	}

	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	if rec.ContentHash == "" {
		serialized, err := normalize.Serialize(rec.Spec)
		if err != nil {
			return "", nil, apperrors.Storage("serializing spec", err).WithNode(rec.FileKey, rec.NodeID)
		}
		rec.ContentHash = ComputeContentHash(serialized)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, apperrors.Storage("marshaling spec record", err).WithNode(rec.FileKey, rec.NodeID)
	}

	if len(data) >= s.compressMin {
		data = s.enc.EncodeAll(data, nil)
	}
	return key, data, nil
}

// decode unmarshals a stored value, transparently decompressing when the
// zstd magic prefix is present.
func (s *Store) decode(val []byte) (*shared.SpecRecord, error) {
	if len(val) > 4 && bytes.Equal(val[:4], zstdMagic) {
		plain, err := s.dec.DecodeAll(val, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing record: %w", err)
		}
		val = plain
	}

	var rec shared.SpecRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return &rec, nil
}
