// Package checkpoint persists batch-combine progress in a key-value store so
// a long combine can resume across separate invocations.
//
// A checkpoint is stored as individual keys:
//
//	allHeaders          JSON array of the precomputed header union
//	lastProcessedIndex  cursor into the source list
//	combinedRowsCount   rows appended so far
//	startTime           epoch milliseconds of the first batch
//	runId               UUID shared by every batch of one run
//	sourcesHash         xxh3 fingerprint of the source list
//
// Deleting the keys is the only terminal state.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"sheetops/internal/kvstore"
)

const (
	keyHeaders = "allHeaders"
	keyCursor  = "lastProcessedIndex"
	keyRows    = "combinedRowsCount"
	keyStart   = "startTime"
	keyRunID   = "runId"
	keySources = "sourcesHash"
)

// keys lists every key owned by a checkpoint. The cursor is written last.
var keys = []string{keyHeaders, keyRows, keyStart, keyRunID, keySources, keyCursor}

// BatchCheckpoint is the progress of one batch run. The zero value is a
// fresh run.
type BatchCheckpoint struct {
	AllHeaders   []string
	Cursor       int
	RowsCombined int
	StartedAt    time.Time
	RunID        string
	// SourcesHash fingerprints the source list the cursor indexes into.
	SourcesHash uint64
}

// Fresh reports whether no batch has completed yet.
func (cp BatchCheckpoint) Fresh() bool { return cp.Cursor == 0 }

// HashSources fingerprints an ordered list of source names.
func HashSources(sources []string) uint64 {
	return xxh3.HashString(strings.Join(sources, "\x00"))
}

// Codec reads and writes checkpoints through a kvstore.Store.
type Codec struct {
	KV kvstore.Store
}

// Load returns the stored checkpoint. ok is false when none exists, in which
// case the zero BatchCheckpoint is returned.
func (c Codec) Load(ctx context.Context) (cp BatchCheckpoint, ok bool, err error) {
	raw := make(map[string]string, len(keys))
	for _, k := range keys {
		v, found, err := c.KV.Get(ctx, k)
		if err != nil {
			return BatchCheckpoint{}, false, fmt.Errorf("checkpoint: get %s: %w", k, err)
		}
		if found {
			raw[k] = v
		}
	}
	if _, found := raw[keyCursor]; !found {
		return BatchCheckpoint{}, false, nil
	}

	if v := raw[keyHeaders]; v != "" {
		if err := json.Unmarshal([]byte(v), &cp.AllHeaders); err != nil {
			return BatchCheckpoint{}, false, fmt.Errorf("checkpoint: decode %s: %w", keyHeaders, err)
		}
	}
	if cp.Cursor, err = atoi(raw, keyCursor); err != nil {
		return BatchCheckpoint{}, false, err
	}
	if cp.RowsCombined, err = atoi(raw, keyRows); err != nil {
		return BatchCheckpoint{}, false, err
	}
	if v := raw[keyStart]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return BatchCheckpoint{}, false, fmt.Errorf("checkpoint: decode %s: %w", keyStart, err)
		}
		cp.StartedAt = time.UnixMilli(ms)
	}
	cp.RunID = raw[keyRunID]
	if v := raw[keySources]; v != "" {
		if cp.SourcesHash, err = strconv.ParseUint(v, 16, 64); err != nil {
			return BatchCheckpoint{}, false, fmt.Errorf("checkpoint: decode %s: %w", keySources, err)
		}
	}
	return cp, true, nil
}

func atoi(raw map[string]string, key string) (int, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("checkpoint: decode %s: invalid count %q", key, v)
	}
	return n, nil
}

// Save writes every key of cp, the cursor last.
func (c Codec) Save(ctx context.Context, cp BatchCheckpoint) error {
	headers, err := json.Marshal(cp.AllHeaders)
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", keyHeaders, err)
	}
	if cp.AllHeaders == nil {
		headers = []byte("[]")
	}
	vals := map[string]string{
		keyHeaders: string(headers),
		keyRows:    strconv.Itoa(cp.RowsCombined),
		keyStart:   strconv.FormatInt(cp.StartedAt.UnixMilli(), 10),
		keyRunID:   cp.RunID,
		keySources: strconv.FormatUint(cp.SourcesHash, 16),
		keyCursor:  strconv.Itoa(cp.Cursor),
	}
	for _, k := range keys {
		if err := c.KV.Set(ctx, k, vals[k]); err != nil {
			return fmt.Errorf("checkpoint: set %s: %w", k, err)
		}
	}
	return nil
}

// Delete removes every checkpoint key, the cursor first so an interrupted
// delete never leaves a resumable cursor behind.
func (c Codec) Delete(ctx context.Context) error {
	for i := len(keys) - 1; i >= 0; i-- {
		if err := c.KV.Delete(ctx, keys[i]); err != nil {
			return fmt.Errorf("checkpoint: delete %s: %w", keys[i], err)
		}
	}
	return nil
}
