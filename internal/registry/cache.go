package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
)

// cacheRecord is the on-disk shape of one cached position: the opaque id,
// owner, pool id, auxiliary id, side, and min/max bin, matching spec.md's
// persisted-state contract exactly (it deliberately omits amounts and
// created-at — those are re-derived from chain on the next full rebuild).
type cacheRecord struct {
	ID     solana.PublicKey `json:"id"`
	Owner  solana.PublicKey `json:"owner"`
	Pool   solana.PublicKey `json:"pool"`
	Aux    solana.PublicKey `json:"aux"`
	Side   decode.Side      `json:"side"`
	MinBin int32            `json:"minBin"`
	MaxBin int32            `json:"maxBin"`
}

// SaveCache atomically overwrites path with a JSON array of every position
// currently in the registry. File mode is owner-read/write only.
func SaveCache(r *Registry, path string) error {
	v := r.View()
	records := make([]cacheRecord, 0, len(v.Positions))
	for id, rec := range v.Positions {
		records = append(records, cacheRecord{
			ID:     id,
			Owner:  rec.Position.Owner,
			Pool:   rec.Position.Pool,
			Aux:    rec.Position.Auxiliary,
			Side:   rec.Position.Side,
			MinBin: rec.Position.MinBin,
			MaxBin: rec.Position.MaxBin,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal registry cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write registry cache tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically replace registry cache: %w", err)
	}
	return nil
}

// CachedPositionID identifies a position named only by the fields the cache
// file carries; LoadCache returns these, not full decode.Position values,
// since amounts and created-at are not persisted.
type CachedPositionID struct {
	ID     solana.PublicKey
	Owner  solana.PublicKey
	Pool   solana.PublicKey
	Aux    solana.PublicKey
	Side   decode.Side
	MinBin int32
	MaxBin int32
}

// LoadCache reads path and returns the cached position identifiers. A
// missing file is not an error — callers fall through to a full rebuild.
func LoadCache(path string) ([]CachedPositionID, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry cache: %w", err)
	}

	var records []cacheRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal registry cache: %w", err)
	}

	out := make([]CachedPositionID, 0, len(records))
	for _, rec := range records {
		out = append(out, CachedPositionID{
			ID:     rec.ID,
			Owner:  rec.Owner,
			Pool:   rec.Pool,
			Aux:    rec.Aux,
			Side:   rec.Side,
			MinBin: rec.MinBin,
			MaxBin: rec.MaxBin,
		})
	}
	return out, nil
}

// EnsureDir makes sure the cache file's parent directory exists.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}
