// Package registry holds the daemon's in-memory position/pool database: a
// primary map of positions by id, a secondary index from pool to position
// ids, and the last known PoolInfo and active bin per pool. It is owned by
// the stream subscriber and read by the relay through View, following the
// sync.RWMutex-plus-atomic.Pointer-cached-view pattern used for
// high-read-throughput registries elsewhere in the pack.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
)

// PositionRecord is one entry in the registry: the decoded position plus
// its opaque id (the position account's own public key).
type PositionRecord struct {
	ID       solana.PublicKey
	Position decode.Position
}

// View is a read-only, independent snapshot of the registry's contents.
// Mutating a View never affects the live registry.
type View struct {
	Positions map[solana.PublicKey]PositionRecord
	PoolIndex map[solana.PublicKey][]solana.PublicKey
	Pools     map[solana.PublicKey]decode.PoolInfo
	ActiveBin map[solana.PublicKey]int32
}

// Registry is the concurrency-safe position/pool database.
type Registry struct {
	mu sync.RWMutex

	positions map[solana.PublicKey]PositionRecord
	poolIndex map[solana.PublicKey]map[solana.PublicKey]struct{}
	pools     map[solana.PublicKey]decode.PoolInfo
	activeBin map[solana.PublicKey]int32

	cachedView atomic.Pointer[View]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{
		positions: make(map[solana.PublicKey]PositionRecord),
		poolIndex: make(map[solana.PublicKey]map[solana.PublicKey]struct{}),
		pools:     make(map[solana.PublicKey]decode.PoolInfo),
		activeBin: make(map[solana.PublicKey]int32),
	}
	r.updateCachedView()
	return r
}

func (r *Registry) updateCachedView() {
	v := &View{
		Positions: make(map[solana.PublicKey]PositionRecord, len(r.positions)),
		PoolIndex: make(map[solana.PublicKey][]solana.PublicKey, len(r.poolIndex)),
		Pools:     make(map[solana.PublicKey]decode.PoolInfo, len(r.pools)),
		ActiveBin: make(map[solana.PublicKey]int32, len(r.activeBin)),
	}
	for id, rec := range r.positions {
		v.Positions[id] = rec
	}
	for pool, ids := range r.poolIndex {
		list := make([]solana.PublicKey, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		v.PoolIndex[pool] = list
	}
	for pool, info := range r.pools {
		v.Pools[pool] = info
	}
	for pool, bin := range r.activeBin {
		v.ActiveBin[pool] = bin
	}
	r.cachedView.Store(v)
}

// View returns the current cached snapshot. Safe to read from any
// goroutine, including concurrently with writers.
func (r *Registry) View() *View {
	v := r.cachedView.Load()
	if v == nil {
		return &View{}
	}
	return v
}

// PutPosition inserts or replaces a position and keeps the secondary index
// consistent.
func (r *Registry) PutPosition(id solana.PublicKey, pos decode.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.positions[id]; ok && existing.Position.Pool != pos.Pool {
		r.removeFromIndex(existing.Position.Pool, id)
	}
	r.positions[id] = PositionRecord{ID: id, Position: pos}
	r.addToIndex(pos.Pool, id)
	r.updateCachedView()
}

// RemovePosition deletes a position and its secondary-index entry. Returns
// the removed record and whether it existed.
func (r *Registry) RemovePosition(id solana.PublicKey) (PositionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.positions[id]
	if !ok {
		return PositionRecord{}, false
	}
	delete(r.positions, id)
	r.removeFromIndex(rec.Position.Pool, id)
	r.updateCachedView()
	return rec, true
}

// GetPosition returns a position by id.
func (r *Registry) GetPosition(id solana.PublicKey) (PositionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.positions[id]
	return rec, ok
}

// PositionsForPool returns every position id indexed under pool.
func (r *Registry) PositionsForPool(pool solana.PublicKey) []solana.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.poolIndex[pool]
	out := make([]solana.PublicKey, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// PutPool replaces the stored PoolInfo for pool and returns the previous
// active bin (nil if the pool was not previously known).
func (r *Registry) PutPool(pool solana.PublicKey, info decode.PoolInfo) (prevActiveBin *int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.activeBin[pool]; ok {
		v := prev
		prevActiveBin = &v
	}
	r.pools[pool] = info
	r.activeBin[pool] = info.ActiveID
	r.updateCachedView()
	return prevActiveBin
}

// Pool returns the last known PoolInfo for pool.
func (r *Registry) Pool(pool solana.PublicKey) (decode.PoolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.pools[pool]
	return info, ok
}

// WatchedPools returns every pool id the registry currently tracks.
func (r *Registry) WatchedPools() []solana.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(r.pools))
	for p := range r.pools {
		out = append(out, p)
	}
	return out
}

// Clear empties the registry. Used at the start of a full rebuild.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = make(map[solana.PublicKey]PositionRecord)
	r.poolIndex = make(map[solana.PublicKey]map[solana.PublicKey]struct{})
	r.pools = make(map[solana.PublicKey]decode.PoolInfo)
	r.activeBin = make(map[solana.PublicKey]int32)
	r.updateCachedView()
}

// Size returns the number of positions and distinct pools currently known.
func (r *Registry) Size() (positions, pools int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions), len(r.pools)
}

func (r *Registry) addToIndex(pool, id solana.PublicKey) {
	set, ok := r.poolIndex[pool]
	if !ok {
		set = make(map[solana.PublicKey]struct{})
		r.poolIndex[pool] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) removeFromIndex(pool, id solana.PublicKey) {
	set, ok := r.poolIndex[pool]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.poolIndex, pool)
	}
}
