package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/yuskondo/docquiz/internal/core/ports"
)

type PoolConfig struct {
	ScrollBatchSize int
	MaxIDsPerSource int
}

func (c PoolConfig) normalize() PoolConfig {
	if c.ScrollBatchSize <= 0 {
		c.ScrollBatchSize = 256
	}
	if c.MaxIDsPerSource <= 0 {
		c.MaxIDsPerSource = 500
	}
	return c
}

// ChunkPool caches the universe of chunk ids per canonical source name.
// It is built lazily on first use, shared by all requests, and rebuilt
// only through explicit invalidation. Readers work against an immutable
// snapshot; Rebuild is the single writer.
type ChunkPool struct {
	store  ports.ChunkStore
	cfg    PoolConfig
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot map[string][]string
}

func NewChunkPool(store ports.ChunkStore, cfg PoolConfig, logger *slog.Logger) *ChunkPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkPool{
		store:  store,
		cfg:    cfg.normalize(),
		logger: logger.With("component", "chunk_pool"),
	}
}

// Invalidate drops the snapshot; the next read rebuilds it.
func (p *ChunkPool) Invalidate() {
	p.mu.Lock()
	p.snapshot = nil
	p.mu.Unlock()
}

// Rebuild scans the chunk store and replaces the snapshot. It is also
// the lazy build path, so a scan is never run twice concurrently.
func (p *ChunkPool) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(ctx)
}

func (p *ChunkPool) rebuildLocked(ctx context.Context) error {
	built := make(map[string][]string)
	capped := make(map[string]bool)
	offset := ""
	for {
		chunks, next, err := p.store.Scroll(ctx, offset, p.cfg.ScrollBatchSize)
		if err != nil {
			return fmt.Errorf("scroll chunk store: %w", err)
		}
		for _, chunk := range chunks {
			source := canonicalSource(chunk.Source)
			if source == "" || chunk.ID == "" {
				continue
			}
			if len(built[source]) >= p.cfg.MaxIDsPerSource {
				capped[source] = true
				continue
			}
			built[source] = append(built[source], chunk.ID)
		}
		if next == "" {
			break
		}
		offset = next
	}
	for source := range capped {
		p.logger.Warn("chunk pool capped source", "source", source, "cap", p.cfg.MaxIDsPerSource)
	}
	p.snapshot = built
	p.logger.Info("chunk pool built", "sources", len(built))
	return nil
}

func (p *ChunkPool) current(ctx context.Context) (map[string][]string, error) {
	p.mu.RLock()
	snapshot := p.snapshot
	p.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		if err := p.rebuildLocked(ctx); err != nil {
			return nil, err
		}
	}
	return p.snapshot, nil
}

// Sources returns the canonical source names currently in the pool.
func (p *ChunkPool) Sources(ctx context.Context) ([]string, error) {
	snapshot, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(snapshot))
	for source := range snapshot {
		out = append(out, source)
	}
	sort.Strings(out)
	return out, nil
}

// Sample draws up to n chunk ids without replacement, balanced across
// the requested sources by round-robin. A requested source with no pool
// entry after canonical normalization contributes zero ids and is
// logged; ids are never substituted from other sources.
func (p *ChunkPool) Sample(ctx context.Context, sources []string, n int, seed *int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	snapshot, err := p.current(ctx)
	if err != nil {
		return nil, err
	}

	var requested []string
	if len(sources) > 0 {
		seen := make(map[string]struct{}, len(sources))
		for _, source := range sources {
			normalized := canonicalSource(source)
			if normalized == "" {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			requested = append(requested, normalized)
		}
	} else {
		for source := range snapshot {
			requested = append(requested, source)
		}
		sort.Strings(requested)
	}

	rng := newSeededRand(seed)
	pools := make([][]string, 0, len(requested))
	for _, source := range requested {
		ids, ok := snapshot[source]
		if !ok || len(ids) == 0 {
			p.logger.Warn("requested source has no pool entry", "source", source)
			continue
		}
		shuffled := make([]string, len(ids))
		copy(shuffled, ids)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		pools = append(pools, shuffled)
	}
	if len(pools) == 0 {
		return nil, nil
	}

	out := make([]string, 0, n)
	for round := 0; len(out) < n; round++ {
		progressed := false
		for _, pool := range pools {
			if round >= len(pool) {
				continue
			}
			out = append(out, pool[round])
			progressed = true
			if len(out) == n {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out, nil
}

func newSeededRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
