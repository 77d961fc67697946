package usecase

import (
	"context"
	"path"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// SourcesService lists the distinct sources currently indexed, derived
// from the chunk pool snapshot.
type SourcesService struct {
	pool *ChunkPool
}

func NewSourcesService(pool *ChunkPool) *SourcesService {
	return &SourcesService{pool: pool}
}

func (s *SourcesService) List(ctx context.Context) ([]domain.SourceInfo, error) {
	names, err := s.pool.Sources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SourceInfo, 0, len(names))
	for _, name := range names {
		out = append(out, domain.SourceInfo{
			ID:    name,
			Title: strings.TrimSuffix(name, path.Ext(name)),
			Type:  sourceType(name),
		})
	}
	return out, nil
}

func sourceType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return "text"
	}
	return ext
}
