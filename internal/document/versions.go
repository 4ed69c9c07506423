package document

import (
	"context"
	defError "errors"

	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/render"

	"gorm.io/gorm"
)

// VersionStore renders markdown into immutable versions and hands out
// per-document version numbers that never repeat.
type VersionStore struct {
	repository DocumentRepository
	renderer   render.Renderer
	metrics    *metrics.Metrics
}

func NewVersionStore(repository DocumentRepository, renderer render.Renderer, m *metrics.Metrics) *VersionStore {
	return &VersionStore{
		repository: repository,
		renderer:   renderer,
		metrics:    m,
	}
}

// build renders markdown into an unsaved version.
func (s *VersionStore) build(markdown string) (*domain.DocumentVersion, error) {
	renderedHTML, plain, err := s.renderer.Render(markdown)
	if err != nil {
		return nil, err
	}
	return &domain.DocumentVersion{
		SourceMD:      markdown,
		RenderedHTML:  renderedHTML,
		RenderedPlain: plain,
	}, nil
}

// Create renders markdown and appends it to doc as the next version.
func (s *VersionStore) Create(ctx context.Context, docID uint64, markdown string) (*domain.DocumentVersion, error) {
	version, err := s.build(markdown)
	if err != nil {
		return nil, err
	}
	if err := s.repository.CreateVersion(ctx, docID, version); err != nil {
		return nil, err
	}
	s.metrics.VersionsCreated.Inc()
	return version, nil
}

// Latest returns the highest-numbered version, or nil when doc has none.
func (s *VersionStore) Latest(ctx context.Context, docID uint64) (*domain.DocumentVersion, error) {
	version, err := s.repository.LatestVersion(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return version, nil
}

func (s *VersionStore) Get(ctx context.Context, docID, number uint64) (*domain.DocumentVersion, error) {
	return s.repository.FindVersion(ctx, docID, number)
}

func (s *VersionStore) List(ctx context.Context, docID uint64) ([]VersionSummary, error) {
	return s.repository.ListVersions(ctx, docID)
}

func (s *VersionStore) Delete(ctx context.Context, docID, number uint64) error {
	return s.repository.DeleteVersion(ctx, docID, number)
}
