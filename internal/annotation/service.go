package annotation

import (
	"context"
	defError "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"markdown-annotator/internal/anchor"
	"markdown-annotator/internal/document"
	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/permission"
	"markdown-annotator/internal/worker"
	"markdown-annotator/redis"

	"gorm.io/gorm"
)

const DefaultColor = "yellow"

type Service interface {
	List(ctx context.Context, docID uint64, caller *domain.User, token string) ([]AnnotationView, error)
	Get(ctx context.Context, annotationID uint64, caller *domain.User, token string) (*AnnotationView, error)
	Create(ctx context.Context, docID uint64, caller *domain.User, input CreateInput) (*AnnotationView, error)
	Delete(ctx context.Context, annotationID uint64, caller *domain.User) error
	AddComment(ctx context.Context, annotationID uint64, caller *domain.User, text string) (*CommentView, error)
}

// DocumentFinder loads documents by id.
type DocumentFinder interface {
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
}

// LatestVersions returns a document's highest-numbered version, nil if none.
type LatestVersions interface {
	Latest(ctx context.Context, docID uint64) (*domain.DocumentVersion, error)
}

type DefaultService struct {
	repository AnnotationRepository
	documents  DocumentFinder
	versions   LatestVersions
	resolver   *permission.Resolver
	cache      *redis.Cache
	pool       *worker.WorkerPool
	metrics    *metrics.Metrics
}

func NewService(
	repository AnnotationRepository,
	documents DocumentFinder,
	versions LatestVersions,
	resolver *permission.Resolver,
	cache *redis.Cache,
	pool *worker.WorkerPool,
	m *metrics.Metrics,
) Service {
	return &DefaultService{
		repository: repository,
		documents:  documents,
		versions:   versions,
		resolver:   resolver,
		cache:      cache,
		pool:       pool,
		metrics:    m,
	}
}

type CommentView struct {
	ID        uint64    `json:"id"`
	Text      string    `json:"text"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// AnnotationView is an annotation as returned to clients. Content is the
// first comment's text.
type AnnotationView struct {
	ID            uint64        `json:"id"`
	VersionID     uint64        `json:"version_id"`
	VersionNumber uint64        `json:"version_number"`
	Start         int           `json:"start"`
	End           int           `json:"end"`
	Anchor        string        `json:"anchor"`
	Color         string        `json:"color"`
	UserID        uint64        `json:"user_id"`
	User          string        `json:"user"`
	Content       string        `json:"content"`
	CanDelete     bool          `json:"can_delete"`
	Comments      []CommentView `json:"comments"`
	CreatedAt     time.Time     `json:"created_at"`
}

type CreateInput struct {
	// Start and End are -1 when the client sent no offsets.
	Start  int
	End    int
	Anchor string
	Color  string
	Note   string
}

func toCommentView(c *domain.AnnotationComment) CommentView {
	return CommentView{
		ID:        c.ID,
		Text:      c.Text,
		User:      c.User.Username,
		CreatedAt: c.CreatedAt,
	}
}

func toView(a *domain.Annotation, versionNumber uint64) AnnotationView {
	comments := make([]CommentView, 0, len(a.Comments))
	for i := range a.Comments {
		comments = append(comments, toCommentView(&a.Comments[i]))
	}
	return AnnotationView{
		ID:            a.ID,
		VersionID:     a.VersionID,
		VersionNumber: versionNumber,
		Start:         a.StartOffset,
		End:           a.EndOffset,
		Anchor:        a.AnchorText,
		Color:         a.Color,
		UserID:        a.UserID,
		User:          a.User.Username,
		Content:       a.Note(),
		Comments:      comments,
		CreatedAt:     a.CreatedAt,
	}
}

func (s *DefaultService) loadDocument(ctx context.Context, docID uint64) (*domain.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}
	return doc, nil
}

// loadAnnotation returns the annotation with its owning document and version.
func (s *DefaultService) loadAnnotation(ctx context.Context, annotationID uint64) (*domain.Annotation, *domain.Document, *domain.DocumentVersion, error) {
	a, err := s.repository.FindByID(ctx, annotationID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, errors.NotFound("Annotation not found", err)
		}
		return nil, nil, nil, err
	}

	doc, version, err := s.repository.OwningDocument(ctx, a.VersionID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, errors.NotFound("Annotation not found", err)
		}
		return nil, nil, nil, err
	}
	return a, doc, version, nil
}

// canView admits callers who can view the document or hold its share token.
func (s *DefaultService) canView(ctx context.Context, doc *domain.Document, caller *domain.User, token string) (permission.Capabilities, error) {
	caps, err := s.resolver.Capabilities(ctx, doc, caller)
	if err != nil {
		return caps, err
	}
	if !caps.CanView && document.ValidToken(doc, token) {
		caps.CanView = true
	}
	if !caps.CanView {
		return caps, errors.Forbidden("You don't have access to this document", nil)
	}
	return caps, nil
}

func canDelete(a *AnnotationView, caller *domain.User, caps permission.Capabilities) bool {
	return caller != nil && (a.UserID == caller.ID || caps.CanEdit)
}

func generationKey(docID uint64) string {
	return fmt.Sprintf("annotations:doc:%d:gen", docID)
}

func (s *DefaultService) invalidate(ctx context.Context, docID uint64) {
	s.cache.IncrementVersion(ctx, generationKey(docID))
}

// List returns the annotations on the document's latest version. Older
// versions' annotations are not carried forward.
func (s *DefaultService) List(ctx context.Context, docID uint64, caller *domain.User, token string) ([]AnnotationView, error) {
	doc, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	caps, err := s.canView(ctx, doc, caller, token)
	if err != nil {
		return nil, err
	}

	latest, err := s.versions.Latest(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return []AnnotationView{}, nil
	}

	views, err := s.listVersion(ctx, doc.ID, latest)
	if err != nil {
		return nil, err
	}

	for i := range views {
		views[i].CanDelete = canDelete(&views[i], caller, caps)
	}
	return views, nil
}

// listVersion reads through the cache. Entries are keyed by the document's
// generation and the version id, so a write or a newer version makes old
// entries unreachable.
func (s *DefaultService) listVersion(ctx context.Context, docID uint64, version *domain.DocumentVersion) ([]AnnotationView, error) {
	gen := s.cache.GetVersion(ctx, generationKey(docID))
	cacheKey := fmt.Sprintf("annotations:doc:%d:g:%d:v:%d", docID, gen, version.ID)

	var views []AnnotationView
	found, err := s.cache.Get(ctx, cacheKey, &views)
	if err != nil {
		slog.Warn("annotation cache read failed", "key", cacheKey, "error", err)
	}
	if found {
		return views, nil
	}

	annotations, err := s.repository.ListByVersion(ctx, version.ID)
	if err != nil {
		return nil, err
	}

	views = make([]AnnotationView, 0, len(annotations))
	for i := range annotations {
		views = append(views, toView(&annotations[i], version.Number))
	}

	if s.cache.Enabled() && s.pool != nil {
		cached := append([]AnnotationView(nil), views...)
		s.pool.Submit(func(ctx context.Context) error {
			return s.cache.Set(ctx, cacheKey, cached)
		})
	}
	return views, nil
}

func (s *DefaultService) Get(ctx context.Context, annotationID uint64, caller *domain.User, token string) (*AnnotationView, error) {
	a, doc, version, err := s.loadAnnotation(ctx, annotationID)
	if err != nil {
		return nil, err
	}
	caps, err := s.canView(ctx, doc, caller, token)
	if err != nil {
		return nil, err
	}

	view := toView(a, version.Number)
	view.CanDelete = canDelete(&view, caller, caps)
	return &view, nil
}

// Create anchors a new annotation to the latest version as read at call
// time. A version saved concurrently does not move it.
func (s *DefaultService) Create(ctx context.Context, docID uint64, caller *domain.User, input CreateInput) (*AnnotationView, error) {
	if caller == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}

	doc, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	canAnnotate, err := s.resolver.CanAnnotate(ctx, doc, caller)
	if err != nil {
		return nil, err
	}
	if !canAnnotate {
		return nil, errors.Forbidden("You can't annotate this document", nil)
	}

	version, err := s.versions.Latest(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, errors.NoVersion("Document has no version to annotate")
	}

	span, err := anchor.ResolveSpan(version.RenderedPlain, input.Start, input.End, strings.TrimSpace(input.Anchor))
	if err != nil {
		s.metrics.AnchorResolutions.WithLabelValues("failed").Inc()
		return nil, errors.InvalidAnchor(err.Error(), err)
	}
	s.metrics.AnchorResolutions.WithLabelValues(string(span.Method)).Inc()

	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = DefaultColor
	}

	a := &domain.Annotation{
		VersionID:   version.ID,
		UserID:      caller.ID,
		StartOffset: span.Start,
		EndOffset:   span.End,
		AnchorText:  span.AnchorText,
		Color:       color,
	}

	var note *domain.AnnotationComment
	if text := strings.TrimSpace(input.Note); text != "" {
		note = &domain.AnnotationComment{UserID: caller.ID, Text: text}
	}

	if err := s.repository.Create(ctx, a, note); err != nil {
		return nil, err
	}
	s.metrics.AnnotationsCreated.Inc()
	s.invalidate(ctx, doc.ID)

	a.User = *caller
	for i := range a.Comments {
		a.Comments[i].User = *caller
	}

	slog.Info("annotation created",
		"annotation_id", a.ID,
		"document_id", doc.ID,
		"version", version.Number,
		"method", span.Method)

	view := toView(a, version.Number)
	view.CanDelete = true
	return &view, nil
}

// Delete removes an annotation. Its author and document editors may delete.
func (s *DefaultService) Delete(ctx context.Context, annotationID uint64, caller *domain.User) error {
	if caller == nil {
		return errors.Unauthenticated("Login required", nil)
	}

	a, doc, _, err := s.loadAnnotation(ctx, annotationID)
	if err != nil {
		return err
	}

	if a.UserID != caller.ID {
		canEdit, err := s.resolver.CanEdit(ctx, doc, caller)
		if err != nil {
			return err
		}
		if !canEdit {
			return errors.Forbidden("You can't delete this annotation", nil)
		}
	}

	if err := s.repository.Delete(ctx, a.ID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Annotation not found", err)
		}
		return err
	}
	s.invalidate(ctx, doc.ID)
	return nil
}

// AddComment appends a reply to an annotation's thread.
func (s *DefaultService) AddComment(ctx context.Context, annotationID uint64, caller *domain.User, text string) (*CommentView, error) {
	if caller == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.BadRequest("Comment text is required", nil)
	}

	a, doc, _, err := s.loadAnnotation(ctx, annotationID)
	if err != nil {
		return nil, err
	}

	canAnnotate, err := s.resolver.CanAnnotate(ctx, doc, caller)
	if err != nil {
		return nil, err
	}
	if !canAnnotate {
		return nil, errors.Forbidden("You can't comment on this document", nil)
	}

	comment := &domain.AnnotationComment{
		AnnotationID: a.ID,
		UserID:       caller.ID,
		Text:         text,
	}
	if err := s.repository.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	s.invalidate(ctx, doc.ID)

	comment.User = *caller
	view := toCommentView(comment)
	return &view, nil
}
