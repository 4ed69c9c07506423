package document

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	defError "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/permission"
	"markdown-annotator/redis"

	"gorm.io/gorm"
)

type Service interface {
	CreateDocument(ctx context.Context, owner *domain.User, title, markdown string) (*domain.Document, error)
	Save(ctx context.Context, docID uint64, editor *domain.User, markdown string) (*VersionDTO, error)
	View(ctx context.Context, docID uint64, viewer *domain.User, token string) (*DocumentView, error)
	Version(ctx context.Context, docID, number uint64, viewer *domain.User, token string) (*VersionDTO, error)
	Versions(ctx context.Context, docID uint64, viewer *domain.User, token string) ([]VersionSummary, error)
	DeleteVersion(ctx context.Context, docID, number uint64, requester *domain.User) error
	TogglePublic(ctx context.Context, docID uint64, requester *domain.User) (bool, error)
	ShareLink(ctx context.Context, docID uint64, requester *domain.User) (string, error)
	List(ctx context.Context, user *domain.User, page, pageSize int) (*PaginatedDocuments, error)
	Delete(ctx context.Context, docID uint64, requester *domain.User) error
}

type DefaultService struct {
	repository DocumentRepository
	versions   *VersionStore
	resolver   *permission.Resolver
	cache      *redis.Cache
	metrics    *metrics.Metrics
	baseURL    string
}

func NewService(
	repository DocumentRepository,
	versions *VersionStore,
	resolver *permission.Resolver,
	cache *redis.Cache,
	m *metrics.Metrics,
	baseURL string,
) Service {
	return &DefaultService{
		repository: repository,
		versions:   versions,
		resolver:   resolver,
		cache:      cache,
		metrics:    m,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

const publicListVersionKey = "docs:public:version"

// newShareToken returns 32 hex characters from crypto/rand.
func newShareToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateDocument stores a document owned by owner together with version 1.
func (s *DefaultService) CreateDocument(ctx context.Context, owner *domain.User, title, markdown string) (*domain.Document, error) {
	if owner == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}

	token, err := newShareToken()
	if err != nil {
		return nil, err
	}

	first, err := s.versions.build(markdown)
	if err != nil {
		return nil, err
	}

	doc := &domain.Document{
		Title:      title,
		OwnerID:    owner.ID,
		ShareToken: token,
	}
	if err := s.repository.Create(ctx, doc, first); err != nil {
		return nil, err
	}
	s.metrics.VersionsCreated.Inc()

	slog.Info("document created", "document_id", doc.ID, "owner_id", owner.ID)
	return doc, nil
}

// load fetches a document, mapping a missing row to NotFound.
func (s *DefaultService) load(ctx context.Context, docID uint64) (*domain.Document, error) {
	doc, err := s.repository.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}
	return doc, nil
}

// readable resolves capabilities and admits the caller when they can view
// the document or hold its share token.
func (s *DefaultService) readable(ctx context.Context, docID uint64, user *domain.User, token string) (*domain.Document, permission.Capabilities, error) {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, permission.Capabilities{}, err
	}

	caps, err := s.resolver.Capabilities(ctx, doc, user)
	if err != nil {
		return nil, permission.Capabilities{}, err
	}

	if !caps.CanView && ValidToken(doc, token) {
		caps.CanView = true
	}
	if !caps.CanView {
		return nil, caps, errors.Forbidden("You don't have access to this document", nil)
	}
	return doc, caps, nil
}

// ValidToken compares token with the document's share token in constant time.
func ValidToken(doc *domain.Document, token string) bool {
	if token == "" || doc.ShareToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(doc.ShareToken)) == 1
}

func (s *DefaultService) owned(ctx context.Context, docID uint64, requester *domain.User, action string) (*domain.Document, error) {
	if requester == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !permission.IsOwner(doc, requester) {
		return nil, errors.Forbidden("Only the owner can "+action, nil)
	}
	return doc, nil
}

type VersionDTO struct {
	ID            uint64    `json:"id"`
	DocumentID    uint64    `json:"document_id"`
	Number        uint64    `json:"number"`
	SourceMD      string    `json:"source_md,omitempty"`
	RenderedHTML  string    `json:"rendered_html"`
	RenderedPlain string    `json:"rendered_plain"`
	CreatedAt     time.Time `json:"created_at"`
}

// toVersionDTO hides the markdown source from callers who cannot edit.
func toVersionDTO(v *domain.DocumentVersion, withSource bool) *VersionDTO {
	dto := &VersionDTO{
		ID:            v.ID,
		DocumentID:    v.DocumentID,
		Number:        v.Number,
		RenderedHTML:  v.RenderedHTML,
		RenderedPlain: v.RenderedPlain,
		CreatedAt:     v.CreatedAt,
	}
	if withSource {
		dto.SourceMD = v.SourceMD
	}
	return dto
}

// Save appends a new version. Editors and the owner may save.
func (s *DefaultService) Save(ctx context.Context, docID uint64, editor *domain.User, markdown string) (*VersionDTO, error) {
	if editor == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}

	canEdit, err := s.resolver.CanEdit(ctx, doc, editor)
	if err != nil {
		return nil, err
	}
	if !canEdit {
		return nil, errors.Forbidden("You can't edit this document", nil)
	}

	version, err := s.versions.Create(ctx, doc.ID, markdown)
	if err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("Document was saved concurrently, retry", err)
		}
		return nil, err
	}
	if doc.IsPublic {
		s.cache.IncrementVersion(ctx, publicListVersionKey)
	}

	slog.Info("version saved", "document_id", doc.ID, "number", version.Number, "user_id", editor.ID)
	return toVersionDTO(version, true), nil
}

type DocumentView struct {
	ID           uint64                 `json:"id"`
	Title        string                 `json:"title"`
	OwnerID      uint64                 `json:"owner_id"`
	IsPublic     bool                   `json:"is_public"`
	ShareToken   string                 `json:"share_token,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Capabilities permission.Capabilities `json:"capabilities"`
	// Version is nil when the document has no versions.
	Version *VersionDTO `json:"version"`
}

func (s *DefaultService) View(ctx context.Context, docID uint64, viewer *domain.User, token string) (*DocumentView, error) {
	doc, caps, err := s.readable(ctx, docID, viewer, token)
	if err != nil {
		return nil, err
	}

	latest, err := s.versions.Latest(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	view := &DocumentView{
		ID:           doc.ID,
		Title:        doc.Title,
		OwnerID:      doc.OwnerID,
		IsPublic:     doc.IsPublic,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		Capabilities: caps,
	}
	if caps.IsOwner {
		view.ShareToken = doc.ShareToken
	}
	if latest != nil {
		view.Version = toVersionDTO(latest, caps.CanEdit)
	}
	return view, nil
}

func (s *DefaultService) Version(ctx context.Context, docID, number uint64, viewer *domain.User, token string) (*VersionDTO, error) {
	doc, caps, err := s.readable(ctx, docID, viewer, token)
	if err != nil {
		return nil, err
	}

	version, err := s.versions.Get(ctx, doc.ID, number)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}
	return toVersionDTO(version, caps.CanEdit), nil
}

func (s *DefaultService) Versions(ctx context.Context, docID uint64, viewer *domain.User, token string) ([]VersionSummary, error) {
	doc, _, err := s.readable(ctx, docID, viewer, token)
	if err != nil {
		return nil, err
	}
	return s.versions.List(ctx, doc.ID)
}

// DeleteVersion removes one version with its annotations. Numbers of
// deleted versions are not reused.
func (s *DefaultService) DeleteVersion(ctx context.Context, docID, number uint64, requester *domain.User) error {
	doc, err := s.owned(ctx, docID, requester, "delete versions")
	if err != nil {
		return err
	}

	if err := s.versions.Delete(ctx, doc.ID, number); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Version not found", err)
		}
		return err
	}
	if doc.IsPublic {
		s.cache.IncrementVersion(ctx, publicListVersionKey)
	}

	slog.Info("version deleted", "document_id", doc.ID, "number", number)
	return nil
}

// TogglePublic flips public visibility and returns the new value.
func (s *DefaultService) TogglePublic(ctx context.Context, docID uint64, requester *domain.User) (bool, error) {
	doc, err := s.owned(ctx, docID, requester, "change visibility")
	if err != nil {
		return false, err
	}

	isPublic := !doc.IsPublic
	if err := s.repository.SetPublic(ctx, doc.ID, isPublic); err != nil {
		return false, err
	}
	s.cache.IncrementVersion(ctx, publicListVersionKey)

	return isPublic, nil
}

// ShareLink returns a URL that grants read access to anyone holding it.
func (s *DefaultService) ShareLink(ctx context.Context, docID uint64, requester *domain.User) (string, error) {
	doc, err := s.owned(ctx, docID, requester, "get the share link")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/documents/%d?t=%s", s.baseURL, doc.ID, doc.ShareToken), nil
}

type PaginatedDocuments struct {
	Data []DocumentSummary `json:"data"`
	Meta DocumentsMeta     `json:"meta"`
}

// List returns the caller's owned and shared documents, or public documents
// for anonymous callers.
func (s *DefaultService) List(ctx context.Context, user *domain.User, page, pageSize int) (*PaginatedDocuments, error) {
	if user != nil {
		documents, meta, err := s.repository.ListForUser(ctx, user.ID, page, pageSize)
		if err != nil {
			return nil, err
		}
		return &PaginatedDocuments{Data: nonNil(documents), Meta: meta}, nil
	}

	// Get the current data version of the public listing
	v := s.cache.GetVersion(ctx, publicListVersionKey)
	cacheKey := fmt.Sprintf("docs:public:v:%d:p:%d:ps:%d", v, page, pageSize)

	var result PaginatedDocuments
	found, err := s.cache.Get(ctx, cacheKey, &result)
	if err != nil {
		slog.Warn("document list cache read failed", "key", cacheKey, "error", err)
	}
	if found {
		return &result, nil
	}

	documents, meta, err := s.repository.ListPublic(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	result = PaginatedDocuments{Data: nonNil(documents), Meta: meta}
	if err := s.cache.Set(ctx, cacheKey, result); err != nil {
		slog.Warn("document list cache write failed", "key", cacheKey, "error", err)
	}
	return &result, nil
}

func nonNil(documents []DocumentSummary) []DocumentSummary {
	if documents == nil {
		return []DocumentSummary{}
	}
	return documents
}

// Delete removes the document and everything under it. Only the owner may
// delete; an "owner" share does not qualify.
func (s *DefaultService) Delete(ctx context.Context, docID uint64, requester *domain.User) error {
	doc, err := s.owned(ctx, docID, requester, "delete this document")
	if err != nil {
		return err
	}

	if err := s.repository.Delete(ctx, doc.ID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Document not found", err)
		}
		return err
	}
	if doc.IsPublic {
		s.cache.IncrementVersion(ctx, publicListVersionKey)
	}

	slog.Info("document deleted", "document_id", doc.ID, "owner_id", requester.ID)
	return nil
}
