package sharing

import (
	"context"
	defError "errors"
	"log/slog"
	"strings"

	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/permission"

	"gorm.io/gorm"
)

type Service interface {
	Grant(ctx context.Context, docID uint64, granter *domain.User, username, role string) (*ShareDTO, error)
	List(ctx context.Context, docID uint64, requester *domain.User) ([]ShareDTO, error)
	Revoke(ctx context.Context, docID uint64, requester *domain.User, username string) error
}

// DocumentFinder loads the document a share refers to.
type DocumentFinder interface {
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
}

type DefaultService struct {
	repository ShareRepository
	documents  DocumentFinder
	metrics    *metrics.Metrics
}

func NewService(repository ShareRepository, documents DocumentFinder, m *metrics.Metrics) Service {
	return &DefaultService{
		repository: repository,
		documents:  documents,
		metrics:    m,
	}
}

type ShareDTO struct {
	DocumentID uint64 `json:"document_id"`
	UserID     uint64 `json:"user_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	// Pending is true while the grantee has not registered yet.
	Pending bool `json:"pending"`
}

func toShareDTO(share *domain.Share) ShareDTO {
	return ShareDTO{
		DocumentID: share.DocumentID,
		UserID:     share.UserID,
		Username:   share.User.Username,
		Role:       share.Role,
		Pending:    share.User.IsProvisioned(),
	}
}

// ownedDocument loads docID and checks that requester owns it. Sharing is
// owner-only; editors cannot re-share.
func (s *DefaultService) ownedDocument(ctx context.Context, docID uint64, requester *domain.User, action string) (*domain.Document, error) {
	if requester == nil {
		return nil, errors.Unauthenticated("Login required", nil)
	}

	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}

	if !permission.IsOwner(doc, requester) {
		return nil, errors.Forbidden("Only the owner can "+action, nil)
	}
	return doc, nil
}

// Grant gives username a role on the document. Unknown role tokens are
// stored as viewer and unknown usernames are provisioned.
func (s *DefaultService) Grant(ctx context.Context, docID uint64, granter *domain.User, username, role string) (*ShareDTO, error) {
	doc, err := s.ownedDocument(ctx, docID, granter, "share this document")
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.BadRequest("Username is required", nil)
	}
	if username == granter.Username {
		return nil, errors.UnprocessableEntity("Can't share with yourself", nil)
	}

	normalized := permission.Normalize(role)
	if normalized.String() != role {
		slog.Info("unknown share role, storing viewer", "document_id", doc.ID, "role", role)
	}

	share, err := s.repository.Grant(ctx, doc.ID, username, normalized.String())
	if err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("Share changed concurrently, retry", err)
		}
		return nil, err
	}
	s.metrics.SharesGranted.WithLabelValues(share.Role).Inc()

	dto := toShareDTO(share)
	return &dto, nil
}

func (s *DefaultService) List(ctx context.Context, docID uint64, requester *domain.User) ([]ShareDTO, error) {
	doc, err := s.ownedDocument(ctx, docID, requester, "list collaborators")
	if err != nil {
		return nil, err
	}

	shares, err := s.repository.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	result := make([]ShareDTO, 0, len(shares))
	for i := range shares {
		result = append(result, toShareDTO(&shares[i]))
	}
	return result, nil
}

func (s *DefaultService) Revoke(ctx context.Context, docID uint64, requester *domain.User, username string) error {
	doc, err := s.ownedDocument(ctx, docID, requester, "remove collaborators")
	if err != nil {
		return err
	}

	if err := s.repository.Revoke(ctx, doc.ID, strings.TrimSpace(username)); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Share not found", err)
		}
		return err
	}
	return nil
}
