package document

import (
	"context"
	"time"

	"markdown-annotator/internal/domain"

	"gorm.io/gorm"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *domain.Document, first *domain.DocumentVersion) error
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
	CreateVersion(ctx context.Context, docID uint64, version *domain.DocumentVersion) error
	LatestVersion(ctx context.Context, docID uint64) (*domain.DocumentVersion, error)
	FindVersion(ctx context.Context, docID, number uint64) (*domain.DocumentVersion, error)
	ListVersions(ctx context.Context, docID uint64) ([]VersionSummary, error)
	DeleteVersion(ctx context.Context, docID, number uint64) error
	SetPublic(ctx context.Context, docID uint64, isPublic bool) error
	ListForUser(ctx context.Context, userID uint64, page, pageSize int) ([]DocumentSummary, DocumentsMeta, error)
	ListPublic(ctx context.Context, page, pageSize int) ([]DocumentSummary, DocumentsMeta, error)
	Delete(ctx context.Context, docID uint64) error
}

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new document repository
func NewRepository(db *gorm.DB) DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

// Create stores the document and its first version together.
func (r *DocumentRepositoryImpl) Create(ctx context.Context, document *domain.Document, first *domain.DocumentVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document.VersionSeq = 0
		if err := tx.Create(document).Error; err != nil {
			return err
		}
		if err := appendVersion(tx, document.ID, first); err != nil {
			return err
		}
		document.VersionSeq = first.Number
		document.UpdatedAt = first.CreatedAt
		return nil
	})
}

func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateVersion appends a version numbered one past the document's counter.
func (r *DocumentRepositoryImpl) CreateVersion(ctx context.Context, docID uint64, version *domain.DocumentVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendVersion(tx, docID, version)
	})
}

// appendVersion must run inside a transaction. Incrementing version_seq
// locks the document row, so concurrent saves of one document are
// serialized and each receives a distinct number.
func appendVersion(tx *gorm.DB, docID uint64, version *domain.DocumentVersion) error {
	now := time.Now().UTC()

	// 1. increment sequence on document
	result := tx.Model(&domain.Document{}).
		Where("id = ?", docID).
		UpdateColumns(map[string]interface{}{
			"version_seq": gorm.Expr("version_seq + 1"),
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	var seq uint64
	if err := tx.Model(&domain.Document{}).
		Where("id = ?", docID).
		Select("version_seq").
		Scan(&seq).Error; err != nil {
		return err
	}

	// 2. insert the version with the generated number
	version.ID = 0
	version.DocumentID = docID
	version.Number = seq
	version.CreatedAt = now
	return tx.Create(version).Error
}

func (r *DocumentRepositoryImpl) LatestVersion(ctx context.Context, docID uint64) (*domain.DocumentVersion, error) {
	return latestVersion(r.db.WithContext(ctx), docID)
}

func latestVersion(db *gorm.DB, docID uint64) (*domain.DocumentVersion, error) {
	var version domain.DocumentVersion
	err := db.Where("document_id = ?", docID).
		Order("number DESC").
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *DocumentRepositoryImpl) FindVersion(ctx context.Context, docID, number uint64) (*domain.DocumentVersion, error) {
	var version domain.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND number = ?", docID, number).
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

type VersionSummary struct {
	ID              uint64    `json:"id"`
	Number          uint64    `json:"number"`
	CreatedAt       time.Time `json:"created_at"`
	AnnotationCount int64     `json:"annotation_count"`
}

func (r *DocumentRepositoryImpl) ListVersions(ctx context.Context, docID uint64) ([]VersionSummary, error) {
	var versions []VersionSummary
	err := r.db.WithContext(ctx).
		Table("document_versions").
		Select("document_versions.id, document_versions.number, document_versions.created_at, " +
			"(SELECT COUNT(*) FROM annotations WHERE annotations.version_id = document_versions.id) AS annotation_count").
		Where("document_versions.document_id = ?", docID).
		Order("document_versions.number ASC").
		Scan(&versions).Error
	return versions, err
}

// DeleteVersion removes one version with its annotations and comments. The
// document counter is left alone so the number is never handed out again.
func (r *DocumentRepositoryImpl) DeleteVersion(ctx context.Context, docID, number uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var version domain.DocumentVersion
		if err := tx.Where("document_id = ? AND number = ?", docID, number).First(&version).Error; err != nil {
			return err
		}

		annotationIDs := tx.Model(&domain.Annotation{}).Select("id").Where("version_id = ?", version.ID)
		if err := tx.Where("annotation_id IN (?)", annotationIDs).Delete(&domain.AnnotationComment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id = ?", version.ID).Delete(&domain.Annotation{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&version).Error; err != nil {
			return err
		}

		// updated_at keeps tracking the newest remaining version
		latest, err := latestVersion(tx, docID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		return tx.Model(&domain.Document{}).
			Where("id = ?", docID).
			UpdateColumn("updated_at", latest.CreatedAt).Error
	})
}

// SetPublic flips visibility without touching updated_at, which follows versions.
func (r *DocumentRepositoryImpl) SetPublic(ctx context.Context, docID uint64, isPublic bool) error {
	return r.db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", docID).
		UpdateColumn("is_public", isPublic).Error
}

type DocumentsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// DocumentSummary is one row of a document listing.
type DocumentSummary struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   uint64    `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
	IsPublic  bool      `json:"is_public"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const summaryColumns = "documents.id, documents.title, documents.owner_id, users.username AS owner_name, " +
	"documents.is_public, documents.created_at, documents.updated_at"

// ListForUser returns documents owned by or shared with userID, most
// recently updated first.
func (r *DocumentRepositoryImpl) ListForUser(ctx context.Context, userID uint64, page, pageSize int) ([]DocumentSummary, DocumentsMeta, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Table("documents").
			Joins("JOIN users ON users.id = documents.owner_id").
			Joins("LEFT JOIN document_shares ON document_shares.document_id = documents.id AND document_shares.user_id = ?", userID).
			Where("documents.owner_id = ? OR document_shares.user_id IS NOT NULL", userID)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, DocumentsMeta{}, err
	}

	var rows []DocumentSummary
	err := base().
		Select(summaryColumns+", CASE WHEN documents.owner_id = ? THEN 'owner' ELSE document_shares.role END AS role", userID).
		Order("documents.updated_at DESC, documents.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error

	return rows, newMeta(total, page, pageSize), err
}

// ListPublic returns public documents for anonymous visitors.
func (r *DocumentRepositoryImpl) ListPublic(ctx context.Context, page, pageSize int) ([]DocumentSummary, DocumentsMeta, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Table("documents").
			Joins("JOIN users ON users.id = documents.owner_id").
			Where("documents.is_public = ?", true)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, DocumentsMeta{}, err
	}

	var rows []DocumentSummary
	err := base().
		Select(summaryColumns).
		Order("documents.updated_at DESC, documents.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error

	return rows, newMeta(total, page, pageSize), err
}

func newMeta(total int64, page, pageSize int) DocumentsMeta {
	return DocumentsMeta{
		Total:       total,
		PerPage:     pageSize,
		TotalPage:   int((total + int64(pageSize) - 1) / int64(pageSize)),
		CurrentPage: page,
	}
}

// Delete removes the document, its shares and every version, annotation and
// comment under it in one transaction.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, docID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		versionIDs := tx.Model(&domain.DocumentVersion{}).Select("id").Where("document_id = ?", docID)
		annotationIDs := tx.Model(&domain.Annotation{}).Select("id").Where("version_id IN (?)", versionIDs)

		if err := tx.Where("annotation_id IN (?)", annotationIDs).Delete(&domain.AnnotationComment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id IN (?)", versionIDs).Delete(&domain.Annotation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&domain.DocumentVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&domain.Share{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.Document{}, docID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
