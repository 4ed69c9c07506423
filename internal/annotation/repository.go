package annotation

import (
	"context"

	"markdown-annotator/internal/domain"

	"gorm.io/gorm"
)

type AnnotationRepository interface {
	ListByVersion(ctx context.Context, versionID uint64) ([]domain.Annotation, error)
	FindByID(ctx context.Context, id uint64) (*domain.Annotation, error)
	Create(ctx context.Context, annotation *domain.Annotation, note *domain.AnnotationComment) error
	AddComment(ctx context.Context, comment *domain.AnnotationComment) error
	Delete(ctx context.Context, id uint64) error
	OwningDocument(ctx context.Context, versionID uint64) (*domain.Document, *domain.DocumentVersion, error)
}

type AnnotationRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) AnnotationRepository {
	return &AnnotationRepositoryImpl{db: db}
}

func withThread(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("annotation_comments.id ASC")
		}).
		Preload("Comments.User")
}

// ListByVersion returns a version's annotations in creation order with
// authors and comment threads loaded.
func (r *AnnotationRepositoryImpl) ListByVersion(ctx context.Context, versionID uint64) ([]domain.Annotation, error) {
	var annotations []domain.Annotation
	err := withThread(r.db.WithContext(ctx)).
		Where("version_id = ?", versionID).
		Order("id ASC").
		Find(&annotations).Error
	return annotations, err
}

func (r *AnnotationRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Annotation, error) {
	var annotation domain.Annotation
	err := withThread(r.db.WithContext(ctx)).First(&annotation, id).Error
	if err != nil {
		return nil, err
	}
	return &annotation, nil
}

// Create inserts the annotation and, when note is non-nil, its first comment.
// Either both rows are written or neither is.
func (r *AnnotationRepositoryImpl) Create(ctx context.Context, annotation *domain.Annotation, note *domain.AnnotationComment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Comments").Create(annotation).Error; err != nil {
			return err
		}
		if note == nil {
			return nil
		}
		note.AnnotationID = annotation.ID
		if err := tx.Omit("User").Create(note).Error; err != nil {
			return err
		}
		annotation.Comments = []domain.AnnotationComment{*note}
		return nil
	})
}

func (r *AnnotationRepositoryImpl) AddComment(ctx context.Context, comment *domain.AnnotationComment) error {
	return r.db.WithContext(ctx).Omit("User").Create(comment).Error
}

// Delete removes the annotation and its comments.
func (r *AnnotationRepositoryImpl) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("annotation_id = ?", id).Delete(&domain.AnnotationComment{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.Annotation{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// OwningDocument follows version -> document for permission checks.
func (r *AnnotationRepositoryImpl) OwningDocument(ctx context.Context, versionID uint64) (*domain.Document, *domain.DocumentVersion, error) {
	db := r.db.WithContext(ctx)

	var version domain.DocumentVersion
	if err := db.Select("id", "document_id", "number", "created_at").First(&version, versionID).Error; err != nil {
		return nil, nil, err
	}

	var doc domain.Document
	if err := db.First(&doc, version.DocumentID).Error; err != nil {
		return nil, nil, err
	}
	return &doc, &version, nil
}
