package sharing

import (
	"context"
	"errors"

	"markdown-annotator/internal/domain"

	"gorm.io/gorm"
)

type ShareRepository interface {
	ShareRole(ctx context.Context, docID, userID uint64) (string, bool, error)
	Grant(ctx context.Context, docID uint64, username, role string) (*domain.Share, error)
	ListByDocument(ctx context.Context, docID uint64) ([]domain.Share, error)
	Revoke(ctx context.Context, docID uint64, username string) error
}

type ShareRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ShareRepository {
	return &ShareRepositoryImpl{db: db}
}

// ShareRole implements permission.ShareLookup.
func (r *ShareRepositoryImpl) ShareRole(ctx context.Context, docID, userID uint64) (string, bool, error) {
	var share domain.Share
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Select("role").
		First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return share.Role, true, nil
}

// Grant upserts the share for (docID, username) in one transaction. An
// unknown username is provisioned as a bare user without a password.
func (r *ShareRepositoryImpl) Grant(ctx context.Context, docID uint64, username, role string) (*domain.Share, error) {
	var share domain.Share

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target domain.User
		err := tx.Where("username = ?", username).First(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			target = domain.User{Username: username}
			if err := tx.Create(&target).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		err = tx.Where("document_id = ? AND user_id = ?", docID, target.ID).First(&share).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			share = domain.Share{DocumentID: docID, UserID: target.ID, Role: role}
			if err := tx.Create(&share).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case share.Role != role:
			if err := tx.Model(&share).Update("role", role).Error; err != nil {
				return err
			}
			share.Role = role
		}

		share.User = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func (r *ShareRepositoryImpl) ListByDocument(ctx context.Context, docID uint64) ([]domain.Share, error) {
	var shares []domain.Share
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("document_id = ?", docID).
		Order("id ASC").
		Find(&shares).Error
	return shares, err
}

func (r *ShareRepositoryImpl) Revoke(ctx context.Context, docID uint64, username string) error {
	result := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id IN (?)", docID,
			r.db.Model(&domain.User{}).Select("id").Where("username = ?", username)).
		Delete(&domain.Share{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
