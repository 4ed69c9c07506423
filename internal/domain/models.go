package domain

import (
	"time"
)

// User represents a user in the system. A user with an empty PasswordHash
// was provisioned by a share grant and has not registered yet.
type User struct {
	ID           uint64
	Username     string `gorm:"size:80;uniqueIndex;not null"`
	Password     string `gorm:"-"` // input only, not stored in db
	PasswordHash string `gorm:"size:255"`
	CreatedAt    time.Time
}

// IsProvisioned reports whether the user only exists because a document was
// shared with their handle.
func (u *User) IsProvisioned() bool {
	return u.PasswordHash == ""
}

// SafeUser represents a user without sensitive information
type SafeUser struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ToSafeUser converts a User to a SafeUser
func (u *User) ToSafeUser() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

type Document struct {
	ID         uint64
	Title      string `gorm:"size:255;not null"`
	OwnerID    uint64 `gorm:"not null;index"`
	IsPublic   bool   `gorm:"default:false"`
	ShareToken string `gorm:"size:64;uniqueIndex;not null"`
	// VersionSeq only grows; it hands out version numbers.
	VersionSeq uint64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Versions []DocumentVersion `gorm:"constraint:OnDelete:CASCADE"`
	Shares   []Share           `gorm:"constraint:OnDelete:CASCADE"`
}

// DocumentVersion is an immutable rendering of a document's markdown.
type DocumentVersion struct {
	ID            uint64
	DocumentID    uint64 `gorm:"not null;uniqueIndex:idx_document_versions_number"`
	Number        uint64 `gorm:"not null;uniqueIndex:idx_document_versions_number"`
	SourceMD      string `gorm:"type:text;not null"`
	RenderedHTML  string `gorm:"type:text;not null"`
	RenderedPlain string `gorm:"type:text;not null"`
	CreatedAt     time.Time

	Annotations []Annotation `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE"`
}

type Annotation struct {
	ID          uint64
	VersionID   uint64 `gorm:"not null;index"`
	UserID      uint64 `gorm:"not null"`
	User        User
	StartOffset int    `gorm:"not null"`
	EndOffset   int    `gorm:"not null"`
	AnchorText  string `gorm:"type:text;not null"`
	Color       string `gorm:"size:16;default:'#ffeb3b'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Comments []AnnotationComment `gorm:"constraint:OnDelete:CASCADE"`
}

// Note returns the text of the first comment, which is displayed as the
// annotation's body. The remaining comments form the reply thread.
func (a *Annotation) Note() string {
	if len(a.Comments) == 0 {
		return ""
	}
	first := a.Comments[0]
	for _, c := range a.Comments[1:] {
		if c.ID < first.ID {
			first = c
		}
	}
	return first.Text
}

type AnnotationComment struct {
	ID           uint64
	AnnotationID uint64 `gorm:"not null;index"`
	UserID       uint64 `gorm:"not null"`
	User         User
	Text         string `gorm:"type:text;not null"`
	CreatedAt    time.Time
}

// Share grants a role on one document to a user other than its owner.
type Share struct {
	ID         uint64
	DocumentID uint64 `gorm:"not null;uniqueIndex:idx_document_shares_pair"`
	UserID     uint64 `gorm:"not null;uniqueIndex:idx_document_shares_pair;index"`
	User       User
	Role       string `gorm:"size:24;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Share) TableName() string {
	return "document_shares"
}
