// services/identity.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"live-arena-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnknownExternalID is what the feed sends when it cannot identify a sender.
const UnknownExternalID = "unknown"

const (
	placeholderNamePrefix   = "Viewer-"
	placeholderHandlePrefix = "viewer_"
)

// IdentityService maps raw platform ids onto stable Viewer records.
type IdentityService struct {
	DB *gorm.DB
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{DB: db}
}

// Resolve returns the viewer for externalID, creating it on first sight and upgrading
// placeholder names once a real one is observed. The unknown sentinel yields a fixed,
// unpersisted record.
func (s *IdentityService) Resolve(ctx context.Context, externalID, observedName, observedHandle string) (*models.Viewer, error) {
	externalID = strings.TrimSpace(externalID)
	if IsUnknownID(externalID) {
		return unknownViewer(), nil
	}
	observedName = strings.TrimSpace(observedName)
	observedHandle = strings.TrimSpace(observedHandle)

	db := s.DB.WithContext(ctx)

	var v models.Viewer
	err := db.Where("external_id = ?", externalID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.create(db, externalID, observedName, observedHandle)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup viewer %s: %w", externalID, err)
	}

	if isPlaceholderName(observedName) {
		return &v, nil
	}
	handle := observedHandle
	if handle == "" {
		handle = v.Handle
		if observedName != v.DisplayName || isPlaceholderHandle(v.Handle) {
			handle = deriveHandle(observedName, externalID)
		}
	}
	// Some names never yield a handle; the placeholder then stays and is not rewritten.
	if observedName == v.DisplayName && handle == v.Handle {
		return &v, nil
	}

	if err := db.Model(&v).Updates(map[string]any{
		"display_name": observedName,
		"handle":       handle,
	}).Error; err != nil {
		return nil, fmt.Errorf("upgrade viewer %s: %w", externalID, err)
	}
	log.Printf("[IDENTITY] ✏️  %s is now %q (@%s)", externalID, observedName, handle)
	v.DisplayName = observedName
	v.Handle = handle
	return &v, nil
}

// create inserts if absent; a lost race falls back to reading the winner's row.
func (s *IdentityService) create(db *gorm.DB, externalID, name, handle string) (*models.Viewer, error) {
	if isPlaceholderName(name) {
		name = placeholderName(externalID)
	}
	if handle == "" {
		if strings.HasPrefix(name, placeholderNamePrefix) {
			handle = placeholderHandle(externalID)
		} else {
			handle = deriveHandle(name, externalID)
		}
	}

	v := models.Viewer{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		DisplayName: name,
		Handle:      handle,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&v)
	if res.Error != nil {
		return nil, fmt.Errorf("create viewer %s: %w", externalID, res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.Viewer
		if err := db.Where("external_id = ?", externalID).First(&existing).Error; err != nil {
			return nil, fmt.Errorf("read back viewer %s: %w", externalID, err)
		}
		return &existing, nil
	}
	return &v, nil
}

// Lookup reads a viewer without creating one.
func (s *IdentityService) Lookup(ctx context.Context, externalID string) (*models.Viewer, error) {
	var v models.Viewer
	err := s.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownViewer, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup viewer %s: %w", externalID, err)
	}
	return &v, nil
}

// IsUnknownID reports whether id is the feed's "no identity" sentinel.
func IsUnknownID(id string) bool {
	return id == "" || strings.EqualFold(id, UnknownExternalID)
}

func unknownViewer() *models.Viewer {
	return &models.Viewer{
		ExternalID:  UnknownExternalID,
		DisplayName: "Unknown",
		Handle:      UnknownExternalID,
	}
}

func isPlaceholderName(name string) bool {
	return name == "" ||
		strings.EqualFold(name, UnknownExternalID) ||
		strings.HasPrefix(name, placeholderNamePrefix)
}

func isPlaceholderHandle(handle string) bool {
	return handle == "" || strings.HasPrefix(handle, placeholderHandlePrefix)
}

func placeholderName(externalID string) string {
	return placeholderNamePrefix + idSuffix(externalID)
}

func placeholderHandle(externalID string) string {
	return placeholderHandlePrefix + idSuffix(externalID)
}

// idSuffix keeps the last six alphanumerics of the id.
func idSuffix(externalID string) string {
	clean := sanitizeHandle(externalID)
	if len(clean) > 6 {
		clean = clean[len(clean)-6:]
	}
	if clean == "" {
		clean = "anon"
	}
	return clean
}

// deriveHandle transliterates, lower-cases and keeps [a-z0-9_]; falls back to the id.
func deriveHandle(name, externalID string) string {
	if h := sanitizeHandle(unidecode.Unidecode(name)); h != "" {
		return h
	}
	return placeholderHandle(externalID)
}

func sanitizeHandle(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
