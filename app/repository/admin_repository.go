package repository

import (
	"errors"
	"strings"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"gorm.io/gorm"
)

// adminRepository implements the AdminRepository interface
type adminRepository struct {
	db *gorm.DB
}

// NewAdminRepository creates a new admin repository instance
func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

// IsAdmin reports whether the identity has an admin_users row with is_admin set.
// Unknown identities are not an error.
func (r *adminRepository) IsAdmin(firebaseUID string) (bool, error) {
	uid := strings.TrimSpace(firebaseUID)
	if uid == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&models.AdminUser{}).
		Where("firebase_uid = ? AND is_admin = ?", uid, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *adminRepository) GetByFirebaseUID(firebaseUID string) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := r.db.Where("firebase_uid = ?", strings.TrimSpace(firebaseUID)).First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

func (r *adminRepository) Create(admin *models.AdminUser) error {
	return r.db.Create(admin).Error
}

// EnsureAdmin creates an admin row for the identity unless one exists. The
// bool reports whether a row was created. An existing row is returned as is,
// even when its admin flag is off.
func EnsureAdmin(repo AdminRepository, firebaseUID, email string) (*models.AdminUser, bool, error) {
	uid := strings.TrimSpace(firebaseUID)
	if uid == "" {
		return nil, false, errors.New("firebase uid is required")
	}
	existing, err := repo.GetByFirebaseUID(uid)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	admin := &models.AdminUser{FirebaseUID: uid, Email: strings.TrimSpace(email), IsAdmin: true}
	if err := repo.Create(admin); err != nil {
		return nil, false, err
	}
	return admin, true, nil
}
