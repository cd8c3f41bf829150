package repository

import (
	"github.com/ManuelReschke/MemoWindow/app/models"
	"gorm.io/gorm"
)

// AdminRepository resolves identities from the external auth provider to admin rights.
type AdminRepository interface {
	IsAdmin(firebaseUID string) (bool, error)
	GetByFirebaseUID(firebaseUID string) (*models.AdminUser, error)
	Create(admin *models.AdminUser) error
}

// ProductRepository defines the interface for catalog database operations
type ProductRepository interface {
	ListActive() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Admin   AdminRepository
	Product ProductRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Admin:   NewAdminRepository(db),
		Product: NewProductRepository(db),
	}
}
