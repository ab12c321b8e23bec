package seeders

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ghostwriter-labs/gate_api/model"
)

// AdminSeeder handles seeding operator accounts
type AdminSeeder struct {
	db *gorm.DB
}

func NewAdminSeeder(db *gorm.DB) *AdminSeeder {
	return &AdminSeeder{db: db}
}

// SeedAdmin creates an operator account, skipping when one with the same
// username already exists.
func (s *AdminSeeder) SeedAdmin(username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	if err := s.db.AutoMigrate(&model.AdminUser{}); err != nil {
		return err
	}

	var existing model.AdminUser
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		log.Printf("Admin user %s already exists, skipping", username)
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id, _ := uuid.NewV7()

	admin := model.AdminUser{
		ID:        id.String(),
		Username:  username,
		Password:  string(hashed),
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.Create(&admin).Error; err != nil {
		log.Printf("Error creating admin user: %v", err)
		return err
	}

	log.Printf("Created admin user: %s", admin.Username)
	return nil
}
