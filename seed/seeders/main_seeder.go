package seeders

import (
	"gorm.io/gorm"
)

// MainSeeder coordinates the individual seeders.
type MainSeeder struct {
	db *gorm.DB

	adminSeeder *AdminSeeder
	tokenSeeder *TokenSeeder
}

func NewMainSeeder(db *gorm.DB) *MainSeeder {
	return &MainSeeder{
		db:          db,
		adminSeeder: NewAdminSeeder(db),
		tokenSeeder: NewTokenSeeder(db),
	}
}

func (s *MainSeeder) SeedAdmin(username, password string) error {
	return s.adminSeeder.SeedAdmin(username, password)
}

func (s *MainSeeder) MintTokens(tier string, count int) ([]string, error) {
	return s.tokenSeeder.MintTokens(tier, count)
}
