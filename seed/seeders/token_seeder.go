package seeders

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ghostwriter-labs/gate_api/model"
)

// TokenSeeder mints tokens directly, bypassing the public issuance rules.
// This is the only path that creates hidden-tier tokens.
type TokenSeeder struct {
	db *gorm.DB
}

func NewTokenSeeder(db *gorm.DB) *TokenSeeder {
	return &TokenSeeder{db: db}
}

// MintTokens creates count tokens of the given tier and returns their ids.
func (s *TokenSeeder) MintTokens(tier string, count int) ([]string, error) {
	tariff, ok := model.GetTariff(tier)
	if !ok {
		return nil, fmt.Errorf("unknown tier: %s", tier)
	}
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	if err := s.db.AutoMigrate(&model.AccessToken{}); err != nil {
		return nil, err
	}

	now := time.Now()
	ids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		token := model.AccessToken{
			ID:            uuid.New().String(),
			Tier:          tier,
			GigachatLimit: tariff.GigachatTokens,
			OpenAILimit:   tariff.OpenAITokens,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if tariff.DurationDays != nil {
			expires := now.AddDate(0, 0, *tariff.DurationDays)
			token.ExpiresAt = &expires
		}
		if tariff.IsSubscription {
			renewal := now.AddDate(0, 0, *tariff.DurationDays)
			token.SubscriptionStart = &now
			token.NextRenewal = &renewal
		}

		if err := s.db.Create(&token).Error; err != nil {
			return ids, err
		}
		ids = append(ids, token.ID)
	}

	log.Printf("Minted %d %s token(s)", len(ids), tier)
	return ids, nil
}
