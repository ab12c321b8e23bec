package model

// Tariff is the static per-tier policy: pool limits, lifetime and renewal.
// DurationDays nil means the token never expires.
type Tariff struct {
	Name           string
	Price          int
	GigachatTokens int64
	OpenAITokens   int64
	DurationDays   *int
	IsSubscription bool
	VisibleInBot   bool
	Description    string
}

func days(n int) *int { return &n }

var tariffs = map[string]Tariff{
	TierFree: {
		Name:           "Free start",
		Price:          0,
		GigachatTokens: 30_000,
		OpenAITokens:   30_000,
		DurationDays:   nil,
		IsSubscription: false,
		VisibleInBot:   true,
		Description:    "30k GigaChat + 30k OpenAI tokens. Perpetual, one per user.",
	},
	TierBasic: {
		Name:           "Basic",
		Price:          590,
		GigachatTokens: 200_000,
		OpenAITokens:   100_000,
		DurationDays:   days(30),
		IsSubscription: true,
		VisibleInBot:   true,
		Description:    "200k GigaChat + 100k OpenAI tokens. 30-day subscription.",
	},
	TierPro: {
		Name:           "Pro",
		Price:          1_190,
		GigachatTokens: 500_000,
		OpenAITokens:   200_000,
		DurationDays:   days(30),
		IsSubscription: true,
		VisibleInBot:   true,
		Description:    "500k GigaChat + 200k OpenAI tokens. 30-day subscription.",
	},
	TierUnlimited: {
		Name:           "Unlimited",
		Price:          2_490,
		GigachatTokens: LimitUnlimited,
		OpenAITokens:   500_000,
		DurationDays:   days(30),
		IsSubscription: true,
		VisibleInBot:   true,
		Description:    "Unlimited GigaChat + 500k OpenAI tokens. 30-day subscription.",
	},
	TierHiddenShort: {
		Name:           "Hidden 14 days",
		Price:          0,
		GigachatTokens: LimitUnlimited,
		OpenAITokens:   LimitDisabled,
		DurationDays:   days(14),
		IsSubscription: false,
		VisibleInBot:   false,
		Description:    "Unlimited GigaChat, no OpenAI. 14 days. Seed tool only.",
	},
	TierHiddenLong: {
		Name:           "Hidden 30 days",
		Price:          0,
		GigachatTokens: LimitUnlimited,
		OpenAITokens:   LimitDisabled,
		DurationDays:   days(30),
		IsSubscription: false,
		VisibleInBot:   false,
		Description:    "Unlimited GigaChat, no OpenAI. 30 days. Seed tool only.",
	},
	TierDeveloper: {
		Name:           "Developer",
		Price:          0,
		GigachatTokens: LimitUnlimited,
		OpenAITokens:   LimitUnlimited,
		DurationDays:   nil,
		IsSubscription: false,
		VisibleInBot:   false,
		Description:    "Unlimited everything, perpetual. Developers only.",
	},
}

// GetTariff returns the tariff for a tier, or false for unknown tiers.
func GetTariff(tier string) (Tariff, bool) {
	t, ok := tariffs[tier]
	return t, ok
}

// VisibleTariffs returns the tiers publicly offered.
func VisibleTariffs() map[string]Tariff {
	out := make(map[string]Tariff)
	for tier, t := range tariffs {
		if t.VisibleInBot {
			out[tier] = t
		}
	}
	return out
}

// SubscriptionTariffs returns the tiers renewed by the scheduler.
func SubscriptionTariffs() map[string]Tariff {
	out := make(map[string]Tariff)
	for tier, t := range tariffs {
		if t.IsSubscription {
			out[tier] = t
		}
	}
	return out
}
