package models

import "time"

type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Identity is the authenticated principal bound to a session or request.
type Identity struct {
	UserID   int64
	Username string
	Tier     Tier
}

func (i Identity) IsPremium() bool { return i.Tier == TierPremium }

// User is a row of the user directory.
type User struct {
	ID               int64
	Username         string
	IsPremium        bool
	PremiumExpiresAt *time.Time
}

// Identity resolves the user's tier at the given instant. Premium requires the flag
// and an expiry strictly in the future.
func (u User) Identity(now time.Time) Identity {
	tier := TierStandard
	if u.IsPremium && u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now) {
		tier = TierPremium
	}
	return Identity{UserID: u.ID, Username: u.Username, Tier: tier}
}
