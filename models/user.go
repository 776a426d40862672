package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a registered user
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Email            string             `bson:"email" json:"email"`
	Password         string             `bson:"password" json:"-"` // Password is not returned in JSON
	GoogleID         string             `bson:"google_id,omitempty" json:"-"`
	Gender           string             `bson:"gender,omitempty" json:"gender,omitempty"`
	StylePreferences []string           `bson:"style_preferences,omitempty" json:"style_preferences,omitempty"`
	BudgetMin        float64            `bson:"budget_min,omitempty" json:"budget_min,omitempty"`
	BudgetMax        float64            `bson:"budget_max,omitempty" json:"budget_max,omitempty"`
	Credits          Credits            `bson:"credits" json:"credits"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// Credits is the per-user balance. Only the credit ledger writes it.
type Credits struct {
	FreeRemaining int       `bson:"free_remaining" json:"free_remaining"`
	FreePerWeek   int       `bson:"free_per_week" json:"free_per_week"`
	Purchased     int       `bson:"purchased" json:"purchased"`
	NextResetAt   time.Time `bson:"next_reset_at" json:"next_reset_at"`
}

// Available is the spendable total.
func (c Credits) Available() int {
	return c.FreeRemaining + c.Purchased
}

// NewCredits seeds the balance of a user created at signupAt.
func NewCredits(freePerWeek int, signupAt time.Time) Credits {
	return Credits{
		FreeRemaining: freePerWeek,
		FreePerWeek:   freePerWeek,
		NextResetAt:   signupAt.Add(7 * 24 * time.Hour),
	}
}

// UserImage is a reference photo of the user used for try-on rendering.
type UserImage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	StorageKey string             `bson:"storage_key" json:"-"`
	URL        string             `bson:"-" json:"url,omitempty"`
	IsPrimary  bool               `bson:"is_primary" json:"is_primary"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
