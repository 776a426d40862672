package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ItemTryOn is a single-item virtual try-on, unique per (item, user).
// A failed record is reused when the user retries.
type ItemTryOn struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ItemID        primitive.ObjectID `bson:"item_id" json:"item_id"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	SelectedSize  string             `bson:"selected_size,omitempty" json:"selected_size,omitempty"`
	SelectedColor string             `bson:"selected_color,omitempty" json:"selected_color,omitempty"`
	Status        string             `bson:"status" json:"status"`
	StorageKey    string             `bson:"storage_key,omitempty" json:"-"`
	URL           string             `bson:"-" json:"url,omitempty"`
	ErrorMessage  string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
