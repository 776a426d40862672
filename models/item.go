package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderUnisex = "unisex"
)

// Item is a catalog product. The workflow only reads items.
type Item struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Brand       string             `bson:"brand,omitempty" json:"brand,omitempty"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	Gender      string             `bson:"gender" json:"gender"`
	Price       float64            `bson:"price" json:"price"`
	Currency    string             `bson:"currency,omitempty" json:"currency,omitempty"`
	Colors      []string           `bson:"colors,omitempty" json:"colors,omitempty"`
	Sizes       []string           `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Tags        []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	ImageKeys   []string           `bson:"image_keys" json:"-"`          // storage keys or absolute URLs
	ImageURLs   []string           `bson:"-" json:"image_urls,omitempty"` // resolved at read time
	SourceURL   string             `bson:"source_url,omitempty" json:"source_url,omitempty"`
	Active      bool               `bson:"active" json:"active"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// MatchesGender reports whether the item can be shown to a user of the given gender.
// Unisex items and users without a gender match everything.
func (i Item) MatchesGender(gender string) bool {
	if gender == "" || i.Gender == GenderUnisex || i.Gender == "" {
		return true
	}
	return i.Gender == gender
}

// ScrapedProduct represents the product details extracted from a product page
type ScrapedProduct struct {
	Title       string   `json:"title"`
	Brand       string   `json:"brand,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
	Images      []string `json:"image_paths"`
	URL         string   `json:"url"`
}
