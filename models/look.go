package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Generation statuses shared by looks, look images and item try-ons.
// Records only move forward: pending -> processing -> completed | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Look is an AI-curated outfit: an ordered set of catalog items.
type Look struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID   `bson:"user_id" json:"user_id"`
	ItemIDs          []primitive.ObjectID `bson:"item_ids" json:"item_ids"`
	Name             string               `bson:"name" json:"name"`
	StyleTags        []string             `bson:"style_tags,omitempty" json:"style_tags,omitempty"`
	Occasion         string               `bson:"occasion,omitempty" json:"occasion,omitempty"`
	Comment          string               `bson:"comment,omitempty" json:"comment,omitempty"`
	TargetGender     string               `bson:"target_gender,omitempty" json:"target_gender,omitempty"`
	TargetBudget     float64              `bson:"target_budget,omitempty" json:"target_budget,omitempty"`
	TotalPrice       float64              `bson:"total_price" json:"total_price"`
	GenerationStatus string               `bson:"generation_status" json:"generation_status"`
	ErrorMessage     string               `bson:"error_message,omitempty" json:"error_message,omitempty"`
	WorkflowID       string               `bson:"workflow_id" json:"workflow_id"`
	BatchIndex       int                  `bson:"batch_index" json:"batch_index"`
	CreatedAt        time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at" json:"updated_at"`
}

// LookImage is the rendered image of a Look (1:1).
type LookImage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LookID       primitive.ObjectID `bson:"look_id" json:"look_id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	StorageKey   string             `bson:"storage_key,omitempty" json:"-"`
	URL          string             `bson:"-" json:"url,omitempty"`
	Status       string             `bson:"status" json:"status"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}
