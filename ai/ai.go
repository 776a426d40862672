// Package ai wraps the generative model used to curate looks and to render
// try-on images.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raushankrgupta/nima-backend/models"
)

var ErrNoImage = errors.New("model returned no image")

// Composition is one curated look as proposed by the model.
type Composition struct {
	ItemIDs   []string `json:"item_ids"`
	Name      string   `json:"name"`
	StyleTags []string `json:"style_tags"`
	Occasion  string   `json:"occasion"`
	Comment   string   `json:"comment"`
}

// Profile is the part of the user the curator sees.
type Profile struct {
	Gender           string
	StylePreferences []string
	BudgetMin        float64
	BudgetMax        float64
}

func ProfileOf(u *models.User) Profile {
	return Profile{
		Gender:           u.Gender,
		StylePreferences: u.StylePreferences,
		BudgetMin:        u.BudgetMin,
		BudgetMax:        u.BudgetMax,
	}
}

type CurationRequest struct {
	Profile    Profile
	Candidates []models.Item
	Count      int
}

type Curator interface {
	CurateLooks(ctx context.Context, req CurationRequest) ([]Composition, error)
}

// RenderRequest asks for the person in PersonImage wearing the garments.
type RenderRequest struct {
	PersonImage   []byte
	GarmentImages [][]byte
	Description   string
}

type Renderer interface {
	// Render returns the image bytes and their MIME type.
	Render(ctx context.Context, req RenderRequest) ([]byte, string, error)
}

// FilterCompositions drops item ids that are not among the candidates (and
// duplicates), then discards compositions left with fewer than two items.
func FilterCompositions(comps []Composition, candidates []models.Item) []Composition {
	known := make(map[string]bool, len(candidates))
	for _, it := range candidates {
		known[it.ID.Hex()] = true
	}

	var out []Composition
	for _, c := range comps {
		seen := make(map[string]bool)
		var ids []string
		for _, id := range c.ItemIDs {
			id = strings.TrimSpace(id)
			if known[id] && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}
		c.ItemIDs = ids
		out = append(out, c)
	}
	return out
}

// parseCompositions accepts either a bare JSON array or {"looks": [...]}.
func parseCompositions(text string) ([]Composition, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var comps []Composition
	if err := json.Unmarshal([]byte(text), &comps); err == nil {
		return comps, nil
	}

	var wrapped struct {
		Looks []Composition `json:"looks"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse curation response: %w", err)
	}
	return wrapped.Looks, nil
}

type candidateLine struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Brand    string   `json:"brand,omitempty"`
	Category string   `json:"category,omitempty"`
	Colors   []string `json:"colors,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Price    float64  `json:"price"`
}

func curationPrompt(req CurationRequest) (string, error) {
	lines := make([]candidateLine, 0, len(req.Candidates))
	for _, it := range req.Candidates {
		lines = append(lines, candidateLine{
			ID:       it.ID.Hex(),
			Name:     it.Name,
			Brand:    it.Brand,
			Category: it.Category,
			Colors:   it.Colors,
			Tags:     it.Tags,
			Price:    it.Price,
		})
	}
	catalog, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a personal stylist. Compose %d complete outfits from the catalog below.\n", req.Count)
	b.WriteString("Each outfit must use between 2 and 5 catalog items that work together, referenced by their id.\n")
	if req.Profile.Gender != "" {
		fmt.Fprintf(&b, "The customer is %s.\n", req.Profile.Gender)
	}
	if len(req.Profile.StylePreferences) > 0 {
		fmt.Fprintf(&b, "Preferred styles: %s.\n", strings.Join(req.Profile.StylePreferences, ", "))
	}
	if req.Profile.BudgetMax > 0 {
		fmt.Fprintf(&b, "Keep each outfit between %.0f and %.0f in total.\n", req.Profile.BudgetMin, req.Profile.BudgetMax)
	}
	b.WriteString(`Respond with a JSON array of objects: {"item_ids": [string], "name": string, "style_tags": [string], "occasion": string, "comment": string}.` + "\n")
	b.WriteString("Catalog:\n")
	b.Write(catalog)
	return b.String(), nil
}
