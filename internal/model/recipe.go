package model

import "time"

// Source tags for Recipe.Source.
const (
	SourceUser        = "user"
	SourceSpoonacular = "spoonacular"
)

// Recipe is a locally stored recipe, either written by a user or imported
// from Spoonacular.
//
// NULLABLE COLUMNS:
// image_url, author_id and spoonacular_id are nullable in the schema, so they
// are pointers here. A nil AuthorID is a legacy row with no author; a nil
// SpoonacularID is a user-authored recipe.
//
// AuthorEmail is not a column on recipes. Queries that LEFT JOIN users fill
// it in; otherwise it stays empty.
type Recipe struct {
	ID            int64     `json:"id"                      db:"id"`
	Title         string    `json:"title"                   db:"title"`
	Description   string    `json:"description"             db:"description"`
	Ingredients   string    `json:"ingredients"             db:"ingredients"`
	Steps         string    `json:"steps"                   db:"steps"`
	ImageURL      *string   `json:"imageUrl,omitempty"      db:"image_url"`
	AuthorID      *int64    `json:"authorId,omitempty"      db:"author_id"`
	SpoonacularID *int64    `json:"spoonacularId,omitempty" db:"spoonacular_id"`
	Source        string    `json:"source"                  db:"source"`
	CreatedAt     time.Time `json:"createdAt"               db:"created_at"`

	AuthorEmail string `json:"authorEmail,omitempty" db:"email"`
}

// Image returns the image reference or "" when the recipe has none.
// Templates use this instead of dereferencing the pointer.
func (r *Recipe) Image() string {
	if r == nil || r.ImageURL == nil {
		return ""
	}
	return *r.ImageURL
}

// OwnedBy reports whether userID is the recipe's author.
func (r *Recipe) OwnedBy(userID int64) bool {
	return r != nil && r.AuthorID != nil && *r.AuthorID == userID
}

// StringPtr returns nil for "" and a pointer to s otherwise.
// Used when writing optional text columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
