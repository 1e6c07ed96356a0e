// Package repository declares the persistence interfaces the services use.
//
// The concrete implementation lives in repository/sqlstore; services and
// their tests only ever see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/recipebox/internal/model"
)

// ListOptions bounds a list query.
type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository reads and writes user accounts.
type UserRepository interface {
	// GetUserByEmail returns apperror.ErrNotFound when no account has the email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// CreateUser fills in ID and CreatedAt. A duplicate email is apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
}

// RecipeRepository reads and writes recipes.
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe) error
	// CreateImportedRecipe inserts recipe unless a row with the same
	// SpoonacularID already exists. It returns the id of the stored row and
	// whether this call created it.
	CreateImportedRecipe(ctx context.Context, recipe *model.Recipe) (id int64, created bool, err error)
	GetRecipeBySpoonacularID(ctx context.Context, spoonacularID int64) (*model.Recipe, error)
	// GetRecipeByID joins the author so AuthorEmail is filled in.
	GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error)
	// UpdateRecipe updates title, description, ingredients, steps and image
	// of the row matching both recipe.ID and authorID.
	UpdateRecipe(ctx context.Context, recipe *model.Recipe, authorID int64) error
	ListRecent(ctx context.Context, opts ListOptions) ([]model.Recipe, error)
	// SearchRecipes matches query as a case-insensitive substring of the
	// title or description.
	SearchRecipes(ctx context.Context, query string, opts ListOptions) ([]model.Recipe, error)
	// ListWithImages returns recipes that have an image reference (debug page).
	ListWithImages(ctx context.Context, opts ListOptions) ([]model.Recipe, error)
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
