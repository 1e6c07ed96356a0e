// Package service holds the business rules between the HTTP handlers and
// the repositories:
//
//	Handler (HTTP)     → parses forms, sets flashes, redirects
//	Service (rules)    → validates, checks ownership, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services take repository interfaces, so tests inject in-memory fakes.
// Nothing here knows about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository"
)

const (
	// HomeRecipeLimit is how many recipes the home page shows.
	HomeRecipeLimit = 4
	// SearchLimit bounds the local search results.
	SearchLimit    = 100
	MaxTitleLength = 255
)

// User-facing recipe messages.
const (
	MsgRecipeNotFound = "Recipe not found"
	MsgCannotEdit     = "Recipe not found or you do not have permission to edit it"
)

// RecipeInput is the create/edit form.
type RecipeInput struct {
	Title       string
	Description string
	Ingredients string
	Steps       string
}

func (in RecipeInput) trimmed() RecipeInput {
	return RecipeInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Ingredients: strings.TrimSpace(in.Ingredients),
		Steps:       strings.TrimSpace(in.Steps),
	}
}

// Validate checks the form after trimming. Handlers call it before storing
// an uploaded image so a rejected form leaves no orphan object.
func (in RecipeInput) Validate() error {
	in = in.trimmed()
	if in.Title == "" {
		return apperror.ValidationFailed("title", "Title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be %d characters or fewer", MaxTitleLength))
	}
	return nil
}

// RecipeService handles user-authored recipes and local reads.
type RecipeService struct {
	recipes repository.RecipeRepository
	logger  *slog.Logger
}

// NewRecipeService creates a RecipeService.
func NewRecipeService(recipes repository.RecipeRepository, logger *slog.Logger) *RecipeService {
	return &RecipeService{recipes: recipes, logger: logger}
}

// Create stores a recipe written by authorID. imageURL may be empty.
func (s *RecipeService) Create(ctx context.Context, authorID int64, in RecipeInput, imageURL string) (*model.Recipe, error) {
	in = in.trimmed()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	recipe := &model.Recipe{
		Title:       in.Title,
		Description: in.Description,
		Ingredients: in.Ingredients,
		Steps:       in.Steps,
		ImageURL:    model.StringPtr(imageURL),
		AuthorID:    &authorID,
		Source:      model.SourceUser,
	}
	if err := s.recipes.CreateRecipe(ctx, recipe); err != nil {
		return nil, fmt.Errorf("service/recipe: creating recipe: %w", err)
	}

	s.logger.Info("recipe created",
		slog.Int64("recipeID", recipe.ID),
		slog.Int64("authorID", authorID),
		slog.Bool("hasImage", recipe.ImageURL != nil),
	)
	return recipe, nil
}

// GetForEdit returns the recipe when userID owns it. Missing and not-owned
// recipes return the same ErrNotFound, so the edit page never reveals
// whether someone else's recipe exists.
func (s *RecipeService) GetForEdit(ctx context.Context, id, userID int64) (*model.Recipe, error) {
	recipe, err := s.recipes.GetRecipeByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFoundMessage(MsgCannotEdit)
	}
	if err != nil {
		return nil, fmt.Errorf("service/recipe: loading recipe %d for edit: %w", id, err)
	}
	if !recipe.OwnedBy(userID) {
		return nil, apperror.NotFoundMessage(MsgCannotEdit)
	}
	return recipe, nil
}

// Update rewrites the text fields of a recipe userID owns. An empty
// imageURL keeps the existing image.
func (s *RecipeService) Update(ctx context.Context, id, userID int64, in RecipeInput, imageURL string) (*model.Recipe, error) {
	recipe, err := s.GetForEdit(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	in = in.trimmed()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	recipe.Title = in.Title
	recipe.Description = in.Description
	recipe.Ingredients = in.Ingredients
	recipe.Steps = in.Steps
	if imageURL != "" {
		recipe.ImageURL = &imageURL
	}

	if err := s.recipes.UpdateRecipe(ctx, recipe, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage(MsgCannotEdit)
		}
		return nil, fmt.Errorf("service/recipe: updating recipe %d: %w", id, err)
	}

	s.logger.Info("recipe updated", slog.Int64("recipeID", id), slog.Int64("authorID", userID))
	return recipe, nil
}

// Get returns one recipe with its author's email.
func (s *RecipeService) Get(ctx context.Context, id int64) (*model.Recipe, error) {
	if id <= 0 {
		return nil, apperror.NotFoundMessage(MsgRecipeNotFound)
	}
	recipe, err := s.recipes.GetRecipeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: getting recipe %d: %w", id, err)
	}
	return recipe, nil
}

// ListRecent returns the newest recipes for the home page.
func (s *RecipeService) ListRecent(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := s.recipes.ListRecent(ctx, repository.ListOptions{Limit: HomeRecipeLimit})
	if err != nil {
		return nil, fmt.Errorf("service/recipe: listing recent recipes: %w", err)
	}
	return recipes, nil
}

// Search returns local recipes whose title or description contains query.
// A blank query returns an empty list.
func (s *RecipeService) Search(ctx context.Context, query string) ([]model.Recipe, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Recipe{}, nil
	}
	recipes, err := s.recipes.SearchRecipes(ctx, query, repository.ListOptions{Limit: SearchLimit})
	if err != nil {
		return nil, fmt.Errorf("service/recipe: searching %q: %w", query, err)
	}
	return recipes, nil
}

// ListWithImages returns recipes that carry an image reference.
func (s *RecipeService) ListWithImages(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := s.recipes.ListWithImages(ctx, repository.ListOptions{Limit: SearchLimit})
	if err != nil {
		return nil, fmt.Errorf("service/recipe: listing recipes with images: %w", err)
	}
	return recipes, nil
}
