package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository"
	"github.com/sakif/recipebox/internal/spoonacular"
	"github.com/sakif/recipebox/internal/textclean"
)

// MaxDescriptionLength is how much of the provider summary is kept.
const MaxDescriptionLength = 500

// imageUploadConcurrency bounds parallel image copies during /api/search.
const imageUploadConcurrency = 4

// RecipeProvider is the external recipe API. *spoonacular.Client
// implements it.
type RecipeProvider interface {
	Search(ctx context.Context, query string, number int) (*spoonacular.SearchResponse, error)
	Recipe(ctx context.Context, id int64) (*spoonacular.Recipe, error)
}

// ImportResult tells the caller which local recipe now holds the import.
// AlreadySaved is true when the recipe existed before this call.
type ImportResult struct {
	RecipeID     int64
	AlreadySaved bool
}

// ImportService searches the external provider and copies its recipes
// into the local database.
type ImportService struct {
	recipes  repository.RecipeRepository
	provider RecipeProvider // nil when no API key is configured
	images   *ImageService
	logger   *slog.Logger
}

// NewImportService creates an ImportService. provider may be nil, which
// makes external search empty and every import not found.
func NewImportService(
	recipes repository.RecipeRepository,
	provider RecipeProvider,
	images *ImageService,
	logger *slog.Logger,
) *ImportService {
	return &ImportService{
		recipes:  recipes,
		provider: provider,
		images:   images,
		logger:   logger,
	}
}

// Enabled reports whether an external provider is configured.
func (s *ImportService) Enabled() bool {
	return s.provider != nil
}

// Import saves external recipe externalID for userID.
//
// FLOW:
//  1. Already stored locally? Return it with AlreadySaved.
//  2. Fetch the detail from the provider. Any failure is ErrNotFound.
//  3. Map and clean the fields, copy the image into storage.
//  4. Insert. A concurrent import of the same id resolves to its row.
func (s *ImportService) Import(ctx context.Context, externalID, userID int64) (ImportResult, error) {
	if externalID <= 0 || s.provider == nil {
		return ImportResult{}, apperror.NotFoundMessage(MsgRecipeNotFound)
	}

	existing, err := s.recipes.GetRecipeBySpoonacularID(ctx, externalID)
	switch {
	case err == nil:
		return ImportResult{RecipeID: existing.ID, AlreadySaved: true}, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return ImportResult{}, fmt.Errorf("service/import: checking spoonacular id %d: %w", externalID, err)
	}

	detail, err := s.ExternalDetail(ctx, externalID)
	if err != nil {
		return ImportResult{}, err
	}

	recipe := ToRecipe(detail, userID)
	if image := s.images.FromURL(ctx, detail.Image); image != "" {
		recipe.ImageURL = &image
	}

	id, created, err := s.recipes.CreateImportedRecipe(ctx, recipe)
	if err != nil {
		return ImportResult{}, fmt.Errorf("service/import: saving spoonacular id %d: %w", externalID, err)
	}

	if created {
		s.logger.Info("recipe imported",
			slog.Int64("recipeID", id),
			slog.Int64("spoonacularID", externalID),
			slog.Int64("userID", userID),
		)
	}
	return ImportResult{RecipeID: id, AlreadySaved: !created}, nil
}

// ExternalDetail fetches one provider recipe. Network errors, bad statuses
// and undecodable bodies are all reported as ErrNotFound.
func (s *ImportService) ExternalDetail(ctx context.Context, externalID int64) (*spoonacular.Recipe, error) {
	if externalID <= 0 || s.provider == nil {
		return nil, apperror.NotFoundMessage(MsgRecipeNotFound)
	}
	detail, err := s.provider.Recipe(ctx, externalID)
	if err != nil {
		s.logger.Warn("spoonacular detail failed",
			slog.Int64("spoonacularID", externalID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.NotFoundMessage(MsgRecipeNotFound)
	}
	return detail, nil
}

// SearchExternal runs a provider search. An unconfigured provider, a blank
// query, or a failed call all give an empty list.
func (s *ImportService) SearchExternal(ctx context.Context, query string) []spoonacular.Summary {
	query = strings.TrimSpace(query)
	if query == "" || s.provider == nil {
		return []spoonacular.Summary{}
	}
	resp, err := s.provider.Search(ctx, query, spoonacular.DefaultSearchResults)
	if err != nil {
		s.logger.Warn("spoonacular search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return []spoonacular.Summary{}
	}
	if resp.Results == nil {
		return []spoonacular.Summary{}
	}
	return resp.Results
}

// SearchExternalWithImages is SearchExternal with each result's image
// copied into storage first, so the JSON clients get stable image URLs.
func (s *ImportService) SearchExternalWithImages(ctx context.Context, query string) []spoonacular.Summary {
	results := s.SearchExternal(ctx, query)
	if len(results) == 0 || !s.images.Enabled() {
		return results
	}

	var g errgroup.Group
	g.SetLimit(imageUploadConcurrency)
	for i := range results {
		g.Go(func() error {
			results[i].Image = s.images.FromURL(ctx, results[i].Image)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ToRecipe maps a provider recipe to a local one owned by userID:
//   - description: cleaned summary, at most MaxDescriptionLength runes
//   - ingredients: one "• {amount} {unit} {name}" line each
//   - steps: the first instruction group numbered "1. ...", or the cleaned
//     flat instructions when there are no structured steps
//
// ImageURL is left unset; the caller stores the image first.
func ToRecipe(detail *spoonacular.Recipe, userID int64) *model.Recipe {
	externalID := detail.ID

	ingredients := make([]textclean.Ingredient, 0, len(detail.ExtendedIngredients))
	for _, ing := range detail.ExtendedIngredients {
		ingredients = append(ingredients, textclean.Ingredient{
			Amount:   ing.Amount,
			Unit:     ing.Unit,
			Name:     ing.Name,
			Original: ing.Original,
		})
	}

	recipe := &model.Recipe{
		Title:         strings.TrimSpace(detail.Title),
		Description:   textclean.Truncate(textclean.Clean(detail.Summary), MaxDescriptionLength),
		Ingredients:   textclean.FormatIngredients(ingredients),
		Steps:         formatSteps(detail),
		SpoonacularID: &externalID,
		Source:        model.SourceSpoonacular,
	}
	if userID > 0 {
		recipe.AuthorID = &userID
	}
	return recipe
}

func formatSteps(detail *spoonacular.Recipe) string {
	if len(detail.AnalyzedInstructions) > 0 && len(detail.AnalyzedInstructions[0].Steps) > 0 {
		steps := make([]string, 0, len(detail.AnalyzedInstructions[0].Steps))
		for _, step := range detail.AnalyzedInstructions[0].Steps {
			steps = append(steps, step.Step)
		}
		if formatted := textclean.FormatSteps(steps); formatted != "" {
			return formatted
		}
	}
	return textclean.Clean(detail.Instructions)
}
