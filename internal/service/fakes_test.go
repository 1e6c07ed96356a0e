package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository"
	"github.com/sakif/recipebox/internal/spoonacular"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// Hand-written in-memory fakes. Each error field, when set, is returned by
// the matching method so tests can simulate a database or API failure.

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo implements repository.UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	nextID  int64

	getErr    error
	createErr error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return apperror.Conflict("user", user.Email)
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now().UTC()
	copied := *user
	f.byEmail[user.Email] = &copied
	return nil
}

// fakeRecipeRepo implements repository.RecipeRepository.
type fakeRecipeRepo struct {
	mu      sync.Mutex
	recipes map[int64]*model.Recipe
	nextID  int64
	clock   time.Time

	err error // returned by every method when set
}

var _ repository.RecipeRepository = (*fakeRecipeRepo)(nil)

func newFakeRecipeRepo() *fakeRecipeRepo {
	return &fakeRecipeRepo{
		recipes: make(map[int64]*model.Recipe),
		nextID:  1,
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRecipeRepo) insert(recipe *model.Recipe) {
	recipe.ID = f.nextID
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	recipe.CreatedAt = f.clock
	if recipe.Source == "" {
		recipe.Source = model.SourceUser
	}
	copied := *recipe
	f.recipes[recipe.ID] = &copied
}

func (f *fakeRecipeRepo) CreateRecipe(_ context.Context, recipe *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.insert(recipe)
	return nil
}

func (f *fakeRecipeRepo) CreateImportedRecipe(_ context.Context, recipe *model.Recipe) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	if recipe.SpoonacularID == nil {
		return 0, false, apperror.ValidationFailed("spoonacular_id", "imported recipe needs a spoonacular id")
	}
	for _, r := range f.recipes {
		if r.SpoonacularID != nil && *r.SpoonacularID == *recipe.SpoonacularID {
			return r.ID, false, nil
		}
	}
	f.insert(recipe)
	return recipe.ID, true, nil
}

func (f *fakeRecipeRepo) GetRecipeBySpoonacularID(_ context.Context, id int64) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.recipes {
		if r.SpoonacularID != nil && *r.SpoonacularID == id {
			copied := *r
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("recipe", strconv.FormatInt(id, 10))
}

func (f *fakeRecipeRepo) GetRecipeByID(_ context.Context, id int64) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.recipes[id]
	if !ok {
		return nil, apperror.NotFoundMessage("Recipe not found")
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRecipeRepo) UpdateRecipe(_ context.Context, recipe *model.Recipe, authorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r, ok := f.recipes[recipe.ID]
	if !ok || !r.OwnedBy(authorID) {
		return apperror.NotFoundMessage("Recipe not found")
	}
	copied := *recipe
	f.recipes[recipe.ID] = &copied
	return nil
}

func (f *fakeRecipeRepo) sorted(keep func(*model.Recipe) bool, limit int) []model.Recipe {
	out := []model.Recipe{}
	for _, r := range f.recipes {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRecipeRepo) ListRecent(_ context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sorted(func(*model.Recipe) bool { return true }, opts.Limit), nil
}

func (f *fakeRecipeRepo) SearchRecipes(_ context.Context, query string, opts repository.ListOptions) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	q := strings.ToLower(query)
	return f.sorted(func(r *model.Recipe) bool {
		return strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Description), q)
	}, opts.Limit), nil
}

func (f *fakeRecipeRepo) ListWithImages(_ context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sorted(func(r *model.Recipe) bool { return r.Image() != "" }, opts.Limit), nil
}

func (f *fakeRecipeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recipes)
}

// fakeProvider implements RecipeProvider.
type fakeProvider struct {
	mu        sync.Mutex
	recipes   map[int64]*spoonacular.Recipe
	results   []spoonacular.Summary
	searchErr error
	calls     int
}

func (f *fakeProvider) Search(_ context.Context, query string, number int) (*spoonacular.SearchResponse, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	results := make([]spoonacular.Summary, len(f.results))
	copy(results, f.results)
	return &spoonacular.SearchResponse{Results: results, Number: number, TotalResults: len(results)}, nil
}

func (f *fakeProvider) Recipe(_ context.Context, id int64) (*spoonacular.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r, ok := f.recipes[id]
	if !ok {
		return nil, spoonacular.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

// fakeStore implements storage.Store in memory.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Save(_ context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	url := "https://bucket.s3.us-east-1.amazonaws.com/recipes/" + strconv.Itoa(len(f.objects)+1) + ".jpg"
	f.objects[url] = data
	return url, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Name() string               { return "fake" }

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// pngBytes encodes a w×h half-transparent red PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}
