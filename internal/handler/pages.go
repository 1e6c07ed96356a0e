package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/imaging"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/spoonacular"
)

// Flash texts for recipe pages.
const (
	msgLoginRequired  = "Please log in to access this page."
	msgRecipeCreated  = "Recipe created successfully!"
	msgRecipeUpdated  = "Recipe updated successfully!"
	msgRecipeSaved    = "Recipe saved successfully!"
	msgAlreadySaved   = "Recipe already saved!"
	msgImageDegraded  = "Recipe saved, but the image could not be stored"
	msgErrorCreating  = "Error creating recipe"
	msgErrorUpdating  = "Error updating recipe"
	msgErrorSaving    = "Error saving recipe"
	msgErrorLoading   = "Error loading recipe"
	msgRecipeNotFound = service.MsgRecipeNotFound
)

// maxFormBytes bounds a create/edit request: the image plus the text fields.
const maxFormBytes = imaging.MaxUploadBytes + 1<<20

// PageHandler serves the recipe pages.
type PageHandler struct {
	recipes  *service.RecipeService
	importer *service.ImportService
	images   *service.ImageService
	view     *Renderer
	logger   *slog.Logger
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(
	recipes *service.RecipeService,
	importer *service.ImportService,
	images *service.ImageService,
	view *Renderer,
	logger *slog.Logger,
) *PageHandler {
	return &PageHandler{
		recipes:  recipes,
		importer: importer,
		images:   images,
		view:     view,
		logger:   logger,
	}
}

// RequireLogin is the deny handler for auth.RequireSession on HTML pages.
func RequireLogin(w http.ResponseWriter, r *http.Request) {
	addFlash(w, r, Flash{FlashError, msgLoginRequired})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// redirectWithFlash queues one flash and sends the browser to url.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, url, category, message string) {
	addFlash(w, r, Flash{category, message})
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// pathID parses the {id} route parameter. Anything but a positive integer
// is reported as false.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func recipeURL(id int64) string {
	return "/recipe/" + strconv.FormatInt(id, 10)
}

// HandleHome shows the newest recipes.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.ListRecent(r.Context())
	if err != nil {
		h.logger.Error("home: listing recipes", slog.String("error", err.Error()))
		h.view.render(w, r, http.StatusOK, pageHome, "", map[string]any{"Recipes": []model.Recipe{}},
			Flash{FlashError, userMessage(err, msgDatabaseError)})
		return
	}
	h.view.render(w, r, http.StatusOK, pageHome, "", map[string]any{"Recipes": recipes})
}

// HandleSearch searches saved recipes and the external provider. An empty
// q shows the form only.
//
// HTTP: GET /search?q=
func (h *PageHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	data := map[string]any{
		"Query":    query,
		"Local":    []model.Recipe{},
		"External": []spoonacular.Summary{},
	}
	if query == "" {
		h.view.render(w, r, http.StatusOK, pageSearch, "Search", data)
		return
	}

	var extra []Flash
	local, err := h.recipes.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("search: local query failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		extra = append(extra, Flash{FlashError, userMessage(err, msgDatabaseError)})
	} else {
		data["Local"] = local
	}
	data["External"] = h.importer.SearchExternal(r.Context(), query)

	h.view.render(w, r, http.StatusOK, pageSearch, "Search", data, extra...)
}

// HandleRecipeDetail shows one saved recipe.
//
// HTTP: GET /recipe/{id}
func (h *PageHandler) HandleRecipeDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		redirectWithFlash(w, r, "/", FlashError, msgRecipeNotFound)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			h.logger.Error("recipe detail failed", slog.Int64("recipeID", id), slog.String("error", err.Error()))
		}
		redirectWithFlash(w, r, "/", FlashError, userMessage(err, msgErrorLoading))
		return
	}

	sess, _ := auth.SessionFromContext(r.Context())
	h.view.render(w, r, http.StatusOK, pageRecipeDetail, recipe.Title, map[string]any{
		"Recipe":  recipe,
		"CanEdit": recipe.OwnedBy(sess.UserID),
	})
}

// HandleAPIRecipeDetail previews a provider recipe before it is saved.
//
// HTTP: GET /api_recipe/{id}
func (h *PageHandler) HandleAPIRecipeDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		redirectWithFlash(w, r, "/", FlashError, msgRecipeNotFound)
		return
	}

	detail, err := h.importer.ExternalDetail(r.Context(), id)
	if err != nil {
		redirectWithFlash(w, r, "/", FlashError, msgRecipeNotFound)
		return
	}

	h.view.render(w, r, http.StatusOK, pageAPIRecipeDetail, detail.Title, map[string]any{
		"Detail":  detail,
		"Preview": service.ToRecipe(detail, 0),
	})
}

// HandleSaveAPIRecipe imports a provider recipe for the logged-in user.
//
// HTTP: POST /save_api_recipe/{id}
// Auth: required
func (h *PageHandler) HandleSaveAPIRecipe(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		redirectWithFlash(w, r, "/", FlashError, msgRecipeNotFound)
		return
	}

	result, err := h.importer.Import(r.Context(), id, sess.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			h.logger.Error("import failed", slog.Int64("spoonacularID", id), slog.String("error", err.Error()))
		}
		redirectWithFlash(w, r, "/", FlashError, userMessage(err, msgErrorSaving))
		return
	}

	if result.AlreadySaved {
		redirectWithFlash(w, r, recipeURL(result.RecipeID), FlashInfo, msgAlreadySaved)
		return
	}
	redirectWithFlash(w, r, recipeURL(result.RecipeID), FlashSuccess, msgRecipeSaved)
}

// HandleCreateForm shows the empty create form.
//
// HTTP: GET /create_recipe
// Auth: required
func (h *PageHandler) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	h.view.render(w, r, http.StatusOK, pageCreateRecipe, "New recipe", map[string]any{"Recipe": &model.Recipe{}})
}

// HandleCreate stores a new recipe with an optional image.
//
// HTTP: POST /create_recipe (multipart/form-data)
// Auth: required
//
// FLOW:
//  1. Validate the text fields; nothing is stored when they fail
//  2. Run the image pipeline; a bad file re-renders the form
//  3. Insert; when only storage failed, the recipe is saved without image
func (h *PageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	in, err := parseRecipeForm(w, r)
	if err != nil {
		h.renderForm(w, r, pageCreateRecipe, "New recipe", formRecipe(in, nil), msgErrorCreating, err)
		return
	}
	if err := in.Validate(); err != nil {
		h.renderForm(w, r, pageCreateRecipe, "New recipe", formRecipe(in, nil), msgErrorCreating, err)
		return
	}

	imageURL, degraded, err := h.upload(r)
	if err != nil {
		h.renderForm(w, r, pageCreateRecipe, "New recipe", formRecipe(in, nil), msgErrorCreating, err)
		return
	}

	if _, err := h.recipes.Create(r.Context(), sess.UserID, in, imageURL); err != nil {
		h.logger.Error("create recipe failed", slog.Int64("userID", sess.UserID), slog.String("error", err.Error()))
		h.renderForm(w, r, pageCreateRecipe, "New recipe", formRecipe(in, nil), msgErrorCreating, err)
		return
	}

	flashes := []Flash{{FlashSuccess, msgRecipeCreated}}
	if degraded {
		flashes = append(flashes, Flash{FlashInfo, msgImageDegraded})
	}
	addFlash(w, r, flashes...)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleEditForm shows the edit form for a recipe the user owns.
//
// HTTP: GET /edit_recipe/{id}
// Auth: required, owner only
func (h *PageHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	recipe, ok := h.ownedRecipe(w, r)
	if !ok {
		return
	}
	h.view.render(w, r, http.StatusOK, pageEditRecipe, "Edit "+recipe.Title, map[string]any{"Recipe": recipe})
}

// HandleEdit updates a recipe the user owns. An empty image field keeps the
// current image.
//
// HTTP: POST /edit_recipe/{id} (multipart/form-data)
// Auth: required, owner only
func (h *PageHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	recipe, ok := h.ownedRecipe(w, r)
	if !ok {
		return
	}

	in, err := parseRecipeForm(w, r)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		h.renderForm(w, r, pageEditRecipe, "Edit "+recipe.Title, formRecipe(in, recipe), msgErrorUpdating, err)
		return
	}

	imageURL, degraded, err := h.upload(r)
	if err != nil {
		h.renderForm(w, r, pageEditRecipe, "Edit "+recipe.Title, formRecipe(in, recipe), msgErrorUpdating, err)
		return
	}

	if _, err := h.recipes.Update(r.Context(), recipe.ID, sess.UserID, in, imageURL); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			h.logger.Error("update recipe failed", slog.Int64("recipeID", recipe.ID), slog.String("error", err.Error()))
		}
		redirectWithFlash(w, r, "/", FlashError, userMessage(err, msgErrorUpdating))
		return
	}

	flashes := []Flash{{FlashSuccess, msgRecipeUpdated}}
	if degraded {
		flashes = append(flashes, Flash{FlashInfo, msgImageDegraded})
	}
	addFlash(w, r, flashes...)
	http.Redirect(w, r, recipeURL(recipe.ID), http.StatusSeeOther)
}

// ownedRecipe loads the {id} recipe for editing. On failure it has already
// flashed and redirected home.
func (h *PageHandler) ownedRecipe(w http.ResponseWriter, r *http.Request) (*model.Recipe, bool) {
	sess, _ := auth.SessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		redirectWithFlash(w, r, "/", FlashError, service.MsgCannotEdit)
		return nil, false
	}

	recipe, err := h.recipes.GetForEdit(r.Context(), id, sess.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			h.logger.Error("loading recipe for edit", slog.Int64("recipeID", id), slog.String("error", err.Error()))
		}
		redirectWithFlash(w, r, "/", FlashError, userMessage(err, msgErrorUpdating))
		return nil, false
	}
	return recipe, true
}

// renderForm re-shows a create/edit form with the submitted values and an
// error flash. Validation errors are 400; everything else is 200 with the
// generic message.
func (h *PageHandler) renderForm(w http.ResponseWriter, r *http.Request, page, title string, recipe *model.Recipe, fallback string, err error) {
	status := http.StatusOK
	if errors.Is(err, apperror.ErrValidation) {
		status = http.StatusBadRequest
	}
	h.view.render(w, r, status, page, title, map[string]any{"Recipe": recipe},
		Flash{FlashError, userMessage(err, fallback)})
}

// upload runs the optional "image" file through the pipeline. It returns
// "" when no file was sent. degraded is true when the file was fine but
// storage was unavailable; the recipe is then saved without an image.
func (h *PageHandler) upload(r *http.Request) (url string, degraded bool, err error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperror.ValidationFailed("image", service.MsgImageProcess)
	}
	defer file.Close()
	if header.Filename == "" {
		return "", false, nil
	}

	url, err = h.images.FromUpload(r.Context(), header.Filename, file)
	if errors.Is(err, service.ErrStorageUnavailable) {
		h.logger.Warn("image storage unavailable, saving recipe without image", slog.String("error", err.Error()))
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, false, nil
}

// parseRecipeForm reads the create/edit form. Both multipart and
// urlencoded bodies are accepted.
func parseRecipeForm(w http.ResponseWriter, r *http.Request) (service.RecipeInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.RecipeInput{}, apperror.ValidationFailed("image", service.MsgImageTooBig)
		}
		return service.RecipeInput{}, apperror.ValidationFailed("form", "Could not read the form")
	}
	return service.RecipeInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Ingredients: r.FormValue("ingredients"),
		Steps:       r.FormValue("steps"),
	}, nil
}

// formRecipe fills a recipe with submitted values for re-rendering a form.
// base keeps id and image when editing.
func formRecipe(in service.RecipeInput, base *model.Recipe) *model.Recipe {
	out := &model.Recipe{}
	if base != nil {
		copied := *base
		out = &copied
	}
	out.Title = in.Title
	out.Description = in.Description
	out.Ingredients = in.Ingredients
	out.Steps = in.Steps
	return out
}
