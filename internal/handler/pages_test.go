package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipebox/internal/handler"
	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/spoonacular"
	"github.com/sakif/recipebox/internal/storage"
)

// =========================================================================
// HOME
// =========================================================================

func TestHome(t *testing.T) {
	t.Run("empty database", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "No recipes yet.")
	})

	t.Run("shows the four newest with author", func(t *testing.T) {
		app := newTestApp(t)
		user, _ := app.signup(t, "chef@example.com")
		for i := 1; i <= 5; i++ {
			app.createRecipe(t, user.ID, "Dish number "+strconv.Itoa(i))
		}

		rr := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
		body := rr.Body.String()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, body, "Dish number 1<")
		for i := 2; i <= 5; i++ {
			assert.Contains(t, body, "Dish number "+strconv.Itoa(i))
		}
		assert.Contains(t, body, "by chef@example.com")
	})

	t.Run("database down shows error inline", func(t *testing.T) {
		app := newTestApp(t)
		require.NoError(t, app.db.Close())

		rr := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Database connection error")
	})
}

// =========================================================================
// SEARCH
// =========================================================================

func TestSearch(t *testing.T) {
	t.Run("empty query shows the form only", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.do(httptest.NewRequest(http.MethodGet, "/search", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "Saved recipes")
	})

	t.Run("local and external results", func(t *testing.T) {
		app := newTestApp(t)
		user, _ := app.signup(t, "chef@example.com")
		app.createRecipe(t, user.ID, "Tomato Soup")
		app.createRecipe(t, user.ID, "Pancakes")
		app.provider.results = []spoonacular.Summary{{ID: 7, Title: "Roast Tomato Salad", ReadyInMinutes: 20}}

		rr := app.do(httptest.NewRequest(http.MethodGet, "/search?q=tomato", nil))
		body := rr.Body.String()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, body, "Tomato Soup")
		assert.NotContains(t, body, "Pancakes")
		assert.Contains(t, body, `href="/api_recipe/7"`)
		assert.Contains(t, body, "20 min")
	})

	t.Run("nothing found anywhere", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.do(httptest.NewRequest(http.MethodGet, "/search?q=zzz", nil))
		body := rr.Body.String()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, body, "No saved recipes match")
		assert.Contains(t, body, "No external results.")
	})

	t.Run("provider failure is an empty external list", func(t *testing.T) {
		app := newTestApp(t)
		app.provider.searchErr = errors.New("quota exceeded")

		rr := app.do(httptest.NewRequest(http.MethodGet, "/search?q=soup", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "No external results.")
	})
}

// =========================================================================
// RECIPE DETAIL
// =========================================================================

func TestRecipeDetail(t *testing.T) {
	app := newTestApp(t)
	owner, ownerSession := app.signup(t, "owner@example.com")
	_, otherSession := app.signup(t, "other@example.com")
	recipe := app.createRecipe(t, owner.ID, "Lentil Stew")
	path := "/recipe/" + strconv.FormatInt(recipe.ID, 10)

	t.Run("owner sees the edit link", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodGet, path, nil), ownerSession))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Lentil Stew")
		assert.Contains(t, rr.Body.String(), "Edit recipe")
		assert.Contains(t, rr.Body.String(), "<li>1. Boil.</li>")
	})

	t.Run("other users do not", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodGet, path, nil), otherSession))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "Edit recipe")
	})

	for _, bad := range []string{"/recipe/9999", "/recipe/abc", "/recipe/0", "/recipe/-3"} {
		t.Run("not found "+bad, func(t *testing.T) {
			rr := app.do(httptest.NewRequest(http.MethodGet, bad, nil))

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, "/", rr.Header().Get("Location"))
			assert.Equal(t, []handler.Flash{{Category: handler.FlashError, Message: "Recipe not found"}}, flashes(t, rr))
		})
	}
}

func TestFlashShownOnce(t *testing.T) {
	app := newTestApp(t)
	rr := app.do(httptest.NewRequest(http.MethodGet, "/recipe/9999", nil))

	page := app.follow(t, rr)
	assert.Contains(t, page.Body.String(), "Recipe not found")

	// Rendering cleared the cookie.
	var cleared bool
	for _, c := range page.Result().Cookies() {
		if c.Name == "flash" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "flash cookie was not cleared")
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreateRecipe(t *testing.T) {
	fields := map[string]string{
		"title":       "  Garlic Bread ",
		"description": "Crunchy",
		"ingredients": "1 baguette\n3 cloves garlic",
		"steps":       "Slice.\nBake.",
	}

	t.Run("requires login", func(t *testing.T) {
		app := newTestApp(t)
		rr := app.do(httptest.NewRequest(http.MethodGet, "/create_recipe", nil))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.Equal(t, "Please log in to access this page.", flashes(t, rr)[0].Message)
	})

	t.Run("form renders for a session", func(t *testing.T) {
		app := newTestApp(t)
		_, session := app.signup(t, "chef@example.com")
		rr := app.do(withSession(httptest.NewRequest(http.MethodGet, "/create_recipe", nil), session))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `enctype="multipart/form-data"`)
	})

	t.Run("without image", func(t *testing.T) {
		app := newTestApp(t)
		user, session := app.signup(t, "chef@example.com")

		rr := app.do(withSession(multipartRequest(t, "/create_recipe", fields, "", nil), session))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))
		assert.Equal(t, "Recipe created successfully!", flashes(t, rr)[0].Message)

		recent, err := app.recipes.ListRecent(context.Background())
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "Garlic Bread", recent[0].Title)
		assert.True(t, recent[0].OwnedBy(user.ID))
		assert.Nil(t, recent[0].ImageURL)
	})

	t.Run("with image", func(t *testing.T) {
		app := newTestApp(t)
		_, session := app.signup(t, "chef@example.com")

		rr := app.do(withSession(multipartRequest(t, "/create_recipe", fields, "bread.png", pngBytes(t, 1200, 300)), session))
		require.Equal(t, http.StatusSeeOther, rr.Code)

		recent, err := app.recipes.ListRecent(context.Background())
		require.NoError(t, err)
		require.Len(t, recent, 1)
		url := recent[0].Image()
		require.True(t, strings.HasPrefix(url, storage.DiskURLPrefix+"/"), "image url = %q", url)

		_, err = os.Stat(filepath.Join(app.store.Dir(), filepath.Base(url)))
		assert.NoError(t, err)
	})

	t.Run("disallowed extension stores nothing", func(t *testing.T) {
		app := newTestApp(t)
		_, session := app.signup(t, "chef@example.com")

		rr := app.do(withSession(multipartRequest(t, "/create_recipe", fields, "notes.txt", []byte("hello")), session))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), service.MsgImageType)
		assert.Contains(t, rr.Body.String(), "Garlic Bread")

		entries, err := os.ReadDir(app.store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
		recent, err := app.recipes.ListRecent(context.Background())
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("missing title keeps the form", func(t *testing.T) {
		app := newTestApp(t)
		_, session := app.signup(t, "chef@example.com")

		rr := app.do(withSession(multipartRequest(t, "/create_recipe",
			map[string]string{"title": "   ", "description": "kept"}, "pic.png", pngBytes(t, 10, 10)), session))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Title is required")
		assert.Contains(t, rr.Body.String(), "kept")
		entries, err := os.ReadDir(app.store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries, "rejected form must not store its image")
	})

	t.Run("no storage saves without image", func(t *testing.T) {
		app := newTestApp(t, func(o *appOptions) { o.noStorage = true })
		_, session := app.signup(t, "chef@example.com")

		rr := app.do(withSession(multipartRequest(t, "/create_recipe", fields, "bread.png", pngBytes(t, 20, 20)), session))

		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, []handler.Flash{
			{Category: handler.FlashSuccess, Message: "Recipe created successfully!"},
			{Category: handler.FlashInfo, Message: "Recipe saved, but the image could not be stored"},
		}, flashes(t, rr))

		recent, err := app.recipes.ListRecent(context.Background())
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Nil(t, recent[0].ImageURL)
	})
}

// =========================================================================
// EDIT
// =========================================================================

func TestEditRecipe(t *testing.T) {
	app := newTestApp(t)
	owner, ownerSession := app.signup(t, "owner@example.com")
	_, otherSession := app.signup(t, "other@example.com")

	t.Run("owner sees the filled form", func(t *testing.T) {
		recipe := app.createRecipe(t, owner.ID, "Fish Pie")
		path := "/edit_recipe/" + strconv.FormatInt(recipe.ID, 10)

		rr := app.do(withSession(httptest.NewRequest(http.MethodGet, path, nil), ownerSession))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `value="Fish Pie"`)
	})

	t.Run("owner updates", func(t *testing.T) {
		recipe := app.createRecipe(t, owner.ID, "Fish Pie")
		path := "/edit_recipe/" + strconv.FormatInt(recipe.ID, 10)

		rr := app.do(withSession(multipartRequest(t, path, map[string]string{
			"title": "Better Fish Pie", "steps": "1. Bake longer.",
		}, "", nil), ownerSession))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/recipe/"+strconv.FormatInt(recipe.ID, 10), rr.Header().Get("Location"))
		assert.Equal(t, "Recipe updated successfully!", flashes(t, rr)[0].Message)

		got, err := app.recipes.Get(context.Background(), recipe.ID)
		require.NoError(t, err)
		assert.Equal(t, "Better Fish Pie", got.Title)
		assert.Equal(t, "1. Bake longer.", got.Steps)
	})

	t.Run("urlencoded body is accepted", func(t *testing.T) {
		recipe := app.createRecipe(t, owner.ID, "Soda Bread")
		path := "/edit_recipe/" + strconv.FormatInt(recipe.ID, 10)

		rr := app.do(withSession(formRequest(path, map[string][]string{"title": {"Soda Bread II"}}), ownerSession))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		got, err := app.recipes.Get(context.Background(), recipe.ID)
		require.NoError(t, err)
		assert.Equal(t, "Soda Bread II", got.Title)
	})

	t.Run("other user is refused", func(t *testing.T) {
		recipe := app.createRecipe(t, owner.ID, "Fish Pie")
		path := "/edit_recipe/" + strconv.FormatInt(recipe.ID, 10)

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			var req *http.Request
			if method == http.MethodGet {
				req = httptest.NewRequest(method, path, nil)
			} else {
				req = multipartRequest(t, path, map[string]string{"title": "Stolen"}, "", nil)
			}
			rr := app.do(withSession(req, otherSession))

			assert.Equal(t, http.StatusSeeOther, rr.Code, method)
			assert.Equal(t, "/", rr.Header().Get("Location"), method)
			assert.Equal(t, service.MsgCannotEdit, flashes(t, rr)[0].Message, method)
		}

		got, err := app.recipes.Get(context.Background(), recipe.ID)
		require.NoError(t, err)
		assert.Equal(t, "Fish Pie", got.Title)
	})

	t.Run("missing recipe", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodGet, "/edit_recipe/424242", nil), ownerSession))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, service.MsgCannotEdit, flashes(t, rr)[0].Message)
	})
}

// =========================================================================
// PROVIDER RECIPES
// =========================================================================

func TestAPIRecipeDetail(t *testing.T) {
	app := newTestApp(t)
	app.provider.add(tomatoSoup())

	t.Run("preview", func(t *testing.T) {
		rr := app.do(httptest.NewRequest(http.MethodGet, "/api_recipe/5001", nil))
		body := rr.Body.String()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, body, "Tomato Soup")
		assert.Contains(t, body, "<li>3. Blend.</li>")
		assert.Contains(t, body, "A simple soup &amp; bread.")
		assert.Contains(t, body, "to save this recipe")
	})

	t.Run("unknown id", func(t *testing.T) {
		rr := app.do(httptest.NewRequest(http.MethodGet, "/api_recipe/1", nil))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))
		assert.Equal(t, "Recipe not found", flashes(t, rr)[0].Message)
	})
}

func TestSaveAPIRecipe(t *testing.T) {
	app := newTestApp(t)
	app.provider.add(tomatoSoup())
	_, session := app.signup(t, "chef@example.com")

	t.Run("requires login", func(t *testing.T) {
		rr := app.do(httptest.NewRequest(http.MethodPost, "/save_api_recipe/5001", nil))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	var location string
	t.Run("first save imports", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodPost, "/save_api_recipe/5001", nil), session))

		require.Equal(t, http.StatusSeeOther, rr.Code)
		location = rr.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, "/recipe/"), location)
		assert.Equal(t, []handler.Flash{{Category: handler.FlashSuccess, Message: "Recipe saved successfully!"}}, flashes(t, rr))

		page := app.follow(t, rr, session)
		assert.Contains(t, page.Body.String(), "Tomato Soup")
		assert.Contains(t, page.Body.String(), "Spoonacular")
	})

	t.Run("second save finds the same row", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodPost, "/save_api_recipe/5001", nil), session))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, location, rr.Header().Get("Location"))
		assert.Equal(t, []handler.Flash{{Category: handler.FlashInfo, Message: "Recipe already saved!"}}, flashes(t, rr))
	})

	t.Run("unknown id", func(t *testing.T) {
		rr := app.do(withSession(httptest.NewRequest(http.MethodPost, "/save_api_recipe/404", nil), session))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))
		assert.Equal(t, "Recipe not found", flashes(t, rr)[0].Message)
	})

	t.Run("database down", func(t *testing.T) {
		down := newTestApp(t)
		down.provider.add(tomatoSoup())
		_, s := down.signup(t, "chef@example.com")
		require.NoError(t, down.db.Close())

		rr := down.do(withSession(httptest.NewRequest(http.MethodPost, "/save_api_recipe/5001", nil), s))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "Error saving recipe", flashes(t, rr)[0].Message)
	})
}
