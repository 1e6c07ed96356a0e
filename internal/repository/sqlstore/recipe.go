package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/dbx"
	"github.com/sakif/recipebox/internal/model"
	"github.com/sakif/recipebox/internal/repository"
)

// List limits. A zero Limit means defaultListLimit; anything above
// maxListLimit is clamped.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// recipeColumns is the SELECT list shared by every recipe query. The author
// is LEFT JOINed so legacy rows without an author still come back.
const recipeColumns = `r.id, r.title, r.description, r.ingredients, r.steps, r.image_url,
	r.author_id, r.spoonacular_id, r.source, r.created_at, COALESCE(u.email, '')`

const recipeFrom = `FROM recipes r LEFT JOIN users u ON u.id = r.author_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecipe reads one row selected with recipeColumns.
//
// NULL HANDLING:
// database/sql cannot scan NULL into a plain string or int64, so nullable
// columns go through sql.NullString / sql.NullInt64 and are converted to
// pointers on the model.
func scanRecipe(s rowScanner) (*model.Recipe, error) {
	var (
		r             model.Recipe
		imageURL      sql.NullString
		authorID      sql.NullInt64
		spoonacularID sql.NullInt64
	)

	err := s.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.Ingredients,
		&r.Steps,
		&imageURL,
		&authorID,
		&spoonacularID,
		&r.Source,
		&r.CreatedAt,
		&r.AuthorEmail,
	)
	if err != nil {
		return nil, err
	}

	if imageURL.Valid {
		r.ImageURL = &imageURL.String
	}
	if authorID.Valid {
		r.AuthorID = &authorID.Int64
	}
	if spoonacularID.Valid {
		r.SpoonacularID = &spoonacularID.Int64
	}

	return &r, nil
}

// CreateRecipe inserts a user-authored recipe and fills in ID and CreatedAt.
func (db *DB) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	id, err := db.insertRecipe(ctx, db.conn, recipe, false)
	if err != nil {
		return fmt.Errorf("sqlstore: inserting recipe: %w", classify(err, "Database connection error"))
	}
	recipe.ID = id
	return nil
}

// CreateImportedRecipe stores a Spoonacular recipe at most once.
//
// DEDUPLICATION:
// The fast path is a lookup by spoonacular_id. Two concurrent imports of the
// same recipe can both miss that lookup, so the INSERT carries
// ON CONFLICT ... DO NOTHING against the partial unique index on
// spoonacular_id. The losing INSERT returns no row, and we read back the
// winner's id instead.
func (db *DB) CreateImportedRecipe(ctx context.Context, recipe *model.Recipe) (int64, bool, error) {
	if recipe.SpoonacularID == nil {
		return 0, false, apperror.ValidationFailed("spoonacular_id", "imported recipe has no Spoonacular id")
	}

	var (
		id      int64
		created bool
	)

	err := dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := db.lookupSpoonacularID(ctx, tx, *recipe.SpoonacularID)
		if err == nil {
			id = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		id, err = db.insertRecipe(ctx, tx, recipe, true)
		if errors.Is(err, sql.ErrNoRows) {
			id, err = db.lookupSpoonacularID(ctx, tx, *recipe.SpoonacularID)
			return err
		}
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: importing recipe (spoonacularID=%d): %w",
			*recipe.SpoonacularID, classify(err, "Database connection error"))
	}

	if created {
		recipe.ID = id
	}
	return id, created, nil
}

func (db *DB) lookupSpoonacularID(ctx context.Context, q dbx.DBTX, spoonacularID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		db.rebind(`SELECT id FROM recipes WHERE spoonacular_id = ?`),
		spoonacularID,
	).Scan(&id)
	return id, err
}

// insertRecipe runs the INSERT for both the authored and the imported path.
// With skipDuplicate set, a spoonacular_id collision yields sql.ErrNoRows.
func (db *DB) insertRecipe(ctx context.Context, q dbx.DBTX, recipe *model.Recipe, skipDuplicate bool) (int64, error) {
	if recipe.Source == "" {
		recipe.Source = model.SourceUser
	}
	recipe.CreatedAt = time.Now().UTC()

	query := `INSERT INTO recipes
		(title, description, ingredients, steps, image_url, author_id, spoonacular_id, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if skipDuplicate {
		query += ` ON CONFLICT (spoonacular_id) WHERE spoonacular_id IS NOT NULL DO NOTHING`
	}
	query += ` RETURNING id`

	var id int64
	err := q.QueryRowContext(ctx, db.rebind(query),
		recipe.Title,
		recipe.Description,
		recipe.Ingredients,
		recipe.Steps,
		recipe.ImageURL,
		recipe.AuthorID,
		recipe.SpoonacularID,
		recipe.Source,
		recipe.CreatedAt,
	).Scan(&id)
	return id, err
}

// GetRecipeBySpoonacularID returns the imported copy of a Spoonacular recipe.
func (db *DB) GetRecipeBySpoonacularID(ctx context.Context, spoonacularID int64) (*model.Recipe, error) {
	recipe, err := scanRecipe(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+recipeColumns+` `+recipeFrom+` WHERE r.spoonacular_id = ?`),
		spoonacularID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("recipe", "spoonacular:"+strconv.FormatInt(spoonacularID, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting recipe by spoonacular id %d: %w",
			spoonacularID, classify(err, "Database connection error"))
	}
	return recipe, nil
}

// GetRecipeByID returns one recipe with its author's email.
func (db *DB) GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error) {
	recipe, err := scanRecipe(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+recipeColumns+` `+recipeFrom+` WHERE r.id = ?`),
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundMessage("Recipe not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting recipe %d: %w", id, classify(err, "Database connection error"))
	}
	return recipe, nil
}

// UpdateRecipe rewrites the editable fields of a recipe.
//
// The WHERE clause includes author_id, so a row owned by someone else is
// simply not matched; zero rows affected is reported as not found. The
// service checks ownership first to give a friendlier message.
func (db *DB) UpdateRecipe(ctx context.Context, recipe *model.Recipe, authorID int64) error {
	result, err := db.conn.ExecContext(ctx,
		db.rebind(`UPDATE recipes
		 SET title = ?, description = ?, ingredients = ?, steps = ?, image_url = ?
		 WHERE id = ? AND author_id = ?`),
		recipe.Title,
		recipe.Description,
		recipe.Ingredients,
		recipe.Steps,
		recipe.ImageURL,
		recipe.ID,
		authorID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating recipe %d: %w", recipe.ID, classify(err, "Database connection error"))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFoundMessage("Recipe not found")
	}
	return nil
}

// ListRecent returns recipes newest first.
func (db *DB) ListRecent(ctx context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	limit, offset := bounds(opts)
	return db.listRecipes(ctx, "listing recent recipes",
		`SELECT `+recipeColumns+` `+recipeFrom+`
		 ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

// SearchRecipes matches query as a case-insensitive substring of title or
// description.
//
// LIKE treats % and _ as wildcards. They are escaped so a search for "50%"
// matches the literal text. LOWER() on both sides keeps the match
// case-insensitive on PostgreSQL, where LIKE is case-sensitive.
func (db *DB) SearchRecipes(ctx context.Context, query string, opts repository.ListOptions) ([]model.Recipe, error) {
	limit, offset := bounds(opts)
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return db.listRecipes(ctx, "searching recipes",
		`SELECT `+recipeColumns+` `+recipeFrom+`
		 WHERE LOWER(r.title) LIKE ? ESCAPE '\' OR LOWER(r.description) LIKE ? ESCAPE '\'
		 ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		pattern, pattern, limit, offset,
	)
}

// ListWithImages returns recipes whose image_url is set.
func (db *DB) ListWithImages(ctx context.Context, opts repository.ListOptions) ([]model.Recipe, error) {
	limit, offset := bounds(opts)
	return db.listRecipes(ctx, "listing recipes with images",
		`SELECT `+recipeColumns+` `+recipeFrom+`
		 WHERE r.image_url IS NOT NULL AND r.image_url <> ''
		 ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

// listRecipes runs a multi-row recipe query.
//
// Returns an empty (non-nil) slice when nothing matches so callers and
// templates can range over it without a nil check.
func (db *DB) listRecipes(ctx context.Context, what, query string, args ...any) ([]model.Recipe, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %s: %w", what, classify(err, "Database connection error"))
	}
	defer rows.Close()

	recipes := []model.Recipe{}
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning recipe row: %w", err)
		}
		recipes = append(recipes, *recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating recipe rows: %w", err)
	}

	return recipes, nil
}

func bounds(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the LIKE wildcards in s for use with ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
