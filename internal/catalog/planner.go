// Package catalog turns raw listing parameters into safe, bounded store
// queries. All of its operations are read-only.
package catalog

import (
	"context"
	"strings"

	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
)

const (
	// DefaultLimit is used when the caller sends no page size.
	DefaultLimit = 12
	// MaxLimit caps any requested page size.
	MaxLimit = 50
	// SearchCap bounds search results; search is intentionally not paginated.
	SearchCap = 200
)

// sortFields is the whitelist of sortable fields. Anything else falls back
// to the documented default of title ascending.
var sortFields = map[string]bool{
	"title":       true,
	"rating":      true,
	"releaseDate": true,
	"duration":    true,
}

// SortSpec is a sanitized sort instruction.
type SortSpec struct {
	Field string
	Desc  bool
}

// ParseSortSpec maps raw by/order parameters onto the whitelist. Unknown
// values default silently to title ascending rather than erroring.
func ParseSortSpec(by, order string) SortSpec {
	spec := SortSpec{Field: "title"}
	if sortFields[by] {
		spec.Field = by
	}
	spec.Desc = order == "desc"
	return spec
}

// Store is the read surface the planner needs from the catalog store.
type Store interface {
	CountMovies(ctx context.Context) (int64, error)
	FindMovies(ctx context.Context, p store.FindParams) ([]models.Movie, error)
	SearchMovies(ctx context.Context, pattern string, limit int) ([]models.Movie, error)
}

// Planner issues bounded catalog reads.
type Planner struct {
	store Store
}

// NewPlanner builds a planner over the given store.
func NewPlanner(st Store) *Planner {
	return &Planner{store: st}
}

// ListPaged returns one page of the catalog in insertion order.
func (p *Planner) ListPaged(ctx context.Context, page, limit int) (models.MovieList, error) {
	return p.list(ctx, SortSpec{}, page, limit, false)
}

// ListSorted returns one page ordered by the given spec.
func (p *Planner) ListSorted(ctx context.Context, spec SortSpec, page, limit int) (models.MovieList, error) {
	return p.list(ctx, spec, page, limit, true)
}

func (p *Planner) list(ctx context.Context, spec SortSpec, page, limit int, sorted bool) (models.MovieList, error) {
	page = clampPage(page)
	limit = clampLimit(limit)

	total, err := p.store.CountMovies(ctx)
	if err != nil {
		return models.MovieList{}, err
	}

	params := store.FindParams{
		Skip:  (page - 1) * limit,
		Limit: limit,
	}
	if sorted {
		params.SortField = spec.Field
		params.Desc = spec.Desc
	}
	movies, err := p.store.FindMovies(ctx, params)
	if err != nil {
		return models.MovieList{}, err
	}

	return models.MovieList{
		Page:       page,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		Total:      total,
		Movies:     movies,
	}, nil
}

// Search runs a case-insensitive substring match over title and description.
// The query text is escaped so it can never act as a pattern language; an
// empty or whitespace-only query short-circuits without touching the store.
func (p *Planner) Search(ctx context.Context, q string) ([]models.Movie, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.Movie{}, nil
	}
	pattern := "%" + escapeLike(q) + "%"
	return p.store.SearchMovies(ctx, pattern, SearchCap)
}

// escapeLike neutralizes LIKE metacharacters in user text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
