package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"movie-catalog/internal/models"
)

const movieColumns = `id, title, description, external_id, rating, release_date, duration, poster, genres, created_by, created_at, updated_at`

// sortColumns maps API sort fields to movie columns. Lookups go through this
// map so caller input never reaches the ORDER BY clause directly.
var sortColumns = map[string]string{
	"title":       "title",
	"rating":      "rating",
	"releaseDate": "release_date",
	"duration":    "duration",
}

// FindParams bounds a catalog page fetch.
type FindParams struct {
	SortField string // one of the sortColumns keys; empty means insertion order
	Desc      bool
	Skip      int
	Limit     int
}

// CountMovies returns the total number of catalog records.
func (s *Store) CountMovies(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return n, nil
}

// FindMovies fetches one bounded, optionally sorted page.
func (s *Store) FindMovies(ctx context.Context, p FindParams) ([]models.Movie, error) {
	order := "created_at ASC"
	if col, ok := sortColumns[p.SortField]; ok {
		dir := "ASC"
		if p.Desc {
			dir = "DESC"
		}
		order = fmt.Sprintf("%s %s NULLS LAST, id ASC", col, dir)
	}
	q := fmt.Sprintf(`SELECT %s FROM movies ORDER BY %s OFFSET $1 LIMIT $2`, movieColumns, order)
	rows, err := s.pool.Query(ctx, q, p.Skip, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("find movies: %w", err)
	}
	defer rows.Close()
	return scanMovies(rows)
}

// SearchMovies matches the pre-escaped ILIKE pattern against title or
// description, capped at limit rows.
func (s *Store) SearchMovies(ctx context.Context, pattern string, limit int) ([]models.Movie, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM movies
		WHERE title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		LIMIT $2
	`, movieColumns)
	rows, err := s.pool.Query(ctx, q, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	defer rows.Close()
	return scanMovies(rows)
}

// GetMovie fetches a single record by id.
func (s *Store) GetMovie(ctx context.Context, id string) (models.Movie, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns), id)
	m, err := scanMovie(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Movie{}, ErrNotFound
	}
	if err != nil {
		return models.Movie{}, fmt.Errorf("get movie: %w", err)
	}
	return m, nil
}

// CreateMovieParams collects the fields an admin may set on a new record.
type CreateMovieParams struct {
	Title       string
	Description string
	Rating      *float64
	ReleaseDate *time.Time
	Duration    *int
	Poster      *string
	Genres      []string
	CreatedBy   string
}

// CreateMovie inserts a new record and returns it.
func (s *Store) CreateMovie(ctx context.Context, p CreateMovieParams) (models.Movie, error) {
	if p.Genres == nil {
		p.Genres = []string{}
	}
	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO movies (id, title, description, rating, release_date, duration, poster, genres, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, movieColumns), id, p.Title, p.Description, p.Rating, p.ReleaseDate, p.Duration, p.Poster, p.Genres, p.CreatedBy)
	m, err := scanMovie(row)
	if err != nil {
		return models.Movie{}, fmt.Errorf("insert movie: %w", err)
	}
	return m, nil
}

// UpdateMovieParams is a partial patch; nil fields are left untouched.
type UpdateMovieParams struct {
	Title       *string
	Description *string
	Rating      *float64
	ReleaseDate *time.Time
	Duration    *int
	Poster      *string
	Genres      []string
}

// UpdateMovie applies a partial patch and returns the updated record.
func (s *Store) UpdateMovie(ctx context.Context, id string, p UpdateMovieParams) (models.Movie, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE movies SET
			title        = COALESCE($2, title),
			description  = COALESCE($3, description),
			rating       = COALESCE($4, rating),
			release_date = COALESCE($5, release_date),
			duration     = COALESCE($6, duration),
			poster       = COALESCE($7, poster),
			genres       = COALESCE($8, genres),
			updated_at   = NOW()
		WHERE id = $1
		RETURNING %s
	`, movieColumns), id, p.Title, p.Description, p.Rating, p.ReleaseDate, p.Duration, p.Poster, p.Genres)
	m, err := scanMovie(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Movie{}, ErrNotFound
	}
	if err != nil {
		return models.Movie{}, fmt.Errorf("update movie: %w", err)
	}
	return m, nil
}

// DeleteMovie removes a record by id.
func (s *Store) DeleteMovie(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertMovieParams is a normalized external record keyed by ExternalID.
type UpsertMovieParams struct {
	ExternalID  int64
	Title       string
	Description string
	Rating      *float64
	ReleaseDate *time.Time
	Poster      *string
}

// UpsertMovieByExternalID inserts or updates the record carrying the given
// external id in one atomic statement. Applying the same input any number of
// times yields the same final row, which is what makes at-least-once job
// delivery safe.
func (s *Store) UpsertMovieByExternalID(ctx context.Context, p UpsertMovieParams) (models.Movie, error) {
	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO movies (id, external_id, title, description, rating, release_date, poster)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			title        = EXCLUDED.title,
			description  = EXCLUDED.description,
			rating       = EXCLUDED.rating,
			release_date = EXCLUDED.release_date,
			poster       = EXCLUDED.poster,
			updated_at   = NOW()
		RETURNING %s
	`, movieColumns), id, p.ExternalID, p.Title, p.Description, p.Rating, p.ReleaseDate, p.Poster)
	m, err := scanMovie(row)
	if err != nil {
		return models.Movie{}, fmt.Errorf("upsert movie external_id=%d: %w", p.ExternalID, err)
	}
	return m, nil
}

func scanMovie(row pgx.Row) (models.Movie, error) {
	var m models.Movie
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.ExternalID, &m.Rating, &m.ReleaseDate,
		&m.Duration, &m.Poster, &m.Genres, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanMovies(rows pgx.Rows) ([]models.Movie, error) {
	movies := make([]models.Movie, 0)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}
