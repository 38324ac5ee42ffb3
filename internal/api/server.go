// Package api exposes the HTTP surface of the catalog. It is the single
// place where internal failures are translated into status codes; store
// detail never reaches a response body.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"movie-catalog/internal/auth"
	"movie-catalog/internal/catalog"
	"movie-catalog/internal/config"
	"movie-catalog/internal/models"
	"movie-catalog/internal/store"
	"movie-catalog/internal/telemetry"
)

// Planner is the read-only listing surface.
type Planner interface {
	ListPaged(ctx context.Context, page, limit int) (models.MovieList, error)
	ListSorted(ctx context.Context, spec catalog.SortSpec, page, limit int) (models.MovieList, error)
	Search(ctx context.Context, q string) ([]models.Movie, error)
}

// MovieStore is the mutation and lookup surface used by the admin routes.
type MovieStore interface {
	GetMovie(ctx context.Context, id string) (models.Movie, error)
	CreateMovie(ctx context.Context, p store.CreateMovieParams) (models.Movie, error)
	UpdateMovie(ctx context.Context, id string, p store.UpdateMovieParams) (models.Movie, error)
	DeleteMovie(ctx context.Context, id string) error
}

// UserStore resolves login credentials.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// JobReader exposes ingestion jobs for admin inspection.
type JobReader interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
}

// DLQReader exposes the dead-letter queue for admin inspection.
type DLQReader interface {
	DLQPeek(ctx context.Context, count int64) ([]string, error)
}

// Server wires HTTP handlers for the catalog API.
type Server struct {
	cfg      config.Config
	planner  Planner
	movies   MovieStore
	users    UserStore
	jobs     JobReader
	dlq      DLQReader
	tokens   *auth.TokenManager
	authMW   *auth.Middleware
	validate *validator.Validate
	log      zerolog.Logger
}

// New constructs the API server.
func New(cfg config.Config, planner Planner, movies MovieStore, users UserStore, jobs JobReader, dlq DLQReader, tokens *auth.TokenManager, authMW *auth.Middleware, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		planner:  planner,
		movies:   movies,
		users:    users,
		jobs:     jobs,
		dlq:      dlq,
		tokens:   tokens,
		authMW:   authMW,
		validate: validator.New(),
		log:      log,
	}
}

// Router builds the HTTP router. Public listing routes bypass the gates;
// every mutation runs authenticate-then-authorize, in that order.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/auth/login", s.handleLogin)

	r.Route("/movies", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/sorted", s.handleSorted)
		r.Get("/search", s.handleSearch)
		r.Get("/{id}", s.handleGetByID)

		r.Group(func(r chi.Router) {
			r.Use(s.authMW.Authenticate)
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Post("/", s.handleCreate)
			r.Put("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	r.Route("/ingest", func(r chi.Router) {
		r.Use(s.authMW.Authenticate)
		r.Use(auth.RequireRole(models.RoleAdmin))
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/dlq", s.handleDLQ)
	})

	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	limit := intQuery(r, "limit", catalog.DefaultLimit)
	list, err := s.planner.ListPaged(r.Context(), page, limit)
	if err != nil {
		s.serverError(w, err, "list movies")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSorted(w http.ResponseWriter, r *http.Request) {
	spec := catalog.ParseSortSpec(r.URL.Query().Get("by"), r.URL.Query().Get("order"))
	page := intQuery(r, "page", 1)
	limit := intQuery(r, "limit", catalog.DefaultLimit)
	list, err := s.planner.ListSorted(r.Context(), spec, page, limit)
	if err != nil {
		s.serverError(w, err, "list sorted movies")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	movies, err := s.planner.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.serverError(w, err, "search movies")
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid movie ID")
		return
	}
	movie, err := s.movies.GetMovie(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Movie not found")
		return
	}
	if err != nil {
		s.serverError(w, err, "get movie")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

type movieRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1"`
	Description *string  `json:"description"`
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=10"`
	ReleaseDate *string  `json:"releaseDate" validate:"omitempty,datetime=2006-01-02"`
	Duration    *int     `json:"duration" validate:"omitempty,gte=0"`
	Poster      *string  `json:"poster" validate:"omitempty,url"`
	Genres      []string `json:"genres"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req movieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeMessage(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	params := store.CreateMovieParams{
		Title:     *req.Title,
		Rating:    req.Rating,
		Duration:  req.Duration,
		Poster:    req.Poster,
		Genres:    req.Genres,
		CreatedBy: identity.ID,
	}
	if req.Description != nil {
		params.Description = *req.Description
	}
	if req.ReleaseDate != nil {
		d, _ := time.Parse("2006-01-02", *req.ReleaseDate)
		params.ReleaseDate = &d
	}

	movie, err := s.movies.CreateMovie(r.Context(), params)
	if err != nil {
		s.serverError(w, err, "create movie")
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid movie ID")
		return
	}
	var req movieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	params := store.UpdateMovieParams{
		Title:       req.Title,
		Description: req.Description,
		Rating:      req.Rating,
		Duration:    req.Duration,
		Poster:      req.Poster,
		Genres:      req.Genres,
	}
	if req.ReleaseDate != nil {
		d, _ := time.Parse("2006-01-02", *req.ReleaseDate)
		params.ReleaseDate = &d
	}

	movie, err := s.movies.UpdateMovie(r.Context(), id, params)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.serverError(w, err, "update movie")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid movie ID")
		return
	}
	err := s.movies.DeleteMovie(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.serverError(w, err, "delete movie")
		return
	}
	writeMessage(w, http.StatusOK, "Deleted")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.serverError(w, err, "login lookup")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.serverError(w, err, "generate token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.serverError(w, err, "get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.dlq.DLQPeek(r.Context(), 100)
	if err != nil {
		s.serverError(w, err, "read dlq")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// serverError logs the failure with detail and answers with a generic body.
func (s *Server) serverError(w http.ResponseWriter, err error, op string) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	writeMessage(w, http.StatusInternalServerError, "Server error")
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		if fe.Tag() == "required" {
			return field + " is required"
		}
		return field + " is invalid"
	}
	return "Invalid request"
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
