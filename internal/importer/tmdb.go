package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"movie-catalog/internal/config"
	"movie-catalog/internal/models"
	"movie-catalog/internal/telemetry"
)

const posterBaseURL = "https://image.tmdb.org/t/p/w500"

// fetchRetries bounds per-page retries against a flaky upstream. A page that
// still fails is skipped; the run continues with the remaining pages.
const fetchRetries = 4

// FetchBudget is the shared rate budget for upstream requests.
type FetchBudget interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Producer pages through the TMDB top-rated feed and enqueues one
// movie:upsert job per record.
type Producer struct {
	cfg        config.Config
	httpClient *http.Client
	enqueuer   *Enqueuer
	budget     FetchBudget
	log        zerolog.Logger
}

// NewProducer builds a feed producer. budget may be nil to fetch unpaced.
func NewProducer(cfg config.Config, enqueuer *Enqueuer, budget FetchBudget, log zerolog.Logger) *Producer {
	return &Producer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		enqueuer:   enqueuer,
		budget:     budget,
		log:        log,
	}
}

type tmdbMovie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	VoteAverage *float64 `json:"vote_average"`
	ReleaseDate string   `json:"release_date"`
	PosterPath  *string  `json:"poster_path"`
}

type tmdbPage struct {
	Page    int         `json:"page"`
	Results []tmdbMovie `json:"results"`
}

// Run imports the configured number of feed pages. A page that keeps failing
// upstream is logged and skipped; individual records always become queue
// jobs rather than direct writes.
func (p *Producer) Run(ctx context.Context) error {
	if p.cfg.TMDBAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}

	var enqueued int
	for page := 1; page <= p.cfg.ImportPages; page++ {
		records, err := p.fetchPageWithRetry(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Error().Err(err).Int("page", page).Msg("skipping feed page after retries")
			continue
		}
		for _, m := range records {
			payload := normalize(m)
			if err := p.enqueuer.EnqueueJob(ctx, models.JobTypeMovieUpsert, payload); err != nil {
				p.log.Error().Err(err).Int64("external_id", m.ID).Msg("enqueue failed")
				continue
			}
			enqueued++
		}
		p.log.Info().Int("page", page).Int("records", len(records)).Msg("feed page enqueued")
	}
	p.log.Info().Int("enqueued", enqueued).Msg("import complete")
	return nil
}

// fetchPageWithRetry retries transient upstream failures with doubling
// backoff before giving up on the page.
func (p *Producer) fetchPageWithRetry(ctx context.Context, page int) ([]tmdbMovie, error) {
	backoff := p.cfg.BackoffInitial
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if p.cfg.BackoffMax > 0 && backoff > p.cfg.BackoffMax {
				backoff = p.cfg.BackoffMax
			}
		}
		records, err := p.fetchPage(ctx, page)
		if err == nil {
			return records, nil
		}
		lastErr = err
		telemetry.UpstreamErrors.Inc()
		p.log.Warn().Err(err).Int("page", page).Int("attempt", attempt+1).Msg("upstream fetch failed")
	}
	return nil, fmt.Errorf("fetch page %d: %w", page, lastErr)
}

func (p *Producer) fetchPage(ctx context.Context, page int) ([]tmdbMovie, error) {
	if err := p.waitForBudget(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(p.cfg.TMDBBaseURL + "/movie/top_rated")
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", p.cfg.TMDBAPIKey)
	q.Set("language", "en-US")
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	var body tmdbPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	telemetry.UpstreamFetches.Inc()
	return body.Results, nil
}

// waitForBudget blocks until the shared fetch budget grants a token.
func (p *Producer) waitForBudget(ctx context.Context) error {
	if p.budget == nil {
		return nil
	}
	for {
		allowed, _, err := p.budget.Allow(ctx, "budget:tmdb")
		if err != nil {
			return fmt.Errorf("fetch budget: %w", err)
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// normalize maps an upstream record onto the job payload shape consumed by
// the worker.
func normalize(m tmdbMovie) map[string]any {
	payload := map[string]any{
		"externalId":  m.ID,
		"title":       m.Title,
		"description": m.Overview,
		"releaseDate": m.ReleaseDate,
	}
	if m.VoteAverage != nil {
		payload["rating"] = *m.VoteAverage
	}
	if m.PosterPath != nil && *m.PosterPath != "" {
		payload["poster"] = posterBaseURL + *m.PosterPath
	}
	return payload
}
