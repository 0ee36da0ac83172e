// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv is the paper-feed source adapter. It pages through the arXiv
// Atom API in submission order, pushing translatable filter predicates into
// the search_query parameter, and normalizes entries into PaperRecords.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/httputil"
	"github.com/pdiddy/watchcat/internal/logger"
	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/pkg/types"
)

// apiBase is the arXiv query endpoint. Declared as a var so tests can
// substitute an httptest server.
var apiBase = "https://export.arxiv.org/api/query"

// Defaults applied by New to zero config fields.
const (
	DefaultPageSize        = 100
	DefaultMaxResults      = 1000
	DefaultRequestInterval = 3 * time.Second
	DefaultTimeout         = 60 * time.Second
	DefaultUserAgent       = "watchcat/0.1"
)

var _ source.Adapter = (*Adapter)(nil)

// Adapter queries the arXiv API.
type Adapter struct {
	id      string
	cfg     types.ArxivConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// New returns an adapter for source id. A nil client gets one with the
// configured timeout.
func New(id string, cfg types.ArxivConfig, client *http.Client) (*Adapter, error) {
	if id == "" {
		return nil, types.ConfigError(id, fmt.Errorf("source id is required"))
	}
	if cfg.PageSize < 0 || cfg.MaxResults < 0 || cfg.MaxRetries < 0 {
		return nil, types.ConfigError(id, fmt.Errorf("arxiv: page_size, max_results, and max_retries must not be negative"))
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.PageSize > cfg.MaxResults {
		cfg.PageSize = cfg.MaxResults
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = DefaultRequestInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Adapter{
		id:      id,
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		now:     time.Now,
	}, nil
}

func (a *Adapter) ID() string       { return a.id }
func (a *Adapter) Kind() types.Kind { return types.KindPaper }

// Connect returns a no-op session; the API is stateless HTTP.
func (a *Adapter) Connect(ctx context.Context) (source.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return source.NopConn{}, nil
}

// Compile partitions expr against the arXiv query language.
func (a *Adapter) Compile(expr filter.Expr) source.Plan {
	plan := source.Partition(expr, types.KindPaper, Translator{})
	plan.Query = Render(plan.Native)
	return plan
}

// Fetch pages through the API in ascending submission order until a short
// page or the MaxResults cap.
func (a *Adapter) Fetch(ctx context.Context, _ source.Conn, plan source.Plan, w source.Window) ([]source.RawItem, error) {
	query := buildQuery(plan.Query, a.cfg.Categories, w)
	log := logger.Named("arxiv").With().Str("source", a.id).Logger()
	log.Debug().Str("query", query).Msg("fetching")

	var items []source.RawItem
	for start := 0; start < a.cfg.MaxResults; start += a.cfg.PageSize {
		size := a.cfg.PageSize
		if rest := a.cfg.MaxResults - start; rest < size {
			size = rest
		}
		page, err := a.fetchPage(ctx, query, start, size)
		if err != nil {
			return nil, err
		}
		fetched := a.now()
		for _, e := range page.Entries {
			items = append(items, e.raw(fetched))
		}
		log.Debug().Int("start", start).Int("entries", len(page.Entries)).Int("total", page.Total).Msg("page")
		if len(page.Entries) < size || (page.Total > 0 && start+size >= page.Total) {
			break
		}
	}
	return w.Keep(items), nil
}

func (a *Adapter) fetchPage(ctx context.Context, query string, start, size int) (*feed, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(size))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "ascending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, a.client, req, a.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var f feed
	if err := xml.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return &f, nil
}
