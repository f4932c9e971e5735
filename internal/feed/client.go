package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const marketsPath = "/coins/markets"

// ClientOptions parameterise the price feed client.
type ClientOptions struct {
	BaseURL         string
	APIKeys         []string
	VsCurrency      string
	PageSize        int
	MinCallInterval time.Duration
	CacheTTL        time.Duration
	Timeout         time.Duration
	UserAgent       string
	MaxFailures     int
	Cooldown        time.Duration
}

// Client fetches ranked asset observations from the upstream markets endpoint.
// Calls are paced to a minimum inter-call interval, spread across a rotating
// API key pool, protected by a circuit breaker, and served from a short-lived
// page cache when possible.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *Breaker

	mu     sync.Mutex
	keyIdx int
	cache  map[int]cachedPage

	nowFn func() time.Time
}

type cachedPage struct {
	observations []Observation
	expiresAt    time.Time
}

// NewClient constructs a feed client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	interval := opts.MinCallInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		breaker: NewBreaker(opts.MaxFailures, opts.Cooldown),
		cache:   make(map[int]cachedPage),
		nowFn:   time.Now,
	}
}

// Breaker exposes the underlying circuit breaker for status reporting.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// FetchRanked retrieves one page of observations. A cached page within its TTL
// is returned without touching the upstream; otherwise the call waits for the
// pacing token, passes the breaker, and issues the request.
func (c *Client) FetchRanked(ctx context.Context, page int) ([]Observation, error) {
	if page <= 0 {
		page = 1
	}

	if cached, ok := c.cachedObservations(page); ok {
		c.logger.Debug().Int("page", page).Msg("serving page from cache")
		return cached, nil
	}

	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for call slot: %w", err)
	}

	observations, err := c.fetchPage(ctx, page)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	c.storePage(page, observations)
	return observations, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]Observation, error) {
	query := url.Values{}
	currency := c.opts.VsCurrency
	if currency == "" {
		currency = "usd"
	}
	pageSize := c.opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	query.Set("vs_currency", currency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(pageSize))
	query.Set("page", strconv.Itoa(page))
	query.Set("price_change_percentage", "24h")

	endpoint := c.baseURL + marketsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "athwatcher/1.0")
	}
	if key := c.nextAPIKey(); key != "" {
		req.Header.Set("x-cg-pro-api-key", key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var rows []marketRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}

	observations := make([]Observation, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		obs, ok := row.toObservation()
		if !ok {
			skipped++
			continue
		}
		observations = append(observations, obs)
	}
	if skipped > 0 {
		c.logger.Warn().Int("page", page).Int("skipped", skipped).Msg("dropped malformed feed rows")
	}

	return observations, nil
}

// nextAPIKey rotates round-robin through the configured key pool.
func (c *Client) nextAPIKey() string {
	if len(c.opts.APIKeys) == 0 {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.opts.APIKeys[c.keyIdx%len(c.opts.APIKeys)]
	c.keyIdx++
	return key
}

func (c *Client) cachedObservations(page int) ([]Observation, bool) {
	if c.opts.CacheTTL <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[page]
	if !ok || c.nowFn().After(entry.expiresAt) {
		return nil, false
	}

	out := make([]Observation, len(entry.observations))
	copy(out, entry.observations)
	return out, true
}

func (c *Client) storePage(page int, observations []Observation) {
	if c.opts.CacheTTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]Observation, len(observations))
	copy(stored, observations)
	c.cache[page] = cachedPage{
		observations: stored,
		expiresAt:    c.nowFn().Add(c.opts.CacheTTL),
	}
}

// marketRow is the raw upstream shape. Numeric fields are pointers because the
// feed reports null for assets it has no fresh data for.
type marketRow struct {
	ID            string   `json:"id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	CurrentPrice  *float64 `json:"current_price"`
	MarketCap     *float64 `json:"market_cap"`
	MarketCapRank *int     `json:"market_cap_rank"`
	TotalVolume   *float64 `json:"total_volume"`
	ATH           *float64 `json:"ath"`
	ATHDate       string   `json:"ath_date"`
	Change24hPct  *float64 `json:"price_change_percentage_24h"`
}

func (r marketRow) toObservation() (Observation, bool) {
	if r.ID == "" || r.CurrentPrice == nil || *r.CurrentPrice <= 0 || r.ATH == nil || *r.ATH < 0 {
		return Observation{}, false
	}

	obs := Observation{
		ID:           r.ID,
		Symbol:       strings.ToUpper(r.Symbol),
		Name:         r.Name,
		CurrentPrice: decimal.NewFromFloat(*r.CurrentPrice),
		FeedATH:      decimal.NewFromFloat(*r.ATH),
	}

	if r.ATHDate != "" {
		if ts, err := time.Parse(time.RFC3339, r.ATHDate); err == nil {
			obs.ATHDate = ts.UTC()
		}
	}
	if r.MarketCap != nil {
		obs.MarketCap = decimal.NewFromFloat(*r.MarketCap)
	}
	if r.MarketCapRank != nil {
		obs.MarketCapRank = *r.MarketCapRank
	}
	if r.TotalVolume != nil {
		obs.TotalVolume = decimal.NewFromFloat(*r.TotalVolume)
	}
	if r.Change24hPct != nil {
		obs.Change24hPct = decimal.NewFromFloat(*r.Change24hPct)
	}

	return obs, true
}

type errorResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ RankedFetcher = (*Client)(nil)
