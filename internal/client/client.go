package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pawcare/internal/config"
	"pawcare/internal/lifecycle"
	"pawcare/internal/metrics"
	"pawcare/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	AuthBearer = "bearer"
	AuthQuery  = "query"

	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 4 << 20
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	requestIDKey
	freshReadKey
)

// generation keys outlive every cached entry they guard
const cacheGenTTL = 24 * time.Hour

var errCacheRaced = errors.New("booking changed while it was fetched")

// WithToken attaches the end user's backend token to ctx. It takes
// precedence over the configured service token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// WithRequestID makes outgoing calls reuse an inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithFreshRead makes FetchBooking skip the cached copy and go to the
// backend. The fresh result still refills the cache.
func WithFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey, true)
}

func freshRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey).(bool)
	return fresh
}

func tokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Client calls the remote booking service of every domain.
type Client struct {
	baseURL    string
	authMode   string
	token      string
	tokenParam string
	httpClient *http.Client
	logger     *zerolog.Logger

	limiter *rate.Limiter

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = models.BackendTimeout * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authMode:   strings.ToLower(cfg.AuthMode),
		token:      cfg.Token,
		tokenParam: cfg.TokenParam,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if c.tokenParam == "" {
		c.tokenParam = "token"
	}
	if cfg.RateLimit.RPS > 0 {
		c.UseRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return c
}

// UseRedisCache configures optional Redis caching for single-booking reads.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit caps outgoing calls across all domains.
func (c *Client) UseRateLimit(rps float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// FetchBooking reads one booking. It never returns an error; failures are
// reported in the Result.
func (c *Client) FetchBooking(ctx context.Context, spec lifecycle.DomainSpec, id string) models.Result[models.Booking] {
	if strings.TrimSpace(id) == "" {
		return models.Fail[models.Booking](models.ErrorValidation, "Booking id is required")
	}
	endpoint, err := spec.Fetch.URL(c.baseURL, id)
	if err != nil {
		c.logger.Error().Err(err).Str("domain", spec.Name).Msg("Failed to build fetch url")
		return models.Fail[models.Booking](models.ErrorTransport, "")
	}

	token := c.resolveToken(ctx)
	var cached models.Booking
	if !freshRead(ctx) && c.readCache(ctx, spec.Name, id, token, &cached) {
		return models.OK(cached)
	}
	gen, genOK := c.cacheGen(ctx, spec.Name, id)

	res := roundTrip[models.Booking](ctx, c, spec.Name, "fetch", methodOr(spec.Fetch.Method, http.MethodGet), endpoint, nil)
	if !res.Success {
		return models.Fail[models.Booking](res.Kind, res.Error)
	}
	b := res.Data.Data
	if b.ID == "" {
		b.ID = id
	}
	if b.Domain == "" {
		b.Domain = spec.Name
	}
	if genOK {
		c.writeCache(ctx, spec.Name, id, token, gen, b)
	}
	return models.OK(b)
}

// FetchBookings reads the caller's bookings of one domain.
func (c *Client) FetchBookings(ctx context.Context, spec lifecycle.DomainSpec) models.Result[[]models.Booking] {
	if spec.List.Path == "" {
		return models.Fail[[]models.Booking](models.ErrorValidation, fmt.Sprintf("Listing is not available for %s", spec.Name))
	}
	endpoint, err := spec.List.URL(c.baseURL, "")
	if err != nil {
		c.logger.Error().Err(err).Str("domain", spec.Name).Msg("Failed to build list url")
		return models.Fail[[]models.Booking](models.ErrorTransport, "")
	}

	res := roundTrip[[]models.Booking](ctx, c, spec.Name, "list", methodOr(spec.List.Method, http.MethodGet), endpoint, nil)
	if !res.Success {
		return models.Fail[[]models.Booking](res.Kind, res.Error)
	}
	bookings := res.Data.Data
	if bookings == nil {
		bookings = []models.Booking{}
	}
	for i := range bookings {
		if bookings[i].Domain == "" {
			bookings[i].Domain = spec.Name
		}
	}
	return models.OK(bookings)
}

// Send issues exactly one mutating call. A successful call drops the cached
// copy of the booking.
func (c *Client) Send(ctx context.Context, spec lifecycle.DomainSpec, req lifecycle.ActionRequest) models.Result[models.Ack] {
	ep, err := spec.Endpoint(req.Kind)
	if err != nil {
		return models.Fail[models.Ack](models.ErrorValidation, lifecycle.UserMessage(err))
	}
	body, err := lifecycle.RequestBody(spec, req)
	if err != nil {
		return models.Fail[models.Ack](models.ErrorValidation, lifecycle.UserMessage(err))
	}
	endpoint, err := ep.URL(c.baseURL, req.BookingID)
	if err != nil {
		c.logger.Error().Err(err).Str("domain", spec.Name).Str("action", string(req.Kind)).Msg("Failed to build action url")
		return models.Fail[models.Ack](models.ErrorTransport, "")
	}

	res := roundTrip[json.RawMessage](ctx, c, spec.Name, string(req.Kind), methodOr(ep.Method, http.MethodPut), endpoint, body)
	if !res.Success {
		return models.Fail[models.Ack](res.Kind, res.Error)
	}

	c.invalidate(ctx, spec.Name, req.BookingID)
	return models.OK(models.Ack{Message: res.Data.Message, Data: res.Data.Data})
}

// roundTrip performs one call and decodes the {success, data, message}
// envelope. Only envelopes with success=true and a 2xx status succeed.
func roundTrip[T any](ctx context.Context, c *Client, domain, op, method, endpoint string, body any) models.Result[models.Envelope[T]] {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.ObserveBackend(domain, op, outcome, time.Since(start))
	}()

	requestID := requestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := c.logger.With().
		Str("request_id", requestID).
		Str("domain", domain).
		Str("operation", op).
		Logger()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			outcome = "transport_error"
			log.Warn().Err(err).Msg("Backend rate limiter aborted")
			return models.Fail[models.Envelope[T]](models.ErrorTransport, "")
		}
	}

	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		outcome = "transport_error"
		log.Error().Err(err).Msg("Failed to build backend request")
		return models.Fail[models.Envelope[T]](models.ErrorTransport, "")
	}
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "transport_error"
		log.Warn().Err(err).Msg("Backend request failed")
		return models.Fail[models.Envelope[T]](models.ErrorTransport, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		outcome = "transport_error"
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("Failed to read backend response")
		return models.Fail[models.Envelope[T]](models.ErrorTransport, "")
	}

	var env models.Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		outcome = "server_error"
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("Malformed backend response")
		return models.Fail[models.Envelope[T]](models.ErrorServer, "")
	}

	if resp.StatusCode >= 300 || !env.Success {
		outcome = "server_error"
		log.Info().Int("status", resp.StatusCode).Str("message", env.Message).Msg("Backend reported failure")
		return models.Fail[models.Envelope[T]](models.ErrorServer, env.Message)
	}

	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Backend call succeeded")
	return models.OK(env)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	token := c.resolveToken(ctx)
	if token != "" && c.authMode == AuthQuery {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set(c.tokenParam, token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" && c.authMode != AuthQuery {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) resolveToken(ctx context.Context) string {
	if tok := tokenFrom(ctx); tok != "" {
		return tok
	}
	return c.token
}

func methodOr(method, def string) string {
	if method == "" {
		return def
	}
	return strings.ToUpper(method)
}

// Cached bookings live in one hash per booking, one field per token, so a
// mutation can drop every copy at once.
func cacheKey(domain, id string) string {
	return fmt.Sprintf("booking:%s:%s", domain, id)
}

// cacheGenKey counts mutations of one booking. A fetch may only cache what it
// read if no mutation happened since it started.
func cacheGenKey(domain, id string) string {
	return fmt.Sprintf("booking:gen:%s:%s", domain, id)
}

func tokenField(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func (c *Client) readCache(ctx context.Context, domain, id, token string, out *models.Booking) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.HGet(ctx, cacheKey(domain, id), tokenField(token)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("domain", domain).Msg("Booking cache read failed")
		}
		metrics.IncCache(false)
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCache(false)
		return false
	}
	metrics.IncCache(true)
	return true
}

func (c *Client) cacheGen(ctx context.Context, domain, id string) (uint64, bool) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, cacheGenKey(domain, id)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("domain", domain).Msg("Booking cache generation read failed")
		return 0, false
	}
	return gen, true
}

// writeCache stores b only while the booking's generation is still gen. A
// mutation that lands between the read and the write makes it a no-op.
func (c *Client) writeCache(ctx context.Context, domain, id, token string, gen uint64, b models.Booking) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	key, genKey := cacheKey(domain, id), cacheGenKey(domain, id)

	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errCacheRaced
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, tokenField(token), data)
			pipe.Expire(ctx, key, c.cacheTTL)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errCacheRaced), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Str("domain", domain).Str("booking_id", id).Msg("Booking changed during fetch, not cached")
	default:
		c.logger.Warn().Err(err).Str("domain", domain).Msg("Booking cache write failed")
	}
}

func (c *Client) invalidate(ctx context.Context, domain, id string) {
	if c.redis == nil {
		return
	}
	genKey := cacheGenKey(domain, id)
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, cacheGenTTL)
	pipe.Del(ctx, cacheKey(domain, id))
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Str("domain", domain).Str("booking_id", id).Msg("Booking cache invalidation failed")
	}
}
