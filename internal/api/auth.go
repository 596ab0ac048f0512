package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"pawcare/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permReadBookings      = "read:bookings"
	permWriteBookings     = "write:bookings"
	clientKeyUnknown      = "unknown"
)

var (
	errMissingHeaders   = errors.New("missing api key headers")
	errInvalidAPIKey    = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

type clientCtxKey struct{}

// HTTPAuth provides API-key auth and per-key rate limiting.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientCtxKey{}, client.Name))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingHeaders
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}

	if err := checkPermissions(client, r); err != nil {
		return config.APIClientKey{}, err
	}
	return client, nil
}

func checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	// If permissions list is empty, treat as allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// requiredPermission: reads need read:bookings, anything that may reach a
// mutating backend call needs write:bookings.
func requiredPermission(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return permReadBookings
	default:
		return permWriteBookings
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (a *HTTPAuth) apiKeyHeader() string {
	if h := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey); h != "" {
		return h
	}
	return apiKeyHeaderDefault
}

func (a *HTTPAuth) extraHeader() string {
	if h := strings.TrimSpace(a.cfg.Auth.HeaderExtra); h != "" {
		return h
	}
	return apiExtraHeaderDefault
}

func clientName(ctx context.Context) string {
	name, _ := ctx.Value(clientCtxKey{}).(string)
	return name
}
