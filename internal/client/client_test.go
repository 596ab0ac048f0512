package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pawcare/internal/config"
	"pawcare/internal/lifecycle"
	"pawcare/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   map[string]any
}

func newBackend(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Header: r.Header.Clone()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func spec(t *testing.T, domain string) lifecycle.DomainSpec {
	t.Helper()
	s, ok := lifecycle.NewRegistry(lifecycle.DefaultSpecs()...).Get(domain)
	require.True(t, ok)
	return s
}

func TestFetchBooking(t *testing.T) {
	srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"_id": "p1", "status": "Confirmed", "scheduledDate": "2024-06-01"},
		})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL, AuthMode: AuthBearer, Token: "service"}, nil)

	res := c.FetchBooking(WithToken(context.Background(), "user-token"), spec(t, models.DomainPhysio), "p1")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "p1", res.Data.ID)
	assert.Equal(t, models.DomainPhysio, res.Data.Domain)
	assert.Equal(t, "Confirmed", res.Data.Status)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodGet, call.Method)
	assert.Equal(t, "/api/v1/get-single-order-physio", call.Path)
	assert.Equal(t, []string{"p1"}, call.Query["id"])
	assert.Equal(t, "Bearer user-token", call.Header.Get("Authorization"))
	assert.NotEmpty(t, call.Header.Get(HeaderRequestID))
}

func TestFetchBookingFailures(t *testing.T) {
	t.Run("ServerMessage", func(t *testing.T) {
		srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Not found"})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.FetchBooking(context.Background(), spec(t, models.DomainLab), "x")
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrorServer, res.Kind)
		assert.Equal(t, "Not found", res.Error)
	})

	t.Run("Non2xxWithoutMessage", func(t *testing.T) {
		srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.FetchBooking(context.Background(), spec(t, models.DomainLab), "x")
		assert.Equal(t, models.ErrorServer, res.Kind)
		assert.Equal(t, models.GenericErrorMessage, res.Error)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.FetchBooking(context.Background(), spec(t, models.DomainLab), "x")
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrorServer, res.Kind)
	})

	t.Run("Transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := New(config.BackendConfig{BaseURL: url}, nil)

		res := c.FetchBooking(context.Background(), spec(t, models.DomainLab), "x")
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrorTransport, res.Kind)
		assert.Equal(t, models.GenericErrorMessage, res.Error)
	})

	t.Run("EmptyID", func(t *testing.T) {
		c := New(config.BackendConfig{BaseURL: "http://127.0.0.1:1"}, nil)
		res := c.FetchBooking(context.Background(), spec(t, models.DomainLab), " ")
		assert.Equal(t, models.ErrorValidation, res.Kind)
	})
}

func TestQueryAuthAndPathID(t *testing.T) {
	srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "s 1", "status": "Pending"}})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL, AuthMode: AuthQuery, Token: "svc", TokenParam: "access_token"}, nil)

	res := c.FetchBooking(context.Background(), spec(t, models.DomainPetShop), "s 1")
	require.True(t, res.Success)

	call := (*calls)[0]
	assert.Equal(t, "/api/v1/petshop-my-bakery-get/s 1", call.Path)
	assert.Equal(t, []string{"svc"}, call.Query["access_token"])
	assert.Empty(t, call.Header.Get("Authorization"))
}

func TestSend(t *testing.T) {
	t.Run("CancelCarriesStatus", func(t *testing.T) {
		srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking cancelled"})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.Send(context.Background(), spec(t, models.DomainCake), lifecycle.CancelRequest("c1"))
		require.True(t, res.Success)
		assert.Equal(t, "Booking cancelled", res.Data.Message)

		require.Len(t, *calls, 1)
		call := (*calls)[0]
		assert.Equal(t, http.MethodPut, call.Method)
		assert.Equal(t, "/api/v1/chanage-booking-status", call.Path)
		assert.Equal(t, map[string]any{"id": "c1", "status": "Cancelled"}, call.Body)
	})

	t.Run("RescheduleQueryID", func(t *testing.T) {
		srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.Send(context.Background(), spec(t, models.DomainLab), lifecycle.RescheduleRequest("l1", "2024-06-01", "14:00"))
		require.True(t, res.Success)

		call := (*calls)[0]
		assert.Equal(t, http.MethodPut, call.Method)
		assert.Equal(t, []string{"l1"}, call.Query["id"])
		assert.Equal(t, map[string]any{
			"rescheduledDate": "2024-06-01",
			"rescheduledTime": "14:00",
			"status":          "Rescheduled",
		}, call.Body)
	})

	t.Run("ServerRefusal", func(t *testing.T) {
		srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Too late to cancel"})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.Send(context.Background(), spec(t, models.DomainPhysio), lifecycle.CancelRequest("p1"))
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrorServer, res.Kind)
		assert.Equal(t, "Too late to cancel", res.Error)
		assert.Len(t, *calls, 1)
	})

	t.Run("UnsupportedNeverCalls", func(t *testing.T) {
		srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
		c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

		res := c.Send(context.Background(), spec(t, models.DomainPetShop), lifecycle.ReviewRequest("s1", 5, ""))
		assert.False(t, res.Success)
		assert.Equal(t, models.ErrorValidation, res.Kind)
		assert.Empty(t, *calls)
	})
}

func TestFetchBookings(t *testing.T) {
	srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    []map[string]any{{"_id": "v1", "status": "Pending"}, {"_id": "v2", "status": "Completed"}},
		})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

	res := c.FetchBookings(context.Background(), spec(t, models.DomainVaccine))
	require.True(t, res.Success)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "v2", res.Data[1].ID)
	assert.Equal(t, models.DomainVaccine, res.Data[0].Domain)
	assert.Equal(t, "/api/v1/vaccine-orders", (*calls)[0].Path)

	noList := spec(t, models.DomainPetShop)
	noList.List = lifecycle.Endpoint{}
	res = c.FetchBookings(context.Background(), noList)
	assert.False(t, res.Success)
	assert.Len(t, *calls, 1)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var fetches atomic.Int32
	status := "Confirmed"
	srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fetches.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "p1", "status": status}})
			return
		}
		status = "Cancelled"
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL, Token: "svc"}, nil)
	c.UseRedisCache(rdb, time.Minute)
	physio := spec(t, models.DomainPhysio)
	ctx := context.Background()

	first := c.FetchBooking(ctx, physio, "p1")
	second := c.FetchBooking(ctx, physio, "p1")
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, int32(1), fetches.Load())
	assert.True(t, mr.Exists(cacheKey(models.DomainPhysio, "p1")))

	t.Run("OtherTokenMisses", func(t *testing.T) {
		c.FetchBooking(WithToken(ctx, "another-user"), physio, "p1")
		assert.Equal(t, int32(2), fetches.Load())
	})

	t.Run("MutationInvalidates", func(t *testing.T) {
		require.True(t, c.Send(ctx, physio, lifecycle.CancelRequest("p1")).Success)
		assert.False(t, mr.Exists(cacheKey(models.DomainPhysio, "p1")))

		res := c.FetchBooking(ctx, physio, "p1")
		assert.Equal(t, "Cancelled", res.Data.Status)
		assert.Equal(t, int32(3), fetches.Load())
	})

	t.Run("Expires", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		c.FetchBooking(ctx, physio, "p1")
		assert.Equal(t, int32(4), fetches.Load())
	})
}

// lockedBackend keeps one booking whose status mutations flip; the first GET
// can be held open until the test releases it.
type lockedBackend struct {
	mu      sync.Mutex
	status  string
	gets    int
	hold    bool
	started chan struct{}
	release chan struct{}
}

func (b *lockedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if r.Method != http.MethodGet {
		b.status = "Cancelled"
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	b.gets++
	status, hold := b.status, b.hold
	b.hold = false
	b.mu.Unlock()

	if hold {
		close(b.started)
		<-b.release
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "p1", "status": status}})
}

func (b *lockedBackend) fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

func TestCacheAfterConcurrentMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	backend := &lockedBackend{status: "Confirmed", hold: true, started: make(chan struct{}), release: make(chan struct{})}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := New(config.BackendConfig{BaseURL: srv.URL, Token: "svc"}, nil)
	c.UseRedisCache(rdb, time.Minute)
	physio := spec(t, models.DomainPhysio)
	ctx := context.Background()

	slow := make(chan models.Result[models.Booking], 1)
	go func() { slow <- c.FetchBooking(ctx, physio, "p1") }()

	<-backend.started
	require.True(t, c.Send(ctx, physio, lifecycle.CancelRequest("p1")).Success)
	close(backend.release)

	old := <-slow
	require.True(t, old.Success)
	assert.Equal(t, "Confirmed", old.Data.Status)
	assert.False(t, mr.Exists(cacheKey(models.DomainPhysio, "p1")), "pre-cancel read must not be cached")

	res := c.FetchBooking(ctx, physio, "p1")
	require.True(t, res.Success)
	assert.Equal(t, "Cancelled", res.Data.Status)
	assert.Equal(t, 2, backend.fetches())

	cached := c.FetchBooking(ctx, physio, "p1")
	assert.Equal(t, "Cancelled", cached.Data.Status)
	assert.Equal(t, 2, backend.fetches())
}

func TestFreshReadSkipsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	backend := &lockedBackend{status: "Confirmed"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := New(config.BackendConfig{BaseURL: srv.URL, Token: "svc"}, nil)
	c.UseRedisCache(rdb, time.Minute)
	physio := spec(t, models.DomainPhysio)
	ctx := context.Background()

	require.True(t, c.FetchBooking(ctx, physio, "p1").Success)

	// changed on the backend by someone else
	backend.mu.Lock()
	backend.status = "Completed"
	backend.mu.Unlock()

	stale := c.FetchBooking(ctx, physio, "p1")
	assert.Equal(t, "Confirmed", stale.Data.Status)
	assert.Equal(t, 1, backend.fetches())

	fresh := c.FetchBooking(WithFreshRead(ctx), physio, "p1")
	assert.Equal(t, "Completed", fresh.Data.Status)
	assert.Equal(t, 2, backend.fetches())

	again := c.FetchBooking(ctx, physio, "p1")
	assert.Equal(t, "Completed", again.Data.Status)
	assert.Equal(t, 2, backend.fetches())
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "l1"}})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL, RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1}}, nil)
	lab := spec(t, models.DomainLab)

	require.True(t, c.FetchBooking(context.Background(), lab, "l1").Success)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := c.FetchBooking(ctx, lab, "l1")
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrorTransport, res.Kind)
	assert.Len(t, *calls, 1)
}

func TestRequestIDPropagation(t *testing.T) {
	srv, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "l1"}})
	})
	c := New(config.BackendConfig{BaseURL: srv.URL}, nil)

	c.FetchBooking(WithRequestID(context.Background(), "req-42"), spec(t, models.DomainLab), "l1")
	assert.Equal(t, "req-42", (*calls)[0].Header.Get(HeaderRequestID))
}
