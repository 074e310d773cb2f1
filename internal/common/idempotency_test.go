package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-permata/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}, mr
}

func settleRequest(key, shopID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if shopID != "" {
		req = req.WithContext(common.WithShopID(req.Context(), shopID))
	}
	return req
}

func TestIdempotencyBlocksReplay(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, settleRequest("abc-123", "shop-1"))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, settleRequest("abc-123", "shop-1"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, calls)
}

func TestIdempotencyScopedPerShop(t *testing.T) {
	idem, _ := newIdem(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, settleRequest("abc-123", "shop-1"))
	require.Equal(t, http.StatusCreated, rr.Code)

	// the same client key from another shop is a distinct request
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, settleRequest("abc-123", "shop-2"))
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestIdempotencyPassThroughWithoutKey(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, settleRequest("", "shop-1"))
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	require.Equal(t, 2, calls)
}
