package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-permata/internal/common"
)

func authedRequest(t *testing.T, method, target string, body any, shopID, userID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := common.WithUserID(req.Context(), userID.String())
	ctx = common.WithShopID(ctx, shopID.String())
	return req.WithContext(ctx)
}

func TestSettleHandlerCreatesSale(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	req := authedRequest(t, http.MethodPost, "/api/v1/sales", goldRingInput(f.itemID), uuid.New(), uuid.New())
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var envelope struct {
		Data Sale `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.Equal(t, "PJ-000042", envelope.Data.InvoiceNumber)
	require.True(t, envelope.Data.FinalAmount.Equal(dec("57482")))
}

func TestSettleHandlerRequiresAuth(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(goldRingInput(f.itemID)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", &buf)
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Empty(t, f.sales.inserted)
}

func TestSettleHandlerRequiresShopScope(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(goldRingInput(f.itemID)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", &buf)
	req = req.WithContext(common.WithUserID(req.Context(), uuid.New().String()))
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSettleHandlerValidation(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	in := goldRingInput(f.itemID)
	in.Lines[0].ItemID = "not-a-uuid"
	req := authedRequest(t, http.MethodPost, "/api/v1/sales", in, uuid.New(), uuid.New())
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_FAILED")
	require.Empty(t, f.sales.inserted)
}

func TestSettleHandlerInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.stock.levels[f.itemID] = 0
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	req := authedRequest(t, http.MethodPost, "/api/v1/sales", goldRingInput(f.itemID), uuid.New(), uuid.New())
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "INSUFFICIENT_STOCK", body.Error.Code)
	require.Equal(t, f.itemID.String(), body.Error.Details["itemId"])
}

func TestSettleHandlerDiscountExceedsBase(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc, Validate: validator.New()}

	in := goldRingInput(f.itemID)
	in.OrderDiscount = &DiscountInput{Kind: "AMOUNT", Value: dec("1000000")}
	req := authedRequest(t, http.MethodPost, "/api/v1/sales", in, uuid.New(), uuid.New())
	rr := httptest.NewRecorder()
	h.Settle(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "DISCOUNT_EXCEEDS_BASE")
}

func TestGetHandler(t *testing.T) {
	f := newFixture(t)
	shopID, userID := uuid.New(), uuid.New()
	sale, err := f.svc.Settle(context.Background(), shopID, userID, goldRingInput(f.itemID))
	require.NoError(t, err)

	h := &Handler{Svc: f.svc}
	router := chi.NewRouter()
	router.Get("/api/v1/sales/{saleId}", h.Get)

	req := authedRequest(t, http.MethodGet, "/api/v1/sales/"+sale.ID.String(), nil, shopID, userID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = authedRequest(t, http.MethodGet, "/api/v1/sales/"+uuid.New().String(), nil, shopID, userID)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "SALE_NOT_FOUND")
}

func TestListHandler(t *testing.T) {
	f := newFixture(t)
	shopID, userID := uuid.New(), uuid.New()
	_, err := f.svc.Settle(context.Background(), shopID, userID, goldRingInput(f.itemID))
	require.NoError(t, err)

	h := &Handler{Svc: f.svc}
	req := authedRequest(t, http.MethodGet, "/api/v1/sales?limit=10", nil, shopID, userID)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var envelope struct {
		Data []Sale `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
}
