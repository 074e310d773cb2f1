package settlement

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-permata/internal/catalog"
	"github.com/noah-isme/backend-permata/internal/common"
	"github.com/noah-isme/backend-permata/internal/customer"
	"github.com/noah-isme/backend-permata/internal/db"
	"github.com/noah-isme/backend-permata/internal/discount"
	"github.com/noah-isme/backend-permata/internal/pricing"
	"github.com/noah-isme/backend-permata/internal/shop"
)

// Handler exposes the settlement HTTP surface.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Settle handles POST /sales.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	shopID, userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request failed validation", validationDetails(err))
			return
		}
	}
	sale, err := h.Svc.Settle(r.Context(), shopID, userID, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sale})
}

// Get handles GET /sales/{saleId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	saleID, err := uuid.Parse(chi.URLParam(r, "saleId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sale id", nil)
		return
	}
	sale, err := h.Svc.GetSale(r.Context(), shopID, saleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sale})
}

// List handles GET /sales.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	shopID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	limit := common.QueryInt32(r, "limit", 20)
	offset := common.QueryInt32(r, "offset", 0)
	sales, err := h.Svc.ListSales(r.Context(), shopID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sales})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (shopID, userID uuid.UUID, ok bool) {
	rawUser, found := common.UserID(r.Context())
	if !found || rawUser == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, uuid.Nil, false
	}
	rawShop, found := common.ShopID(r.Context())
	if !found || rawShop == "" {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "no shop scope on session", nil)
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session subject", nil)
		return uuid.Nil, uuid.Nil, false
	}
	shopID, err = uuid.Parse(rawShop)
	if err != nil {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "invalid shop scope", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return shopID, userID, true
}

// writeDomainError translates domain error kinds into the canonical error
// payload without hiding the originating cause.
func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *catalog.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]any{
			"itemId":    stockErr.ItemID.String(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.Is(err, discount.ErrDiscountExceedsBase):
		common.JSONError(w, http.StatusUnprocessableEntity, "DISCOUNT_EXCEEDS_BASE", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidAllocation), errors.Is(err, discount.ErrInvalidDiscount):
		common.JSONError(w, http.StatusBadRequest, "INVALID_ALLOCATION", err.Error(), nil)
	case errors.Is(err, catalog.ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, customer.ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrSaleNotFound):
		common.JSONError(w, http.StatusNotFound, "SALE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, shop.ErrSequenceUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "SEQUENCE_UNAVAILABLE", err.Error(), nil)
	case db.IsSerializationFailure(err):
		common.JSONError(w, http.StatusServiceUnavailable, "CONFLICT_RETRYABLE", "settlement conflicted with a concurrent sale, retry", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

func validationDetails(err error) any {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return nil
	}
	fields := make([]map[string]string, 0, len(invalid))
	for _, fe := range invalid {
		fields = append(fields, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
		})
	}
	return map[string]any{"fields": fields}
}
