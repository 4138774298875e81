package handlers

import (
	"net/http"

	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
)

// CouponHandler обслуживает ручки купонов
type CouponHandler struct {
	coupons CouponService
	log     *logger.Logger
}

// NewCouponHandler создает обработчик купонов
func NewCouponHandler(coupons CouponService, log *logger.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, log: log}
}

// ListActive возвращает купоны, действующие прямо сейчас
func (h *CouponHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListActiveCoupons(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupons")
		return
	}
	writeList(w, coupons, len(coupons))
}

// ListAll возвращает все купоны для администратора
func (h *CouponHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	coupons, err := h.coupons.ListCoupons(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupons")
		return
	}
	writeList(w, coupons, len(coupons))
}

// Get возвращает купон с журналом использований
func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	coupon, err := h.coupons.GetCoupon(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupon")
		return
	}
	writeSuccess(w, http.StatusOK, "", coupon)
}

// Create создает купон
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	coupon, err := h.coupons.CreateCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create coupon")
		return
	}
	writeSuccess(w, http.StatusCreated, "Coupon created successfully", coupon)
}

// Update частично обновляет купон
func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	var req models.UpdateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	coupon, err := h.coupons.UpdateCoupon(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update coupon")
		return
	}
	writeSuccess(w, http.StatusOK, "Coupon updated successfully", coupon)
}

// Delete удаляет купон
func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	if err := h.coupons.DeleteCoupon(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete coupon")
		return
	}
	writeSuccess(w, http.StatusOK, "Coupon deleted successfully", nil)
}

// Validate считает скидку для корзины, ничего не записывая
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.coupons.ValidateCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to validate coupon")
		return
	}
	writeSuccess(w, http.StatusOK, "Coupon applied successfully", result)
}

// Redeem погашает купон при оформлении заказа
func (h *CouponHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req models.RedeemCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.coupons.RedeemCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to redeem coupon")
		return
	}
	writeSuccess(w, http.StatusOK, "Coupon redeemed successfully", result)
}
