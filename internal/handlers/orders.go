package handlers

import (
	"net/http"

	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
)

// OrderHandler представляет обработчик заказов
type OrderHandler struct {
	orders OrderService
	log    *logger.Logger
}

// NewOrderHandler создает новый обработчик заказов
func NewOrderHandler(orders OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// CreateOrder оформляет заказ. Уведомления уходят в фоне и не влияют на ответ.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create order")
		return
	}
	writeSuccess(w, http.StatusCreated, "Order placed successfully", order)
}

// GetOrders возвращает заказы с фильтром по статусу
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := models.OrderFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.OrderStatus(raw)
		filter.Status = &status
	}

	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get orders")
		return
	}
	writeList(w, orders, len(orders))
}

// GetOrder получает заказ по ID
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}
	writeSuccess(w, http.StatusOK, "", order)
}

// CountPending возвращает число заказов в ожидании
func (h *OrderHandler) CountPending(w http.ResponseWriter, r *http.Request) {
	count, err := h.orders.CountPendingOrders(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to count orders")
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]int64{"count": count})
}

// UpdateOrder меняет статус, оплату, заметки или трек-номер
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req models.UpdateOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.UpdateOrder(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update order")
		return
	}
	writeSuccess(w, http.StatusOK, "Order updated successfully", order)
}

// DeleteOrder удаляет заказ
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete order")
		return
	}
	writeSuccess(w, http.StatusOK, "Order deleted successfully", nil)
}

// TrackOrder находит заказ по номеру и телефону покупателя
func (h *OrderHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	var req models.TrackOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.TrackOrder(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to track order")
		return
	}
	writeSuccess(w, http.StatusOK, "", order)
}
