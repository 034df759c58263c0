package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
)

type orderItemPayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type orderRequest struct {
	ClientID  int64              `json:"client_id"`
	CreatedAt dateOnly           `json:"created_at"`
	Products  []orderItemPayload `json:"products"`
}

type orderResponse struct {
	ID        int64              `json:"id"`
	ClientID  int64              `json:"client_id"`
	Status    string             `json:"status"`
	CreatedAt dateOnly           `json:"created_at"`
	Products  []orderItemPayload `json:"products"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (req *orderRequest) items() []model.OrderItem {
	items := make([]model.OrderItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, model.OrderItem{ProductID: p.ProductID, Quantity: p.Quantity})
	}
	return items
}

func toOrderResponse(o *model.Order) orderResponse {
	products := make([]orderItemPayload, 0, len(o.Items))
	for _, item := range o.Items {
		products = append(products, orderItemPayload{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return orderResponse{
		ID:        o.ID,
		ClientID:  o.ClientID,
		Status:    string(o.Status),
		CreatedAt: dateOnly{o.CreatedAt},
		Products:  products,
	}
}

// CreateOrder создаёт новый заказ для клиента.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	createdAt := req.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	order, err := h.service.CreateOrder(r.Context(), req.ClientID, createdAt, req.items())
	if err != nil {
		h.handleError(w, err, "create order error")
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrderByID(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "get order error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListOrders возвращает заказы по фильтрам: клиент, статус, период, пагинация.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePagination(r)
	q := r.URL.Query()

	filter := repository.OrderFilter{Skip: skip, Limit: limit}

	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid client_id", http.StatusBadRequest)
			return
		}
		filter.ClientID = &id
	}
	if v := q.Get("status"); v != "" {
		status := model.OrderStatus(v)
		filter.Status = &status
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid start_date", http.StatusBadRequest)
			return
		}
		filter.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		filter.EndDate = &t
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.handleError(w, err, "list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateOrder заменяет клиента и позиции существующего заказа.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateOrder(r.Context(), id, req.ClientID, req.items())
	if err != nil {
		h.handleError(w, err, "update order error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), id, model.OrderStatus(req.Status)); err != nil {
		h.handleError(w, err, "update order status error")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Order status updated successfully."})
}

// DeleteOrder удаляет заказ. Остатки товаров не восстанавливаются.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.handleError(w, err, "delete order error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
