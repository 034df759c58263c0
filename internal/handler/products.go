package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
	"github.com/mmeshcher/sales-system/internal/service"
)

type productRequest struct {
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Barcode        string          `json:"barcode"`
	Section        string          `json:"section"`
	Stock          int             `json:"stock"`
	ExpirationDate dateOnly        `json:"expiration_date"`
	Image          *string         `json:"image"`
}

type productResponse struct {
	ID             int64    `json:"id"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	Barcode        string   `json:"barcode"`
	Section        string   `json:"section"`
	Stock          int      `json:"stock"`
	ExpirationDate dateOnly `json:"expiration_date"`
	Image          *string  `json:"image"`
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Description:    p.Description,
		Price:          float64(p.PriceCents) / 100,
		Barcode:        p.Barcode,
		Section:        p.Section,
		Stock:          p.Stock,
		ExpirationDate: dateOnly{p.ExpiresAt},
		Image:          p.Image,
	}
}

func (req *productRequest) toInput(w http.ResponseWriter) (service.ProductInput, bool) {
	if req.Description == "" || req.Barcode == "" || req.Section == "" {
		http.Error(w, "description, barcode and section are required", http.StatusBadRequest)
		return service.ProductInput{}, false
	}

	return service.ProductInput{
		Description: req.Description,
		Price:       req.Price,
		Barcode:     req.Barcode,
		Section:     req.Section,
		Stock:       req.Stock,
		ExpiresAt:   req.ExpirationDate.Time,
		Image:       req.Image,
	}, true
}

// CreateProduct добавляет новый товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, ok := req.toInput(w)
	if !ok {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.handleError(w, err, "create product error")
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	product, err := h.service.GetProductByID(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "get product error")
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// ListProducts возвращает список товаров с фильтрами и пагинацией.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePagination(r)
	q := r.URL.Query()

	products, err := h.service.ListProducts(r.Context(), repository.ProductFilter{
		Description: q.Get("description"),
		Section:     q.Get("section"),
		Skip:        skip,
		Limit:       limit,
	})
	if err != nil {
		h.handleError(w, err, "list products error")
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateProduct обновляет данные товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, ok := req.toInput(w)
	if !ok {
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.handleError(w, err, "update product error")
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// DeleteProduct удаляет товар, не входящий в заказы.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.handleError(w, err, "delete product error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
