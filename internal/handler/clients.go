package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
	"github.com/mmeshcher/sales-system/internal/validation"
)

type clientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	CPF     string `json:"cpf"`
	Address string `json:"address"`
}

type clientResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	CPF     string `json:"cpf"`
	Address string `json:"address"`
}

func toClientResponse(c *model.Client) clientResponse {
	return clientResponse{
		ID:      c.ID,
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		CPF:     c.CPF,
		Address: c.Address,
	}
}

func (req *clientRequest) validate(w http.ResponseWriter) (*model.Client, bool) {
	if req.Name == "" || req.Email == "" {
		http.Error(w, "name and email are required", http.StatusBadRequest)
		return nil, false
	}
	if !validation.IsValidCPF(req.CPF) {
		http.Error(w, "invalid cpf", http.StatusBadRequest)
		return nil, false
	}
	if req.Phone != "" && !validation.IsValidPhone(req.Phone) {
		http.Error(w, "invalid phone", http.StatusBadRequest)
		return nil, false
	}

	return &model.Client{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   validation.NormalizePhone(req.Phone),
		CPF:     req.CPF,
		Address: req.Address,
	}, true
}

// CreateClient регистрирует нового клиента.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	client, ok := req.validate(w)
	if !ok {
		return
	}

	id, err := h.service.CreateClient(r.Context(), client)
	if err != nil {
		h.handleError(w, err, "create client error")
		return
	}
	client.ID = id

	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

// GetClient возвращает клиента по идентификатору.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	client, err := h.service.GetClientByID(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "get client error")
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// ListClients возвращает список клиентов с фильтрами и пагинацией.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePagination(r)
	q := r.URL.Query()

	clients, err := h.service.ListClients(r.Context(), repository.ClientFilter{
		Name:  q.Get("name"),
		Email: q.Get("email"),
		CPF:   q.Get("cpf"),
		Skip:  skip,
		Limit: limit,
	})
	if err != nil {
		h.handleError(w, err, "list clients error")
		return
	}

	resp := make([]clientResponse, 0, len(clients))
	for i := range clients {
		resp = append(resp, toClientResponse(&clients[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateClient обновляет данные клиента.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	client, ok := req.validate(w)
	if !ok {
		return
	}
	client.ID = id

	if err := h.service.UpdateClient(r.Context(), client); err != nil {
		h.handleError(w, err, "update client error")
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// DeleteClient удаляет клиента без заказов.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteClient(r.Context(), id); err != nil {
		h.handleError(w, err, "delete client error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
