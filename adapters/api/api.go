// Package api exposes the order-tracking service over HTTP: placing orders
// and reading the aggregate. Everything downstream of the POST happens
// through events.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/order"
)

type CreateOrderRequest struct {
	OrderID         string        `json:"orderId"`
	CustomerAddress string        `json:"customerAddress"`
	Items           []events.Item `json:"items"`
	TotalPrice      float64       `json:"totalPrice"`
	Currency        string        `json:"currency"`
}

type CreateOrderResponse struct {
	OrderID       string `json:"orderId"`
	CorrelationID string `json:"correlationId"`
}

type OrderResponse struct {
	OrderID          string    `json:"orderId"`
	OrderStatus      string    `json:"orderStatus"`
	PaymentStatus    string    `json:"paymentStatus"`
	RestaurantStatus string    `json:"restaurantStatus"`
	DeliveryStatus   string    `json:"deliveryStatus"`
	Comment          string    `json:"comment,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

type Server struct {
	log     *slog.Logger
	tracker *order.Tracker
	store   order.Store
}

type Config struct {
	Log     *slog.Logger
	Tracker *order.Tracker
	Store   order.Store
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("api: tracker is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("api: store is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:     log.With(slog.String("component", "api")),
		tracker: cfg.Tracker,
		store:   cfg.Store,
	}, nil
}

// Handler returns the route mux. Mount it on an http.Server owned by the
// caller.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	return mux
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		req.OrderID = fmt.Sprintf("order-%s", gonanoid.Must(12))
	}

	// The correlation id stitches logs and traces across every service the
	// order touches. Callers may supply their own.
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = gonanoid.Must(21)
	}

	err := s.tracker.CreateOrder(r.Context(), correlationID, events.OrderCreatedPayload{
		OrderID:         req.OrderID,
		CustomerAddress: req.CustomerAddress,
		Items:           req.Items,
		TotalPrice:      req.TotalPrice,
		Currency:        req.Currency,
	})
	if err != nil {
		s.log.ErrorContext(r.Context(), "create order failed",
			slog.String("order_id", req.OrderID),
			slog.Any("error", err))
		http.Error(w, "create order failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(CreateOrderResponse{
		OrderID:       req.OrderID,
		CorrelationID: correlationID,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	o, err := s.store.FindByOrderID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		s.log.ErrorContext(r.Context(), "load order failed",
			slog.String("order_id", orderID),
			slog.Any("error", err))
		http.Error(w, "load order failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OrderResponse{
		OrderID:          o.OrderID,
		OrderStatus:      o.OrderStatus,
		PaymentStatus:    o.PaymentStatus,
		RestaurantStatus: o.RestaurantStatus,
		DeliveryStatus:   o.DeliveryStatus,
		Comment:          o.Comment,
		CreatedAt:        o.CreatedAt,
		LastUpdated:      o.LastUpdated,
	})
}
