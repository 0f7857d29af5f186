package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

// healthHandler reports service liveness (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// listOrdersHandler returns all orders, newest first (GET /orders).
func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders()
	if err != nil {
		slog.Error("Server.listOrdersHandler: failed to list orders", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list orders"))
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(orders))
}

// getOrderHandler returns one order by ID (GET /orders/{id}).
func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := s.store.GetOrder(id)
	if err != nil {
		slog.Error("Server.getOrderHandler: failed to get order", "error", err, "order_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get order"))
		return
	}
	if order == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Order not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(order))
}

// updateOrderStatusRequest is the body for POST /orders/{id}/status.
type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// updateOrderStatusHandler advances an order's status and appends to its
// status history (POST /orders/{id}/status).
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	status := models.OrderStatus(req.Status)
	if !models.IsValidOrderStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid order status"))
		return
	}

	order, err := s.store.GetOrder(id)
	if err != nil {
		slog.Error("Server.updateOrderStatusHandler: failed to get order", "error", err, "order_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get order"))
		return
	}
	if order == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Order not found"))
		return
	}

	order.Status = status
	if req.Notes != "" {
		order.Notes = req.Notes
	}
	order.StatusHistory = append(order.StatusHistory, models.StatusChange{Status: status, At: time.Now()})

	if err := s.store.UpdateOrder(*order); err != nil {
		slog.Error("Server.updateOrderStatusHandler: failed to update order", "error", err, "order_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update order"))
		return
	}

	slog.Info("Order status updated", "order_id", id, "status", status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Order status updated", order))
}

// getConversationHandler returns the transcript for an identity
// (GET /conversations?identity=...).
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing identity parameter"))
		return
	}
	entries, err := s.store.GetConversation(identity)
	if err != nil {
		slog.Error("Server.getConversationHandler: failed to get conversation", "error", err, "identity", identity)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get conversation"))
		return
	}
	if entries == nil {
		entries = []models.ConversationEntry{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

// getMilestonesHandler returns the milestones for an identity
// (GET /milestones?identity=...).
func (s *Server) getMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing identity parameter"))
		return
	}
	milestones, err := s.store.GetMilestones(identity)
	if err != nil {
		slog.Error("Server.getMilestonesHandler: failed to get milestones", "error", err, "identity", identity)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get milestones"))
		return
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(milestones))
}

// listNotificationsHandler returns all notifications, newest first
// (GET /notifications).
func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.store.ListNotifications()
	if err != nil {
		slog.Error("Server.listNotificationsHandler: failed to list notifications", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list notifications"))
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(notifications))
}

// markNotificationReadHandler flags a notification as read
// (POST /notifications/{id}/read).
func (s *Server) markNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.MarkNotificationRead(id); err != nil {
		slog.Error("Server.markNotificationReadHandler: failed to mark notification read", "error", err, "notification_id", id)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Notification not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Notification marked as read", nil))
}
