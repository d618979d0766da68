package handler

import (
	"net/http"

	historyservice "qrparking/internal/history/service"
	"qrparking/internal/lifecycle"
	"qrparking/internal/slots/service"
	httputil "qrparking/pkg/http"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// AdminHandler serves the administrator console. Routes are mounted under
// /api/v1/admin/ behind middleware.RequireAdmin.
type AdminHandler struct {
	service service.SlotService
	history historyservice.HistoryService
	log     *logger.Logger
}

func NewAdminHandler(service service.SlotService, history historyservice.HistoryService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		history: history,
		log:     log,
	}
}

type decisionResponse struct {
	Message string `json:"message"`
	*service.DecisionResult
}

type resetResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, h.log, "Stats", err)
		return
	}
	writeSuccess(w, h.log, "Stats", stats)
}

func (h *AdminHandler) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	slots, err := h.service.ListAll(r.Context())
	if err != nil {
		writeError(w, h.log, "ListSlots", err)
		return
	}
	writeSuccess(w, h.log, "ListSlots", slots)
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := caller(w, r, h.log, "SetStatus")
	if !ok {
		return
	}

	var update model.SlotStatusUpdate
	if err := httputil.DecodeJSON(r, &update); err != nil {
		writeError(w, h.log, "SetStatus", err)
		return
	}

	slot, err := h.service.SetStatus(r.Context(), id.UserID, ps.ByName("slotId"), &update)
	if err != nil {
		writeError(w, h.log, "SetStatus", err)
		return
	}
	writeSuccess(w, h.log, "SetStatus", slotResponse{
		Message: "Slot status updated",
		Slot:    slot,
	})
}

func (h *AdminHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := caller(w, r, h.log, "Release")
	if !ok {
		return
	}

	slot, err := h.service.Release(r.Context(), id.UserID, ps.ByName("slotId"))
	if err != nil {
		writeError(w, h.log, "Release", err)
		return
	}
	writeSuccess(w, h.log, "Release", slotResponse{
		Message: "Slot released",
		Slot:    slot,
	})
}

func (h *AdminHandler) SlotQRCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	qr, err := h.service.SlotQRCode(r.Context(), ps.ByName("slotId"))
	if err != nil {
		writeError(w, h.log, "SlotQRCode", err)
		return
	}
	writeSuccess(w, h.log, "SlotQRCode", qr)
}

func (h *AdminHandler) PendingRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	kind := lifecycle.RequestKind(r.URL.Query().Get("type"))

	slots, err := h.service.PendingRequests(r.Context(), kind)
	if err != nil {
		writeError(w, h.log, "PendingRequests", err)
		return
	}
	writeSuccess(w, h.log, "PendingRequests", slots)
}

func (h *AdminHandler) ApproveOccupied(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "ApproveOccupied", lifecycle.RequestOccupied, lifecycle.Approve, "Occupied request approved")
}

func (h *AdminHandler) RejectOccupied(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "RejectOccupied", lifecycle.RequestOccupied, lifecycle.Reject, "Occupied request rejected")
}

// ApproveLeaving completes a paid session. It also serves the
// confirm-payment route, which performs the same transition.
func (h *AdminHandler) ApproveLeaving(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "ApproveLeaving", lifecycle.RequestLeaving, lifecycle.Approve, "Leaving approved. Slot is now available.")
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, ps httprouter.Params, handler string, kind lifecycle.RequestKind, outcome lifecycle.Outcome, message string) {
	id, ok := caller(w, r, h.log, handler)
	if !ok {
		return
	}

	res, err := h.service.Decide(r.Context(), id.UserID, ps.ByName("slotId"), kind, outcome)
	if err != nil {
		writeError(w, h.log, handler, err)
		return
	}
	writeSuccess(w, h.log, handler, decisionResponse{
		Message:        message,
		DecisionResult: res,
	})
}

func (h *AdminHandler) MarkPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := caller(w, r, h.log, "MarkPayment")
	if !ok {
		return
	}

	slot, err := h.service.MarkPayment(r.Context(), id.UserID, ps.ByName("slotId"))
	if err != nil {
		writeError(w, h.log, "MarkPayment", err)
		return
	}
	writeSuccess(w, h.log, "MarkPayment", slotResponse{
		Message: "Payment marked as received",
		Slot:    slot,
	})
}

func (h *AdminHandler) ResetRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := caller(w, r, h.log, "ResetRequests")
	if !ok {
		return
	}

	n, err := h.service.ResetPendingRequests(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.log, "ResetRequests", err)
		return
	}
	writeSuccess(w, h.log, "ResetRequests", resetResponse{
		Message: "Pending occupied requests reset",
		Count:   n,
	})
}

func (h *AdminHandler) CompletedParkings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		writeError(w, h.log, "CompletedParkings", err)
		return
	}

	records, total, err := h.history.List(r.Context(), model.CompletedParkingFilter{
		UserID: r.URL.Query().Get("user"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.log, "CompletedParkings", err)
		return
	}

	if err := httputil.WritePaginated(w, records, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "CompletedParkings", "operation", "WritePaginated", "error", err)
	}
}

func (h *AdminHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/stats", h.Stats)
	router.GET("/api/v1/admin/slots", h.ListSlots)
	router.PATCH("/api/v1/admin/slots/:slotId/status", h.SetStatus)
	router.POST("/api/v1/admin/slots/:slotId/release", h.Release)
	router.GET("/api/v1/admin/qr/:slotId", h.SlotQRCode)

	router.GET("/api/v1/admin/requests", h.PendingRequests)
	router.POST("/api/v1/admin/requests/:slotId/approve-occupied", h.ApproveOccupied)
	router.POST("/api/v1/admin/requests/:slotId/reject-occupied", h.RejectOccupied)
	router.POST("/api/v1/admin/requests/:slotId/mark-payment", h.MarkPayment)
	router.POST("/api/v1/admin/requests/:slotId/approve-leaving", h.ApproveLeaving)
	router.POST("/api/v1/admin/requests/:slotId/confirm-payment", h.ApproveLeaving)
	router.POST("/api/v1/admin/reset-all-requests", h.ResetRequests)

	router.GET("/api/v1/admin/completed-parkings", h.CompletedParkings)
}
