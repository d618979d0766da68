package handler

import (
	"net/http"

	historyservice "qrparking/internal/history/service"
	"qrparking/internal/slots/service"
	"qrparking/pkg/auth"
	apperrors "qrparking/pkg/errors"
	httputil "qrparking/pkg/http"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// SlotHandler serves the booking flow of a signed in user. Every route acts
// on the caller's own booking.
type SlotHandler struct {
	service service.SlotService
	history historyservice.HistoryService
	log     *logger.Logger
}

func NewSlotHandler(service service.SlotService, history historyservice.HistoryService, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		history: history,
		log:     log,
	}
}

type reserveResponse struct {
	Message string             `json:"message"`
	Booking *model.ParkingSlot `json:"booking"`
	QRCode  string             `json:"qr_code"`
}

type slotResponse struct {
	Message string             `json:"message"`
	Slot    *model.ParkingSlot `json:"slot"`
}

type leavingResponse struct {
	Message  string             `json:"message"`
	Slot     *model.ParkingSlot `json:"slot"`
	Duration model.Duration     `json:"duration"`
	Cost     int64              `json:"cost"`
}

func (h *SlotHandler) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "ListSlots")
	if !ok {
		return
	}

	slots, err := h.service.ListForUser(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "ListSlots", err)
		return
	}
	h.success(w, "ListSlots", slots)
}

func (h *SlotHandler) CurrentBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "CurrentBooking")
	if !ok {
		return
	}

	booking, err := h.service.CurrentBooking(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "CurrentBooking", err)
		return
	}
	h.success(w, "CurrentBooking", booking)
}

func (h *SlotHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "Reserve")
	if !ok {
		return
	}

	var req model.ReserveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Reserve", err)
		return
	}

	res, err := h.service.Reserve(r.Context(), id.UserID, &req)
	if err != nil {
		h.fail(w, "Reserve", err)
		return
	}

	if err := httputil.WriteCreated(w, reserveResponse{
		Message: "Slot reserved successfully",
		Booking: res.Slot,
		QRCode:  res.QRCode,
	}); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) RequestOccupied(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "RequestOccupied")
	if !ok {
		return
	}

	slot, err := h.service.RequestOccupied(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "RequestOccupied", err)
		return
	}
	h.success(w, "RequestOccupied", slotResponse{
		Message: "Occupied request submitted. Waiting for admin approval.",
		Slot:    slot,
	})
}

func (h *SlotHandler) RequestLeaving(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "RequestLeaving")
	if !ok {
		return
	}

	quote, err := h.service.RequestLeaving(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "RequestLeaving", err)
		return
	}
	h.success(w, "RequestLeaving", leavingResponse{
		Message:  "Leaving request submitted. Please make payment.",
		Slot:     quote.Slot,
		Duration: quote.Duration,
		Cost:     quote.Cost,
	})
}

func (h *SlotHandler) Pay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "Pay")
	if !ok {
		return
	}

	slot, err := h.service.Pay(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "Pay", err)
		return
	}
	h.success(w, "Pay", slotResponse{
		Message: "Payment successful. Waiting for admin approval.",
		Slot:    slot,
	})
}

func (h *SlotHandler) Cancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "Cancel")
	if !ok {
		return
	}

	slot, err := h.service.Cancel(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "Cancel", err)
		return
	}
	h.success(w, "Cancel", slotResponse{
		Message: "Reservation cancelled successfully",
		Slot:    slot,
	})
}

func (h *SlotHandler) History(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, ok := h.caller(w, r, "History")
	if !ok {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.fail(w, "History", err)
		return
	}

	records, total, err := h.history.List(r.Context(), model.CompletedParkingFilter{
		UserID: id.UserID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(w, "History", err)
		return
	}

	if err := httputil.WritePaginated(w, records, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "History", "operation", "WritePaginated", "error", err)
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/parking/slots", h.ListSlots)
	router.GET("/api/v1/parking/booking", h.CurrentBooking)
	router.POST("/api/v1/parking/reserve", h.Reserve)
	router.POST("/api/v1/parking/request-occupied", h.RequestOccupied)
	router.POST("/api/v1/parking/request-leaving", h.RequestLeaving)
	router.POST("/api/v1/parking/payment", h.Pay)
	router.POST("/api/v1/parking/cancel", h.Cancel)
	router.GET("/api/v1/parking/history", h.History)
}

func (h *SlotHandler) caller(w http.ResponseWriter, r *http.Request, handler string) (auth.Identity, bool) {
	return caller(w, r, h.log, handler)
}

func (h *SlotHandler) fail(w http.ResponseWriter, handler string, err error) {
	writeError(w, h.log, handler, err)
}

func (h *SlotHandler) success(w http.ResponseWriter, handler string, data any) {
	writeSuccess(w, h.log, handler, data)
}

// caller returns the authenticated identity, answering 401 when the request
// did not pass through authentication.
func caller(w http.ResponseWriter, r *http.Request, log *logger.Logger, handler string) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, log, handler, apperrors.Unauthorized("Authentication required"))
	}
	return id, ok
}

func writeError(w http.ResponseWriter, log *logger.Logger, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func writeSuccess(w http.ResponseWriter, log *logger.Logger, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}
