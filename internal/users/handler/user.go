package handler

import (
	"net/http"
	"strconv"

	"qrparking/internal/users/repository"
	"qrparking/internal/users/service"
	"qrparking/pkg/auth"
	apperrors "qrparking/pkg/errors"
	httputil "qrparking/pkg/http"
	"qrparking/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type UserHandler struct {
	service service.UserService
	log     *logger.Logger
}

func NewUserHandler(service service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		log:     log,
	}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	filter := repository.UserFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if s := r.URL.Query().Get("blocked"); s != "" {
		blocked, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, "List", apperrors.InvalidInput("invalid blocked parameter: "+s))
			return
		}
		filter.Blocked = &blocked
	}

	users, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, users, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, user); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	admin, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, "Block", apperrors.Unauthorized("Authentication required"))
		return
	}

	user, err := h.service.Block(r.Context(), admin.UserID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Block", err)
		return
	}

	if err := httputil.WriteSuccess(w, user); err != nil {
		h.log.Error("failed to write success response", "handler", "Block", "operation", "WriteSuccess", "error", err)
	}
}

func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	admin, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, "Unblock", apperrors.Unauthorized("Authentication required"))
		return
	}

	user, err := h.service.Unblock(r.Context(), admin.UserID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Unblock", err)
		return
	}

	if err := httputil.WriteSuccess(w, user); err != nil {
		h.log.Error("failed to write success response", "handler", "Unblock", "operation", "WriteSuccess", "error", err)
	}
}

func (h *UserHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *UserHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/users", h.List)
	router.GET("/api/v1/admin/users/:id", h.GetByID)
	router.POST("/api/v1/admin/users/:id/block", h.Block)
	router.POST("/api/v1/admin/users/:id/unblock", h.Unblock)
}
