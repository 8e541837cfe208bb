package handlers

import (
	"context"

	"github.com/nimasrn/train-reservation/internal/model"
	xhttp "github.com/nimasrn/train-reservation/pkg/http"
)

type ReservationService interface {
	Reserve(ctx context.Context, principalID string, trainID int64) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID int64, principalID string) (*model.Booking, error)
}

type BookingHandler struct {
	svc ReservationService
}

// RegisterBookingRoutes mounts the booking routes. The caller is identified by
// the X-Principal-Id header set by the authenticating gateway in front.
func RegisterBookingRoutes(e *xhttp.Group, h *BookingHandler) {
	e.POST("/bookings", requirePrincipal(h.CreateBooking))
	e.GET("/bookings/{id}", requirePrincipal(h.GetBooking))
}

func NewBookingHandler(reservationService ReservationService) *BookingHandler {
	return &BookingHandler{
		svc: reservationService,
	}
}

type createBookingRequest struct {
	TrainID int64 `json:"train_id"`
}

func (h *BookingHandler) CreateBooking(ctx *xhttp.RequestCtx) {
	var req createBookingRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	booking, err := h.svc.Reserve(ctx, principal(ctx), req.TrainID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, booking)
}

func (h *BookingHandler) GetBooking(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	booking, err := h.svc.GetBooking(ctx, id, principal(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, booking)
}
