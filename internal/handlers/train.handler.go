package handlers

import (
	"context"
	"strconv"

	"github.com/nimasrn/train-reservation/internal/model"
	xhttp "github.com/nimasrn/train-reservation/pkg/http"
)

type TrainService interface {
	Create(ctx context.Context, p model.TrainCreateRequest) (*model.Train, error)
	Query(ctx context.Context, source, destination string) ([]*model.Train, error)
	List(ctx context.Context) ([]*model.Train, error)
	UpdateCapacity(ctx context.Context, id int64, newTotal int) (*model.Train, error)
	Delete(ctx context.Context, id int64, cascade bool) error
}

type TrainHandler struct {
	svc    TrainService
	apiKey string
}

// RegisterTrainRoutes mounts the public route query and the key guarded
// administration routes.
func RegisterTrainRoutes(e *xhttp.Group, h *TrainHandler) {
	e.GET("/trains", h.QueryTrains)

	e.POST("/admin/trains", RequireAPIKey(h.apiKey, h.CreateTrain))
	e.GET("/admin/trains", RequireAPIKey(h.apiKey, h.ListTrains))
	e.PUT("/admin/trains/{id}/capacity", RequireAPIKey(h.apiKey, h.UpdateCapacity))
	e.DELETE("/admin/trains/{id}", RequireAPIKey(h.apiKey, h.DeleteTrain))
}

func NewTrainHandler(trainService TrainService, apiKey string) *TrainHandler {
	return &TrainHandler{
		svc:    trainService,
		apiKey: apiKey,
	}
}

type trainListResponse struct {
	Items []*model.Train `json:"items"`
	Total int            `json:"total"`
}

func (h *TrainHandler) CreateTrain(ctx *xhttp.RequestCtx) {
	var req model.TrainCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	train, err := h.svc.Create(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, train)
}

func (h *TrainHandler) ListTrains(ctx *xhttp.RequestCtx) {
	trains, err := h.svc.List(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, trainListResponse{Items: trains, Total: len(trains)})
}

func (h *TrainHandler) QueryTrains(ctx *xhttp.RequestCtx) {
	trains, err := h.svc.Query(ctx, query(ctx, "source"), query(ctx, "destination"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, trainListResponse{Items: trains, Total: len(trains)})
}

func (h *TrainHandler) UpdateCapacity(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	var req model.CapacityUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	train, err := h.svc.UpdateCapacity(ctx, id, *req.TotalSeats)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, train)
}

func (h *TrainHandler) DeleteTrain(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	var cascade bool
	if v := query(ctx, "cascade"); v != "" {
		if cascade, err = strconv.ParseBool(v); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid cascade "+strconv.Quote(v))
			return
		}
	}

	if err := h.svc.Delete(ctx, id, cascade); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}
