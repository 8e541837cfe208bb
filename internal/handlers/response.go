package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nimasrn/train-reservation/internal/services"
	xhttp "github.com/nimasrn/train-reservation/pkg/http"
	"github.com/nimasrn/train-reservation/pkg/logger"
)

const (
	HeaderAPIKey      = "X-API-Key"
	HeaderPrincipalID = "X-Principal-Id"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg, RequestID: xhttp.RequestID(ctx)})
}

// writeServiceError maps a service error onto its HTTP status. Internal
// failures are logged and reported without their details.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	status := statusFor(err)
	if status == xhttp.StatusInternalServerError {
		logger.Error("request failed", "path", string(ctx.Path()), "request_id", xhttp.RequestID(ctx), "error", err)
		writeError(ctx, status, xhttp.StatusText(status))
		return
	}
	writeError(ctx, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidArgument), errors.Is(err, services.ErrInvalidCapacity):
		return xhttp.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, services.ErrDuplicateKey),
		errors.Is(err, services.ErrCapacityBelowBooked),
		errors.Is(err, services.ErrCapacityExhausted),
		errors.Is(err, services.ErrTrainHasBookings):
		return xhttp.StatusConflict
	case errors.Is(err, services.ErrUnavailable):
		return xhttp.StatusServiceUnavailable
	default:
		return xhttp.StatusInternalServerError
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func principal(ctx *xhttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderPrincipalID)))
}

// requirePrincipal rejects requests that arrive without an identified principal.
func requirePrincipal(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		if principal(ctx) == "" {
			writeError(ctx, xhttp.StatusUnauthorized, "missing "+HeaderPrincipalID+" header")
			return
		}
		next(ctx)
	}
}

// RequireAPIKey guards administrative routes with a shared key. An empty
// key disables every guarded route.
func RequireAPIKey(key string, next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		got := ctx.Request.Header.Peek(HeaderAPIKey)
		if key == "" || subtle.ConstantTimeCompare(got, []byte(key)) != 1 {
			writeError(ctx, xhttp.StatusUnauthorized, "invalid or missing "+HeaderAPIKey+" header")
			return
		}
		next(ctx)
	}
}
