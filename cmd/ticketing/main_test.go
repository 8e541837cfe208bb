package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(failureRate, rejectRate float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(NewHandler(NewMockTicketing(failureRate, rejectRate, 0, 0)))
}

func postConfirm(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/confirmations", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validRequest() ConfirmRequest {
	return ConfirmRequest{BookingID: 1, TrainID: 2, TrainNumber: "12951", PrincipalID: "alice"}
}

func TestConfirm_ThenDuplicate(t *testing.T) {
	r := newTestRouter(0, 0)

	w := postConfirm(t, r, validRequest())
	require.Equal(t, http.StatusCreated, w.Code)
	var first ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, StatusConfirmed, first.Status)
	assert.NotEmpty(t, first.Reference)

	w = postConfirm(t, r, validRequest())
	require.Equal(t, http.StatusConflict, w.Code)
	var second ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.Reference, second.Reference)
}

func TestConfirm_InvalidRequest(t *testing.T) {
	r := newTestRouter(0, 0)
	w := postConfirm(t, r, map[string]any{"booking_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirm_SimulatedFailures(t *testing.T) {
	w := postConfirm(t, newTestRouter(1, 0), validRequest())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = postConfirm(t, newTestRouter(0, 1), validRequest())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(0, 0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var res HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "healthy", res.Status)
}
