package xhttp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(path string) *RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI(path)
	return ctx
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates id when missing", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(func(ctx *RequestCtx) {
			seen = RequestID(ctx)
		})
		ctx := newCtx("/api/v1/trains")
		h(ctx)

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, string(ctx.Response.Header.Peek(HeaderRequestID)))
	})

	t.Run("keeps caller id", func(t *testing.T) {
		h := RequestIDMiddleware(func(ctx *RequestCtx) {})
		ctx := newCtx("/api/v1/trains")
		ctx.Request.Header.Set(HeaderRequestID, "abc-123")
		h(ctx)
		assert.Equal(t, "abc-123", string(ctx.Response.Header.Peek(HeaderRequestID)))
	})
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) {
		panic("boom")
	})
	ctx := newCtx("/api/v1/bookings")
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}

func TestRequestLoggerMiddleware_PassesThrough(t *testing.T) {
	called := false
	h := RequestLoggerMiddleware(func(ctx *RequestCtx) {
		called = true
		ctx.SetStatusCode(StatusCreated)
	})
	ctx := newCtx("/api/v1/bookings")
	h(ctx)
	assert.True(t, called)
	assert.Equal(t, StatusCreated, ctx.Response.StatusCode())
}

func TestEngine_DoRoutingAppliesMiddlewareInOrder(t *testing.T) {
	e := CreateServer()
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(mw("first"))
	e.Use(mw("second"))
	e.Router.GET("/ping", func(ctx *RequestCtx) {
		order = append(order, "handler")
	})
	require.NoError(t, e.DoRouting())

	e.Server.Handler(newCtx("/ping"))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Not Found", StatusText(StatusNotFound))
	assert.Equal(t, "Conflict", StatusText(StatusConflict))
}
