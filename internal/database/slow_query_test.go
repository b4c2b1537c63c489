package database

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func clock(times ...time.Time) func() time.Time {
	return func() time.Time {
		t := times[0]
		times = times[1:]
		return t
	}
}

func TestSlowQueryTracer(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("slow", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		tracer := newSlowQueryTracer(10*time.Millisecond, &logger)
		tracer.now = clock(t0, t0.Add(25*time.Millisecond))

		ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

		assert.Contains(t, buf.String(), `"message":"slow query"`)
		assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)
	})

	t.Run("fast", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		tracer := newSlowQueryTracer(10*time.Millisecond, &logger)
		tracer.now = clock(t0, t0.Add(time.Millisecond))

		ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

		assert.Empty(t, buf.String())
	})

	t.Run("request logger", func(t *testing.T) {
		var fallback, request bytes.Buffer
		fallbackLogger := zerolog.New(&fallback)
		tracer := newSlowQueryTracer(time.Millisecond, &fallbackLogger)
		tracer.now = clock(t0, t0.Add(time.Second))

		ctx := zerolog.New(&request).WithContext(context.Background())
		ctx = tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 2"})
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

		assert.Empty(t, fallback.String())
		assert.Contains(t, request.String(), "slow query")
	})
}
