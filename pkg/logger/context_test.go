package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	t.Run("returns the carried logger", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf)).With(logger.EventID("evt_1"))
		ctx := logger.WithContext(context.Background(), log)

		logger.FromContext(ctx).InfoContext(ctx, "msg")
		assert.Contains(t, buf.String(), `"event_id":"evt_1"`)
	})

	t.Run("falls back when context has none", func(t *testing.T) {
		t.Parallel()
		fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		assert.Same(t, fallback, logger.FromContextOr(context.Background(), fallback))
		assert.NotNil(t, logger.FromContext(context.Background()))
	})

	t.Run("nil logger leaves context untouched", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		assert.Equal(t, ctx, logger.WithContext(ctx, nil))
	})
}
