package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/filegate/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	t.Run("maps levels and fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := messaging.NewZapLogger(zap.New(core))

		logger.Info("subscribed", watermill.LogFields{"topic": "download.granted"})
		logger.Trace("polling", nil)
		logger.Error("read failed", errors.New("boom"), nil)

		entries := logs.All()
		require.Len(t, entries, 3)

		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, "download.granted", entries[0].ContextMap()["topic"])
		assert.Equal(t, "watermill", entries[0].ContextMap()["component"])
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
		assert.Equal(t, "boom", entries[2].ContextMap()["error"])
	})

	t.Run("with carries fields forward", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := messaging.NewZapLogger(zap.New(core)).With(watermill.LogFields{"consumer_group": "deliverer"})

		logger.Debug("ack", nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "deliverer", logs.All()[0].ContextMap()["consumer_group"])
	})
}
