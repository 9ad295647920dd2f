package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFallsBackToInfo(t *testing.T) {
	l := New(Config{Level: "loud", Output: "discard"})
	assert.Equal(t, logrus.InfoLevel, l.log.GetLevel())

	l = New(Config{Level: "DEBUG", Output: "discard"})
	assert.Equal(t, logrus.DebugLevel, l.log.GetLevel())
}

func TestNew_FileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(Config{Level: "info", Format: "json", Output: path, MaxSize: 1})

	l.WithScaleOrderID("abc").WithField("component", "scale_engine").Info("Scale-ордер размещён.")
	l.WithOrderID(42).Debug("dropped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scale_order_id":"abc"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestHelpers_SetFields(t *testing.T) {
	l := Nop()
	assert.Equal(t, "BTC", l.WithCoin("BTC").Data["coin"])
	assert.Equal(t, "42", l.WithOrderID(42).Data["order_id"])
	assert.Equal(t, "f00d", l.WithFillHash("f00d").Data["fill_hash"])
	assert.Equal(t, "ws", l.WithComponent("ws").Data["component"])
}
