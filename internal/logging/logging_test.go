package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elympics/internal/config"
)

func TestSetup_JSON(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	require.NoError(t, setup(l, config.Log{Level: "warn", Format: "json"}, &buf))

	l.Info("丢弃")
	l.WithField("tick", 7).Warn("过期输入")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "过期输入", entry["msg"])
	assert.Equal(t, float64(7), entry["tick"])
}

func TestSetup_Invalid(t *testing.T) {
	l := logrus.New()
	assert.Error(t, setup(l, config.Log{Level: "loud"}, &bytes.Buffer{}))
	assert.Error(t, setup(l, config.Log{Format: "xml"}, &bytes.Buffer{}))
	assert.NoError(t, setup(l, config.Log{}, &bytes.Buffer{}))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
