package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupOutput(&buf, "debug", "json"))
	t.Cleanup(func() { _ = Setup("info", "text") })

	logrus.Debugf("Cache hit for %s", "https://api.github.com/repos/o/r")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "Cache hit for https://api.github.com/repos/o/r", line["msg"])
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupOutput(&buf, "warn", "text"))
	t.Cleanup(func() { _ = Setup("info", "text") })

	logrus.Infof("hidden")
	assert.Empty(t, buf.String())

	logrus.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupInvalid(t *testing.T) {
	assert.Error(t, SetupOutput(&bytes.Buffer{}, "loud", "text"))
	assert.Error(t, SetupOutput(&bytes.Buffer{}, "info", "xml"))
}
