package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeClampsInvalidParallelTasks(t *testing.T) {
	c := Default()
	c.ParallelTasks = -5
	c = c.Sanitize()
	assert.Equal(t, Default().ParallelTasks, c.ParallelTasks)
}

func TestSanitizeClampsParallelTasksAboveMax(t *testing.T) {
	c := Default()
	c.MaxParallelTasks = 10
	c.ParallelTasks = 50
	c = c.Sanitize()
	assert.Equal(t, 10, c.ParallelTasks)
}

func TestSanitizeFillsZeroDurations(t *testing.T) {
	c := Default()
	c.RetryDelay = 0
	c.MetricsInterval = 0
	c = c.Sanitize()
	assert.Equal(t, time.Second, c.RetryDelay)
	assert.Equal(t, 30*time.Second, c.MetricsInterval)
}

func TestSanitizeLeavesValidConfigUntouched(t *testing.T) {
	c := Default()
	c.ParallelTasks = 30
	got := c.Sanitize()
	assert.Equal(t, 30, got.ParallelTasks)
}

func TestParseNetworksAcceptsPassphrase(t *testing.T) {
	out := parseNetworks([]string{"stellar:public=https://horizon.stellar.org,networkpassphrase"})
	assert.Equal(t, "https://horizon.stellar.org", out["stellar:public"].Endpoint)
	assert.Equal(t, "networkpassphrase", out["stellar:public"].Passphrase)
}

func TestParseNetworksIgnoresMalformedEntries(t *testing.T) {
	out := parseNetworks([]string{"no-equals-sign"})
	assert.Empty(t, out)
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a ,b,"))
	assert.Nil(t, splitCSV(""))
}
