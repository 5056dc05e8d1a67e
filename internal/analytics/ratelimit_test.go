package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/radiusdt/banner-analytics/internal/analytics"
)

func TestIngestLimiterBurst(t *testing.T) {
	l := analytics.NewIngestLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("sess-1"), "request %d should fit in the burst", i)
	}
	assert.False(t, l.Allow("sess-1"))
}

func TestIngestLimiterKeysAreIndependent(t *testing.T) {
	l := analytics.NewIngestLimiter(1, 1)

	assert.True(t, l.Allow("sess-1"))
	assert.False(t, l.Allow("sess-1"))
	assert.True(t, l.Allow("sess-2"))
	assert.Equal(t, 2, l.Len())
}

func TestIngestLimiterReset(t *testing.T) {
	l := analytics.NewIngestLimiter(1, 1)

	assert.True(t, l.Allow("sess-1"))
	assert.False(t, l.Allow("sess-1"))

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Allow("sess-1"))
}
