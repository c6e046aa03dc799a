package lifetimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNoOpLifetimer_LifetimerMetrics returns zero values.
func TestNoOpLifetimer_LifetimerMetrics(t *testing.T) {
	var lt NoOpLifetimer

	removed, errors, scans, hits, misses := lt.LifetimerMetrics()
	require.Equal(t, int64(0), removed)
	require.Equal(t, int64(0), errors)
	require.Equal(t, int64(0), scans)
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(0), misses)
}

// TestNoOpLifetimer_ForceCallAndClose return nil.
func TestNoOpLifetimer_ForceCallAndClose(t *testing.T) {
	var lt NoOpLifetimer

	require.NoError(t, lt.ForceCall(time.Second))
	require.NoError(t, lt.Close())
}

// TestNew_DisabledReturnsNoOp falls back to the no-op worker without a lifetime section.
func TestNew_DisabledReturnsNoOp(t *testing.T) {
	lt := New(t.Context(), nil, nil, nil)
	require.IsType(t, &NoOpLifetimer{}, lt)
}
