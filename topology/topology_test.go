package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoresIsPositive(t *testing.T) {
	require.GreaterOrEqual(t, Cores(), 1)
}

func TestNormalizeFallsBack(t *testing.T) {
	require.Equal(t, DefaultCores, normalize(0))
	require.Equal(t, DefaultCores, normalize(-3))
	require.Equal(t, 1, normalize(1))
	require.Equal(t, 96, normalize(96))
}
