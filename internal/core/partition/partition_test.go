package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFor_Deterministic(t *testing.T) {
	require.Equal(t, For("J-1001"), For("J-1001"))
}

func TestFor_InRange(t *testing.T) {
	ids := []string{"", "J1", "J2", "application-42", "☃"}
	for _, id := range ids {
		p := For(id)
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, Count)
	}
}
