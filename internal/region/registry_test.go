package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerolethanh/netspy/internal/record"
)

func TestRegistryAttach(t *testing.T) {
	g := NewRegistry()

	a, err := g.Attach(0xDEAD, DefaultSize)
	require.NoError(t, err)
	b, err := g.Attach(0xDEAD, DefaultSize)
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, a.Write(0, record.New("alice", "ssh", 1, 2)))
	assert.Len(t, b.Scan(), 1)

	c, err := g.Attach(0xBEEF, DefaultSize)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Empty(t, c.Scan())

	_, err = g.Attach(0xDEAD, 2*record.Size)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = g.Attach(0xF00D, 1)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}
