package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAtSortsByIssueOrder(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	a := NewAt(at)
	b := NewAt(at)
	c := NewAt(at.Add(time.Second))

	assert.Len(t, a, 26)
	assert.Less(t, a, b)
	assert.Less(t, b, c)

	ts, err := Time(c)
	require.NoError(t, err)
	assert.True(t, ts.Equal(at.Add(time.Second)))
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Time("not-an-id")
	assert.Error(t, err)
}
