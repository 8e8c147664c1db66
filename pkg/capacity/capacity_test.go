package capacity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		n       int
		wantErr bool
		max     int
	}{
		{name: "create fits exactly", snap: Snapshot{Ceiling: 10, Used: 8}, n: 2, max: 2},
		{name: "create over by one", snap: Snapshot{Ceiling: 10, Used: 8}, n: 3, wantErr: true, max: 2},
		{name: "edit reuses previous count", snap: Snapshot{Ceiling: 10, Used: 10, Previous: 4}, n: 4, max: 4},
		{name: "edit grows past ceiling", snap: Snapshot{Ceiling: 10, Used: 10, Previous: 4}, n: 5, wantErr: true, max: 4},
		{name: "empty parent", snap: Snapshot{Ceiling: 5}, n: 5, max: 5},
		{name: "overbooked parent clamps remaining", snap: Snapshot{Ceiling: 5, Used: 7}, n: 1, wantErr: true, max: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.snap, tc.n)
			assert.Equal(t, tc.max, tc.snap.Remaining())
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrExceeded))

			var exceeded *ExceededError
			require.True(t, errors.As(err, &exceeded))
			assert.Equal(t, tc.n, exceeded.Requested)
		})
	}
}

func TestMessageCitesRemaining(t *testing.T) {
	err := Check(Snapshot{Ceiling: 10, Used: 8}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum allowed is 2")

	assert.Contains(t, Message(0), "fully booked")
}

func TestSum(t *testing.T) {
	type row struct {
		id string
		n  int
	}
	rows := []row{{"a", 3}, {"b", 5}, {"c", 2}}
	count := func(r row) int { return r.n }

	assert.Equal(t, 10, Sum(rows, count, nil))
	assert.Equal(t, 5, Sum(rows, count, func(r row) bool { return r.id == "b" }))
	assert.Equal(t, 0, Sum([]row(nil), count, nil))
}
