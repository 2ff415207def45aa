package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencerFormatsFixedWidth(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		width    int
		counter  int
		expected Identifier
	}{
		{"zero", 8, 0, "NCT00000000"},
		{"small", 8, 102, "NCT00000102"},
		{"full width", 8, 12345678, "NCT12345678"},
		{"ten digits", 10, 7, "NCT0000000007"},
		{"registry width", 10, 1, "NCT0000000001"},
		{"overflow keeps digits", 2, 123, "NCT123"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewSequencer("NCT", tc.width, 0)
			require.Equal(t, tc.expected, s.Format(tc.counter))
		})
	}
}

func TestSequencerNextIsStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	const bound = 500
	s := NewSequencer(DefaultPrefix, DefaultWidth, 0)
	seen := make(map[Identifier]struct{}, bound)
	var prev Identifier
	for i := 0; i < bound; i++ {
		require.Equal(t, i, s.Counter())
		id := s.Next()
		require.True(t, strings.HasPrefix(string(id), DefaultPrefix))
		require.Len(t, string(id), len(DefaultPrefix)+DefaultWidth)
		if i > 0 {
			// Equal width makes lexical order match numeric order.
			require.Greater(t, string(id), string(prev))
		}
		_, dup := seen[id]
		require.False(t, dup, "identifier %s repeated", id)
		seen[id] = struct{}{}
		prev = id
	}
	require.Equal(t, bound, s.Counter())
}

func TestNewSequencerDefaults(t *testing.T) {
	t.Parallel()

	s := NewSequencer("NCT", 0, -5)
	require.Equal(t, 0, s.Counter())
	require.Equal(t, Identifier("NCT00000000"), s.Next())

	s = NewSequencer("NCT", 8, 42)
	require.Equal(t, Identifier("NCT00000042"), s.Next())
	require.Equal(t, 43, s.Counter())
}

func TestRecordURL(t *testing.T) {
	t.Parallel()

	got, err := RecordURL("https://clinicaltrials.gov/ct2/show/", "NCT00000102")
	require.NoError(t, err)
	require.Equal(t, "https://clinicaltrials.gov/ct2/show/NCT00000102?displayxml=true", got)

	_, err = RecordURL("  ", "NCT00000102")
	require.Error(t, err)
}
