package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func TestResume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cp   crawler.Checkpoint
		n    int
		want crawler.Position
	}{
		{
			name: "progressed advances page",
			cp:   crawler.Checkpoint{SequenceIndex: 2, Page: 5, Outcome: crawler.OutcomeProgressed},
			n:    10,
			want: crawler.Position{SequenceIndex: 2, Page: 6},
		},
		{
			name: "failed retries page",
			cp:   crawler.Checkpoint{SequenceIndex: 2, Page: 5, Outcome: crawler.OutcomeFailed, Error: true},
			n:    10,
			want: crawler.Position{SequenceIndex: 2, Page: 5},
		},
		{
			name: "exhausted starts recorded url",
			cp:   crawler.Checkpoint{SequenceIndex: 0, Page: 1, Outcome: crawler.OutcomeExhausted, Error: true},
			n:    3,
			want: crawler.Position{SequenceIndex: 0, Page: 1},
		},
		{
			name: "legacy row falls back to flag",
			cp:   crawler.Checkpoint{SequenceIndex: 1, Page: 3, Error: false},
			n:    3,
			want: crawler.Position{SequenceIndex: 1, Page: 4},
		},
		{
			name: "index beyond shrunk sequence wraps",
			cp:   crawler.Checkpoint{SequenceIndex: 7, Page: 2, Outcome: crawler.OutcomeFailed},
			n:    5,
			want: crawler.Position{SequenceIndex: 2, Page: 2},
		},
		{
			name: "page below one is clamped",
			cp:   crawler.Checkpoint{SequenceIndex: 0, Page: 0, Outcome: crawler.OutcomeFailed},
			n:    1,
			want: crawler.Position{SequenceIndex: 0, Page: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Resume(tc.cp, tc.n))
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	require.Equal(t, crawler.Position{SequenceIndex: 1, Page: 1}, Wrap(crawler.Position{SequenceIndex: 0, Page: 9}, 3))
	require.Equal(t, crawler.Position{SequenceIndex: 0, Page: 1}, Wrap(crawler.Position{SequenceIndex: 2, Page: 4}, 3))
	require.Equal(t, crawler.Position{SequenceIndex: 0, Page: 1}, Wrap(crawler.Position{SequenceIndex: 0, Page: 4}, 1))
}
