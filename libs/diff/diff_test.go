package diff_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/libs/diff"
)

type profile struct {
	ID    uuid.UUID `diff:"id"`
	Name  string    `diff:"name"`
	Score int64     `diff:"score"`
	Rank  int       `diff:"-"`
}

func TestChanges(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		before profile
		after  profile
		want   []string
	}{
		{"identical", profile{ID: id, Name: "ana"}, profile{ID: id, Name: "ana"}, []string{}},
		{"ignored field", profile{ID: id, Rank: 1}, profile{ID: id, Rank: 2}, []string{}},
		{"name and score", profile{ID: id, Name: "ana"}, profile{ID: id, Name: "bo", Score: 9}, []string{"name", "score"}},
		{"uuid is one change", profile{ID: id}, profile{ID: uuid.New()}, []string{"id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, err := diff.Changes(tt.before, tt.after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, diff.Fields(changes))
		})
	}
}

func TestChanges_Values(t *testing.T) {
	id := uuid.New()
	changes, err := diff.Changes(profile{ID: id, Score: 1}, profile{ID: id, Score: 5})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), changes[0].From)
	assert.Equal(t, int64(5), changes[0].To)
}
