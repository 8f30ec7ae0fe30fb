package friend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	peers := Peers{
		{ID: "a1", Name: "Al"},
		{ID: "b2", Name: "Alice"},
		{ID: "c3", Name: "Alfred"},
		{ID: "d4", Name: "Bob"},
	}

	tests := []struct {
		query string
		want  string
		err   error
	}{
		{"c3", "c3", nil},
		{"al", "a1", nil},
		{"ALICE", "b2", nil},
		{"fred", "c3", nil},
		{"li", "b2", nil},
		{"l", "", ErrAmbiguousMatch},
		{"zed", "", ErrUnknownFriend},
		{"  ", "", ErrUnknownFriend},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p, err := peers.Lookup(tt.query)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

func TestResolveAmbiguousListsCandidates(t *testing.T) {
	peers := Peers{{ID: "x", Name: "Sam"}, {ID: "y", Name: "sam"}}
	_, err := peers.Lookup("sam")
	require.ErrorIs(t, err, ErrAmbiguousMatch)
	assert.Contains(t, err.Error(), "Sam (x)")
	assert.Contains(t, err.Error(), "sam (y)")
}

func TestFindIncoming(t *testing.T) {
	p := &Pending{Incoming: []IncomingRequest{{ID: "r1", Name: "Dana"}}}
	i, err := p.FindIncoming("dan")
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = p.FindIncoming("eve")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}
