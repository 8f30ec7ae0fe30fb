package messaging

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCarriesDiscriminator(t *testing.T) {
	data, err := json.Marshal(Message{Text: "hi"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"message"`)

	data, err = json.Marshal(FriendAccept{Name: "bob", ExchangeKey: strings.Repeat("ab", 32)})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"friend_accept"`)
}

func TestUnmarshalVariants(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	in := Message{
		Text:      "Can you review the draft?",
		Urgent:    true,
		Context:   "work",
		RespondBy: &deadline,
		SentAt:    time.Date(2026, 4, 30, 18, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	msg, ok := out.(Message)
	require.True(t, ok, "expected Message, got %T", out)
	assert.Equal(t, in.Text, msg.Text)
	assert.True(t, msg.Urgent)
	assert.True(t, msg.RespondBy.Equal(deadline))

	accept := FriendAccept{
		Name:          "bob",
		ExchangeKey:   strings.Repeat("0f", 32),
		ExchangeProof: strings.Repeat("aa", 64),
		AcceptedAt:    deadline,
	}
	data, err = json.Marshal(accept)
	require.NoError(t, err)
	out, err = Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, TypeFriendAccept, out.ContentType())
	assert.Equal(t, "bob", out.(FriendAccept).Name)
}

func TestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown tag", `{"type":"poke","text":"hi"}`, ErrUnknownContentType},
		{"missing tag", `{"text":"hi"}`, ErrMalformedContent},
		{"not json", `hello`, ErrMalformedContent},
		{"empty text", `{"type":"message","text":""}`, ErrMalformedContent},
		{"bad exchange key", `{"type":"friend_accept","from_name":"bob","exchange_key":"zz"}`, ErrMalformedContent},
		{"bad proof", `{"type":"friend_accept","from_name":"bob","exchange_key":"` + strings.Repeat("ab", 32) + `","exchange_proof":"00"}`, ErrMalformedContent},
		{"long context", `{"type":"message","text":"hi","context":"` + strings.Repeat("c", MaxContextLength+1) + `"}`, ErrMalformedContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
