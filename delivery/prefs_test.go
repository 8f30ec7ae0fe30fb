package delivery

import (
	"testing"

	"github.com/opd-ai/relaylink/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesDefaults(t *testing.T) {
	m := NewManager(store.NewMemoryStore())
	p, err := m.Load()
	require.NoError(t, err)
	assert.False(t, p.QuietHours.Enabled)
	assert.False(t, p.Batch.Enabled)
	assert.True(t, p.Rules.AllowUrgentDuringQuiet)
	assert.Equal(t, ToneFriendly, p.Tone)
	assert.Equal(t, GreetingPersonal, p.Greeting)
	assert.NoError(t, p.Validate())
}

func TestPreferenceSettersPersist(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)

	_, err := m.SetQuietHours("23:00", "06:30", "Europe/Berlin")
	require.NoError(t, err)
	_, err = m.SetBatchTimes([]string{"18:00", " 09:00", "18:00", ""})
	require.NoError(t, err)
	_, err = m.SetTone(ToneProfessional)
	require.NoError(t, err)
	_, err = m.SetGreeting(GreetingMinimal)
	require.NoError(t, err)
	_, err = m.SetRules(Rules{SummarizeLong: true})
	require.NoError(t, err)
	_, err = m.SetPeerOverride("abcd", PeerOverride{AlwaysDeliver: true, Tone: ToneCasual})
	require.NoError(t, err)

	p, err := NewManager(s).Load()
	require.NoError(t, err)
	assert.Equal(t, QuietHours{Enabled: true, Start: "23:00", End: "06:30", Timezone: "Europe/Berlin"}, p.QuietHours)
	assert.Equal(t, []string{"09:00", "18:00"}, p.Batch.Times)
	assert.True(t, p.Batch.Enabled)
	assert.Equal(t, ToneProfessional, p.Tone)
	assert.Equal(t, GreetingMinimal, p.Greeting)
	assert.False(t, p.Rules.AllowUrgentDuringQuiet)
	assert.Equal(t, PriorityNormal, p.Overrides["abcd"].Priority)
	assert.Equal(t, ToneCasual, p.ToneFor("abcd"))
	assert.Equal(t, ToneProfessional, p.ToneFor("other"))
	assert.Equal(t, "Europe/Berlin", p.Location().String())

	_, err = m.DisableQuietHours()
	require.NoError(t, err)
	_, err = m.DisableBatch()
	require.NoError(t, err)
	_, err = m.ClearPeerOverride("abcd")
	require.NoError(t, err)

	p, err = m.Load()
	require.NoError(t, err)
	assert.False(t, p.QuietHours.Enabled)
	assert.Equal(t, "23:00", p.QuietHours.Start)
	assert.False(t, p.Batch.Enabled)
	assert.Empty(t, p.Overrides)
}

func TestPreferenceSettersValidate(t *testing.T) {
	m := NewManager(store.NewMemoryStore())

	_, err := m.SetQuietHours("25:00", "07:00", "")
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetQuietHours("22:00", "07:00", "Mars/Olympus")
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetBatchTimes([]string{"9am"})
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetBatchTimes(nil)
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetTone("grumpy")
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetGreeting("shouty")
	assert.ErrorIs(t, err, ErrInvalidPreference)
	_, err = m.SetPeerOverride("abcd", PeerOverride{Priority: "urgent"})
	assert.ErrorIs(t, err, ErrInvalidPreference)

	// Nothing invalid was persisted.
	p, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences().QuietHours, p.QuietHours)
	assert.Empty(t, p.Overrides)
}
