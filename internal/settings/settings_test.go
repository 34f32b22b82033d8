package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeUpdate(t *testing.T, body string) Update {
	t.Helper()
	var update Update
	require.NoError(t, json.Unmarshal([]byte(body), &update))
	return update
}

func TestOpenMissingFileDefaultsToLocal(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "nope", "settings.json"))
	assert.Equal(t, ModeLocal, s.Mode())
}

func TestOpenCorruptFileDefaultsToLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	assert.Equal(t, ModeLocal, Open(path).Mode())
}

func TestApplyTokenMergeRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	s := Open(path)

	_, err := s.Apply(decodeUpdate(t, `{"ai":{"endpoint":"  http://127.0.0.1:2020 ","token":" tok "}}`))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:2020", s.Get().AI.Endpoint)
	assert.Equal(t, "tok", s.Get().AI.Token)

	// omitted keeps
	_, err = s.Apply(decodeUpdate(t, `{"ai":{"endpoint":"http://x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Get().AI.Token)

	// empty keeps
	_, err = s.Apply(decodeUpdate(t, `{"ai":{"token":"   "}}`))
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Get().AI.Token)

	// null clears
	_, err = s.Apply(decodeUpdate(t, `{"ai":{"token":null}}`))
	require.NoError(t, err)
	assert.False(t, s.Get().TokenSet())

	reopened := Open(path)
	assert.Equal(t, "http://x", reopened.Get().AI.Endpoint)
}

func TestApplyModeValidation(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "settings.json"))

	_, err := s.Apply(decodeUpdate(t, `{"mode":"cloud"}`))
	require.NoError(t, err)
	assert.Equal(t, ModeCloud, s.Mode())

	_, err = s.Apply(decodeUpdate(t, `{"mode":"icloud"}`))
	require.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, ModeCloud, s.Mode())
}

func TestPublicHidesToken(t *testing.T) {
	value := Settings{Mode: ModeLocal, AI: AI{Endpoint: "e", Token: "secret"}}
	raw, err := json.Marshal(value.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.True(t, value.TokenSet())
}
