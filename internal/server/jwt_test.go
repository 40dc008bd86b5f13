package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elympics/pkg/core"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	token, err := issuer.Generate(7, "match-1", time.Minute)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int32(7), claims.PlayerID)
	assert.Equal(t, "match-1", claims.MatchID)
	assert.Equal(t, "player-7", claims.Subject)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer("secret")

	forged, err := NewTokenIssuer("other").Generate(1, "", 0)
	require.NoError(t, err)

	old := NewTokenIssuer("secret")
	old.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := old.Generate(1, "", time.Minute)
	require.NoError(t, err)

	negative, err := issuer.Generate(-3, "", 0)
	require.NoError(t, err)
	tooLarge, err := issuer.Generate(core.MaxPlayerID+1, "", 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", forged},
		{"expired", expired},
		{"negative player", negative},
		{"player out of range", tooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
