package gauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivedrop/drivedrop/internal/logging"
)

func validTokenJSON(t *testing.T, expiry time.Time) string {
	t.Helper()
	data, err := sonic.Marshal(authorizedUser{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		AccessToken:  "access-token",
		Expiry:       expiry,
	})
	require.NoError(t, err)
	return string(data)
}

func TestParseAuthorizedUserRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"garbage":           "not json at all",
		"no_refresh_token":  `{"client_id":"a","client_secret":"b","token":"c"}`,
		"missing_client_id": `{"client_secret":"b","refresh_token":"r"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseAuthorizedUser([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseAuthorizedUserRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	user, err := parseAuthorizedUser([]byte(validTokenJSON(t, expiry)))
	require.NoError(t, err)

	assert.Equal(t, "client-id", user.ClientID)
	assert.Equal(t, "refresh-token", user.RefreshToken)
	assert.Equal(t, "access-token", user.AccessToken)
	assert.True(t, expiry.Equal(user.Expiry))
}

func TestTokenURLDefaultsToGoogle(t *testing.T) {
	u := &authorizedUser{}
	assert.Equal(t, defaultTokenURL, u.tokenURL())

	u.TokenURI = "https://example.test/token"
	assert.Equal(t, "https://example.test/token", u.tokenURL())
}

func TestTokenSourceUsesUnexpiredAccessToken(t *testing.T) {
	// An unexpired access token must be served without any network
	// round trip.
	src, err := TokenSource(context.Background(),
		validTokenJSON(t, time.Now().Add(time.Hour)), "", logging.NewNop())
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-token", tok.AccessToken)
}

func TestTokenSourceReadsTokenFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(file, []byte(validTokenJSON(t, time.Now().Add(time.Hour))), 0o600))

	src, err := TokenSource(context.Background(), "", file, logging.NewNop())
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-token", tok.AccessToken)
}

func TestTokenSourceRequiresSomeCredential(t *testing.T) {
	_, err := TokenSource(context.Background(), "", "", logging.NewNop())
	assert.Error(t, err)

	_, err = TokenSource(context.Background(), "", filepath.Join(t.TempDir(), "missing.json"), logging.NewNop())
	assert.Error(t, err)
}
