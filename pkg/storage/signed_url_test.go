package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resignToken(t *testing.T, secret, certificateID, encodedPath string, expiresAt time.Time) string {
	t.Helper()
	payload := fmt.Sprintf("%s|%d|%s", certificateID, expiresAt.Unix(), encodedPath)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return strings.Join([]string{certificateID, fmt.Sprintf("%d", expiresAt.Unix()), encodedPath, signature}, ".")
}

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, expiresAt, err := signer.Generate("cert-1", "certificates/cert-1.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	certID, relPath, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "cert-1", certID)
	assert.Equal(t, "certificates/cert-1.pdf", relPath)
	assert.Equal(t, expiresAt.Unix(), parsedExp.Unix())
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, _, err := signer.Generate("cert-1", "certificates/cert-1.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)

	// Swap the certificate ID for another one.
	forged := strings.Join([]string{"cert-2", parts[1], parts[2], parts[3]}, ".")
	_, _, _, err = signer.Parse(forged)
	assert.Error(t, err)

	// Token signed with a different secret.
	other := NewSignedURLSigner("other-secret", time.Hour)
	otherToken, _, err := other.Generate("cert-1", "certificates/cert-1.pdf")
	require.NoError(t, err)
	_, _, _, err = signer.Parse(otherToken)
	assert.Error(t, err)
}

func TestSignedURLRejectsExpiredToken(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, _, err := signer.Generate("cert-1", "certificates/cert-1.pdf")
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)

	// Re-sign the payload with an expiry in the past so only the
	// expiration check can fail.
	past := time.Now().Add(-time.Minute)
	stale := resignToken(t, "test-secret", "cert-1", parts[2], past)
	_, _, _, err = signer.Parse(stale)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestSignedURLRejectsMalformedTokens(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	for _, token := range []string{"", "only-one-part", "a.b.c", "a.b.c.d.e"} {
		_, _, _, err := signer.Parse(token)
		assert.Error(t, err, "token %q", token)
	}

	_, _, _, err := signer.Parse("cert-1.notanumber.cGF0aA.deadbeef")
	assert.Error(t, err)
}

func TestSignedURLGenerateValidation(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	_, _, err := signer.Generate("", "certificates/cert-1.pdf")
	assert.Error(t, err)

	_, _, err = signer.Generate("cert-1", "")
	assert.Error(t, err)

	unsecured := NewSignedURLSigner("", time.Hour)
	_, _, err = unsecured.Generate("cert-1", "certificates/cert-1.pdf")
	assert.Error(t, err)
}
