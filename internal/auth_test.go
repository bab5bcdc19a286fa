package internal_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/koopa0/system-design/14-signaling-hub/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHMACVerifier 測試憑證簽發與驗證
func TestHMACVerifier(t *testing.T) {
	verifier := internal.NewHMACVerifier([]byte("test-secret"))

	t.Run("sign and verify round trip", func(t *testing.T) {
		token := verifier.Sign("a@x")

		identity, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "a@x", identity)
	})

	t.Run("rejections", func(t *testing.T) {
		valid := verifier.Sign("a@x")
		payload, _, _ := strings.Cut(valid, ".")
		otherSig := func() string {
			other := internal.NewHMACVerifier([]byte("other-secret"))
			_, sig, _ := strings.Cut(other.Sign("a@x"), ".")
			return sig
		}()

		tests := []struct {
			name  string
			token string
		}{
			{"empty token", ""},
			{"missing separator", payload},
			{"empty payload", "." + otherSig},
			{"signature from another secret", payload + "." + otherSig},
			{"tampered identity", base64.RawURLEncoding.EncodeToString([]byte("b@x")) + "." + otherSig},
			{"signature not base64", payload + ".!!!"},
			{"empty identity", verifier.Sign("")},
			{"garbage", "not-a-token-at-all"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := verifier.Verify(tt.token)
				require.Error(t, err)

				var hubErr *internal.HubError
				require.True(t, errors.As(err, &hubErr))
				assert.Equal(t, internal.KindUnauthorized, hubErr.Kind)
				assert.Equal(t, "invalid or missing credential", hubErr.Message)
			})
		}
	})

	t.Run("identities with dots survive", func(t *testing.T) {
		// base64url 不含 "."，身份中的點不會干擾分隔符
		token := verifier.Sign("first.last@example.com")

		identity, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "first.last@example.com", identity)
	})
}
