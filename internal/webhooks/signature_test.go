package webhooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"hook_1","type":"order.paid"}`)
	digest := Sign(secret, body)

	t.Run("accepts bare hex digest", func(t *testing.T) {
		require.NoError(t, VerifySignature(secret, body, digest))
	})

	t.Run("accepts sha256 prefixed form", func(t *testing.T) {
		require.NoError(t, VerifySignature(secret, body, "sha256="+digest))
	})

	t.Run("accepts uppercase hex", func(t *testing.T) {
		upper := ""
		for _, r := range digest {
			if r >= 'a' && r <= 'f' {
				r = r - 'a' + 'A'
			}
			upper += string(r)
		}
		require.NoError(t, VerifySignature(secret, body, upper))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		err := VerifySignature(secret, []byte(`{"id":"hook_2"}`), digest)
		require.Error(t, err)
		require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
	})

	t.Run("rejects missing header", func(t *testing.T) {
		err := VerifySignature(secret, body, "")
		require.Error(t, err)
		require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
	})

	t.Run("fails closed on empty secret", func(t *testing.T) {
		err := VerifySignature("", body, digest)
		require.Error(t, err)
		require.Equal(t, pkgerrors.CodeInternal, pkgerrors.As(err).Code())
	})
}
