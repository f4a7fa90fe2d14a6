package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/headwind-sh/headwind/internal/notify"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"event":"update_completed"}`)

	sig := notify.Sign(secret, body)
	assert.True(t, notify.Verify(secret, body, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := []byte("s3cr3t")
	sig := notify.Sign(secret, []byte("original"))
	assert.False(t, notify.Verify(secret, []byte("tampered"), sig))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte("payload")
	sig := notify.Sign([]byte("right"), body)
	assert.False(t, notify.Verify([]byte("wrong"), body, sig))
}
