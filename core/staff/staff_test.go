package staff

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurinbuild/kantine/core"
)

type memRepo struct {
	logs []AccessLog
}

func (r *memRepo) CreateAccessLog(_ context.Context, entry AccessLog) (AccessLog, error) {
	entry.ID = len(r.logs) + 1
	r.logs = append(r.logs, entry)
	return entry, nil
}

func (r *memRepo) QueryAccessLogs(_ context.Context, limit int) ([]AccessLog, error) {
	if limit > len(r.logs) {
		limit = len(r.logs)
	}
	out := make([]AccessLog, 0, limit)
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.logs[i])
	}
	return out, nil
}

type stdLogger struct{ std *log.Logger }

func (l stdLogger) Debug(msg string, args ...interface{}) { l.std.Println(msg) }
func (l stdLogger) Info(msg string, args ...interface{})  { l.std.Println(msg) }
func (l stdLogger) Warn(msg string, args ...interface{})  { l.std.Println(msg) }
func (l stdLogger) Error(msg string, args ...interface{}) { l.std.Println(msg) }
func (l stdLogger) Fatal(msg string, args ...interface{}) { l.std.Fatal(msg) }

func newTestService(secret string) (*Service, *memRepo) {
	repo := &memRepo{}
	conf := &core.Config{AdminSecretKey: secret}
	return NewService(repo, conf, stdLogger{log.New(os.Stdout, "", 0)}), repo
}

func TestVerifyToken(t *testing.T) {
	assert.True(t, VerifyToken("s3cret", "s3cret"))
	assert.False(t, VerifyToken("nope", "s3cret"))
	assert.False(t, VerifyToken("", "s3cret"))
	assert.False(t, VerifyToken("s3cret", ""))
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, tok, 43) // 32 raw bytes, urlsafe base64 without padding

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
	assert.True(t, VerifyToken(tok, tok))
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Len(t, Fingerprint("s3cret"), 12)
	assert.Equal(t, Fingerprint("s3cret"), Fingerprint("s3cret"))
	assert.NotEqual(t, Fingerprint("s3cret"), Fingerprint("other"))
}

func TestServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService("s3cret")

	require.NoError(t, svc.Authenticate(ctx, Attempt{
		Token:      "s3cret",
		IPAddress:  "10.0.0.7",
		UserAgent:  "kiosk/1.0",
		DeviceName: "counter-display",
	}))
	assert.Equal(t, ErrInvalidToken, svc.Authenticate(ctx, Attempt{Token: "wrong", IPAddress: "10.0.0.8"}))

	require.Len(t, repo.logs, 2, "both attempts must be logged")
	assert.True(t, repo.logs[0].Success)
	assert.Equal(t, "counter-display", repo.logs[0].DeviceName.String)
	assert.False(t, repo.logs[1].Success)
	assert.Equal(t, Fingerprint("wrong"), repo.logs[1].TokenFingerprint.String)
}

func TestServiceSecurityStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService("s3cret")

	svc.Authenticate(ctx, Attempt{Token: "s3cret", IPAddress: "10.0.0.7"})
	svc.Authenticate(ctx, Attempt{Token: "bad", IPAddress: "10.0.0.8"})
	svc.Authenticate(ctx, Attempt{Token: "worse", IPAddress: "10.0.0.8"})

	status, err := svc.SecurityStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.AdminConfigured)
	assert.Len(t, status.RecentAttempts, 3)
	assert.Equal(t, 2, status.RecentFailures)
}
