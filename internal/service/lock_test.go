package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newLockerWithUnlock(buf *bytes.Buffer, unlock func(ctx context.Context, key, tok string) (bool, error)) *RedisLocker {
	l := NewRedisLocker(nil, slog.New(slog.NewTextHandler(buf, nil)))
	l.unlock = unlock
	return l
}

func TestRedisLocker_ReleaseLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	l := newLockerWithUnlock(&buf, func(_ context.Context, key, tok string) (bool, error) {
		assert.Equal(t, "checkout:confirm:pi_1", key)
		assert.Equal(t, "tok", tok)
		return false, errors.New("i/o timeout")
	})

	l.release("checkout:confirm:pi_1", "tok")
	assert.Contains(t, buf.String(), "release lock")
	assert.Contains(t, buf.String(), "i/o timeout")
	assert.Contains(t, buf.String(), "checkout:confirm:pi_1")
}

func TestRedisLocker_ReleaseLogsExpiredLock(t *testing.T) {
	var buf bytes.Buffer
	l := newLockerWithUnlock(&buf, func(context.Context, string, string) (bool, error) { return false, nil })

	l.release("checkout:confirm:pi_2", "tok")
	assert.Contains(t, buf.String(), "lock expired before release")
}

func TestRedisLocker_ReleaseQuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	l := newLockerWithUnlock(&buf, func(ctx context.Context, _, _ string) (bool, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return true, nil
	})

	l.release("checkout:confirm:pi_3", "tok")
	assert.Empty(t, buf.String())
}
