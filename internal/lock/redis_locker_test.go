package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-settlement/internal/lock"
)

const unlockLua = `if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`

func TestRedisLocker_TryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := lock.NewRedisLocker(db, "lock:")
	ctx := context.Background()

	mock.ExpectSetNX("lock:reserveSeat:9", "tok", 3*time.Second).SetVal(true)
	mock.ExpectSetNX("lock:reserveSeat:9", "tok2", 3*time.Second).SetVal(false)

	ok, err := l.TryLock(ctx, "reserveSeat:9", "tok", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "reserveSeat:9", "tok2", 3*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_UnlockChecksToken(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := lock.NewRedisLocker(db, "lock:")
	ctx := context.Background()

	mock.ExpectEval(unlockLua, []string{"lock:k"}, "mine").SetVal(int64(1))
	mock.ExpectEval(unlockLua, []string{"lock:k"}, "stale").SetVal(int64(0))
	mock.ExpectEval(unlockLua, []string{"lock:k"}, "mine").SetErr(errors.New("conn reset"))

	ok, err := l.Unlock(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Unlock(ctx, "k", "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Unlock(ctx, "k", "mine")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_RedisProviderErrorFailsAcquisition(t *testing.T) {
	db, mock := redismock.NewClientMock()
	exec := newExecutor(lock.NewRedisLocker(db, ""))
	mock.Regexp().ExpectSetNX("k", `.+`, time.Second).SetErr(errors.New("redis down"))

	err := exec.Run(context.Background(), "k", 0, time.Second, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrLockAcquisitionFailed)
}
