package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestService_Login(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	authService := NewService(time.Hour, db)
	require.NotNil(t, authService)
	assert.NotNil(t, authService.redisClient)
	assert.Equal(t, time.Hour, authService.ttl)

	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}

	now := time.Now()
	userID := 42
	sessionKey := sessionKeyPrefix + testToken
	sessionVal := fmt.Sprintf("%d:%d", userID, now.Unix())
	mock.ExpectSet(sessionKey, sessionVal, 0).SetVal(sessionVal)
	mock.ExpectSAdd(tokensSetKey, testToken).SetVal(1)

	token, err := authService.Login(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Logout(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	authService := NewService(time.Hour, db)

	testToken := "test_token"
	mock.ExpectDel(sessionKeyPrefix + testToken).SetVal(1)
	mock.ExpectSRem(tokensSetKey, testToken).SetVal(1)

	require.NoError(t, authService.Logout(context.Background(), testToken))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ScanAndClean(t *testing.T) {
	ttl := time.Hour
	now := time.Now()
	then := now.Add(-2 * time.Hour)

	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	authService := NewService(ttl, rdb)
	require.NotNil(t, authService)

	t1, t2 := "token1", "token2"
	mock.ExpectSMembers(tokensSetKey).SetVal([]string{t1, t2})
	mock.ExpectGet(sessionKeyPrefix + t1).SetVal(fmt.Sprintf("1:%d", then.Unix()))
	mock.ExpectGet(sessionKeyPrefix + t2).SetVal(fmt.Sprintf("2:%d", now.Unix()))
	// only t1 is past the ttl
	mock.ExpectDel(sessionKeyPrefix + t1).SetVal(1)
	mock.ExpectSRem(tokensSetKey, t1).SetVal(1)

	authService.ScanAndClean(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginChecker_IsLogged(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	checker := NewLoginChecker(time.Hour, rdb)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectGet(sessionKeyPrefix + "fresh").SetVal(fmt.Sprintf("7:%d", now.Unix()))
	userID, logged, err := checker.IsLogged(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, logged)
	assert.Equal(t, 7, userID)

	expired := now.Add(-2 * time.Hour)
	mock.ExpectGet(sessionKeyPrefix + "stale").SetVal(fmt.Sprintf("7:%d", expired.Unix()))
	_, logged, err = checker.IsLogged(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, logged)

	mock.ExpectGet(sessionKeyPrefix + "unknown").RedisNil()
	_, logged, err = checker.IsLogged(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, logged)
}

func TestParseSessionValue(t *testing.T) {
	userID, createdAt, err := parseSessionValue("13:1700000000")
	require.NoError(t, err)
	assert.Equal(t, 13, userID)
	assert.Equal(t, int64(1700000000), createdAt.Unix())

	_, _, err = parseSessionValue("garbage")
	assert.Error(t, err)

	_, _, err = parseSessionValue("x:1700000000")
	assert.Error(t, err)
}
