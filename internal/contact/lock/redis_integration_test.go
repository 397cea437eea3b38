//go:build integration

package lock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"contactsvc/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *Redis
}

func TestRedisLockSuite(t *testing.T) {
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.locker = NewRedis(s.redis.Client, WithTTL(5*time.Second))
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockSuite) TestAcquireReleaseRemovesKeys() {
	ctx := context.Background()
	release, err := s.locker.Acquire(ctx, []string{"email:a@x.com", "phone:123"})
	s.Require().NoError(err)

	n, err := s.redis.Client.Exists(ctx, defaultKeyPrefix+"email:a@x.com", defaultKeyPrefix+"phone:123").Result()
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	release()
	n, err = s.redis.Client.Exists(ctx, defaultKeyPrefix+"email:a@x.com", defaultKeyPrefix+"phone:123").Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RedisLockSuite) TestContendedKeyIsExclusive() {
	other := NewRedis(s.redis.Client, WithTTL(5*time.Second))
	var inside, violations atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 10; i++ {
		l := s.locker
		if i%2 == 0 {
			l = other
		}
		g.Go(func() error {
			release, err := l.Acquire(ctx, []string{"email:shared@x.com"})
			if err != nil {
				return err
			}
			defer release()
			if inside.Add(1) > 1 {
				violations.Add(1)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Zero(violations.Load())
}

func (s *RedisLockSuite) TestAcquireTimesOutWhileHeld() {
	release, err := s.locker.Acquire(context.Background(), []string{"phone:999"})
	s.Require().NoError(err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.locker.Acquire(ctx, []string{"phone:999"})
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (s *RedisLockSuite) TestReleaseAfterExpiryLeavesNewOwnerAlone() {
	short := NewRedis(s.redis.Client, WithTTL(50*time.Millisecond))
	ctx := context.Background()

	release, err := short.Acquire(ctx, []string{"email:ttl@x.com"})
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	releaseNew, err := s.locker.Acquire(ctx, []string{"email:ttl@x.com"})
	s.Require().NoError(err)
	defer releaseNew()

	release()
	n, err := s.redis.Client.Exists(ctx, defaultKeyPrefix+"email:ttl@x.com").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n, "stale release must not delete the new owner's key")
}
