package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	dErrors "contactsvc/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	contractSuite
}

func TestMemoryStoreSuite(t *testing.T) {
	s := new(MemoryStoreSuite)
	s.newStore = func() ports.StoreTx { return NewInMemory() }
	suite.Run(t, s)
}

func TestInMemorySeedKeepsIDs(t *testing.T) {
	st := NewInMemory()
	st.Seed(&models.Contact{ID: 7, Email: ptr("a@x.com"), Precedence: models.PrecedencePrimary, CreatedAt: epoch})
	next := &models.Contact{Email: ptr("b@x.com"), Precedence: models.PrecedencePrimary, CreatedAt: epoch}
	st.Seed(next)

	assert.Equal(t, int64(8), next.ID)
	assert.Equal(t, 2, st.Len())
}

func TestInMemoryReturnedRowsAreCopies(t *testing.T) {
	st := NewInMemory()
	st.Seed(&models.Contact{ID: 1, Email: ptr("a@x.com"), Precedence: models.PrecedencePrimary, CreatedAt: epoch})

	require.NoError(t, st.RunReadOnly(context.Background(), func(ctx context.Context, s ports.Store) error {
		c, err := s.FindByID(ctx, 1)
		require.NoError(t, err)
		*c.Email = "mutated@x.com"
		return nil
	}))
	require.NoError(t, st.RunReadOnly(context.Background(), func(ctx context.Context, s ports.Store) error {
		c, err := s.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", *c.Email)
		return nil
	}))
}

func TestInMemoryWriterWaitHonorsContext(t *testing.T) {
	st := NewInMemory()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.RunInTx(context.Background(), func(context.Context, ports.Store) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := st.RunInTx(ctx, func(context.Context, ports.Store) error { return nil })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestInMemoryReadsDoNotWaitForWriters(t *testing.T) {
	st := NewInMemory()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.RunInTx(context.Background(), func(ctx context.Context, s ports.Store) error {
			if err := s.Save(ctx, primary("a@x.com", "", epoch)); err != nil {
				return err
			}
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	require.NoError(t, st.RunReadOnly(context.Background(), func(ctx context.Context, s ports.Store) error {
		all, err := s.ListActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, all, "uncommitted writes stay invisible")
		return nil
	}))
}
