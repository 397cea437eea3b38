package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	"contactsvc/pkg/platform/sentinel"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

// contractSuite holds the behavior every ports.StoreTx must share. Backends
// embed it and set newStore per test.
type contractSuite struct {
	suite.Suite
	newStore func() ports.StoreTx
	tx       ports.StoreTx
}

func (s *contractSuite) SetupTest() {
	s.tx = s.newStore()
}

func (s *contractSuite) write(fn func(ctx context.Context, st ports.Store) error) {
	s.Require().NoError(s.tx.RunInTx(context.Background(), fn))
}

func (s *contractSuite) read(fn func(ctx context.Context, st ports.Store) error) {
	s.Require().NoError(s.tx.RunReadOnly(context.Background(), fn))
}

func (s *contractSuite) insert(contacts ...*models.Contact) {
	s.write(func(ctx context.Context, st ports.Store) error {
		for _, c := range contacts {
			if err := st.Save(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func primary(email, phone string, created time.Time) *models.Contact {
	sub := models.Submission{}
	if email != "" {
		sub.Email = ptr(email)
	}
	if phone != "" {
		sub.PhoneNumber = ptr(phone)
	}
	return models.NewPrimary(sub, created)
}

func (s *contractSuite) TestSaveAssignsIDs() {
	a := primary("a@x.com", "", epoch)
	b := primary("b@x.com", "", epoch)
	s.insert(a, b)

	s.NotZero(a.ID)
	s.Greater(b.ID, a.ID)

	s.read(func(ctx context.Context, st ports.Store) error {
		got, err := st.FindByID(ctx, a.ID)
		s.Require().NoError(err)
		s.Equal("a@x.com", *got.Email)
		s.Nil(got.PhoneNumber)
		s.Equal(models.PrecedencePrimary, got.Precedence)
		s.True(got.CreatedAt.Equal(epoch))
		return nil
	})
}

func (s *contractSuite) TestFindPrimaryMatchesOrdersOldestFirst() {
	newer := primary("a@x.com", "", epoch.Add(time.Hour))
	older := primary("", "111", epoch)
	other := primary("z@x.com", "999", epoch)
	s.insert(newer, older, other)
	s.insert(models.NewSecondary(models.Submission{Email: ptr("a@x.com")}, older.ID, epoch))

	s.read(func(ctx context.Context, st ports.Store) error {
		matches, err := st.FindPrimaryMatches(ctx, ptr("a@x.com"), ptr("111"))
		s.Require().NoError(err)
		s.Require().Len(matches, 2)
		s.Equal(older.ID, matches[0].ID)
		s.Equal(newer.ID, matches[1].ID)

		none, err := st.FindPrimaryMatches(ctx, nil, nil)
		s.Require().NoError(err)
		s.Empty(none)

		byPhone, err := st.FindPrimaryMatches(ctx, nil, ptr("111"))
		s.Require().NoError(err)
		s.Require().Len(byPhone, 1)
		s.Equal(older.ID, byPhone[0].ID)
		return nil
	})
}

func (s *contractSuite) TestTieOnCreatedAtBreaksByID() {
	first := primary("a@x.com", "", epoch)
	second := primary("", "111", epoch)
	s.insert(first, second)

	s.read(func(ctx context.Context, st ports.Store) error {
		matches, err := st.FindPrimaryMatches(ctx, ptr("a@x.com"), ptr("111"))
		s.Require().NoError(err)
		s.Require().Len(matches, 2)
		s.Equal(first.ID, matches[0].ID)
		return nil
	})
}

func (s *contractSuite) TestDeletedRowsAreInvisible() {
	gone := primary("a@x.com", "111", epoch)
	deletedAt := epoch.Add(time.Minute)
	gone.DeletedAt = &deletedAt
	live := primary("b@x.com", "", epoch)
	s.insert(gone, live)

	s.read(func(ctx context.Context, st ports.Store) error {
		matches, err := st.FindPrimaryMatches(ctx, ptr("a@x.com"), ptr("111"))
		s.Require().NoError(err)
		s.Empty(matches)

		known, err := st.EmailExists(ctx, "a@x.com")
		s.Require().NoError(err)
		s.False(known)
		known, err = st.PhoneExists(ctx, "111")
		s.Require().NoError(err)
		s.False(known)

		_, err = st.FindByID(ctx, gone.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		all, err := st.ListActive(ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 1)
		s.Equal(live.ID, all[0].ID)
		return nil
	})
}

func (s *contractSuite) TestExistsSeesSecondaries() {
	p := primary("a@x.com", "", epoch)
	s.insert(p)
	s.insert(models.NewSecondary(models.Submission{Email: ptr("b@x.com"), PhoneNumber: ptr("222")}, p.ID, epoch))

	s.read(func(ctx context.Context, st ports.Store) error {
		known, err := st.EmailExists(ctx, "b@x.com")
		s.Require().NoError(err)
		s.True(known)
		known, err = st.PhoneExists(ctx, "222")
		s.Require().NoError(err)
		s.True(known)
		known, err = st.PhoneExists(ctx, "333")
		s.Require().NoError(err)
		s.False(known)
		return nil
	})
}

func (s *contractSuite) TestDemoteAndRelinkWithinOneTransaction() {
	survivor := primary("a@x.com", "", epoch)
	absorbed := primary("b@x.com", "", epoch.Add(time.Minute))
	s.insert(survivor, absorbed)
	child := models.NewSecondary(models.Submission{Email: ptr("c@x.com")}, absorbed.ID, epoch.Add(2*time.Minute))
	s.insert(child)

	s.write(func(ctx context.Context, st ports.Store) error {
		s.Require().NoError(st.LockKeys(ctx, []string{models.GroupKey(survivor.ID), models.GroupKey(absorbed.ID)}))
		children, err := st.FindByLinkedID(ctx, absorbed.ID)
		s.Require().NoError(err)
		s.Require().Len(children, 1)

		s.Require().NoError(absorbed.DemoteTo(survivor.ID, epoch.Add(time.Hour)))
		s.Require().NoError(st.Save(ctx, absorbed))
		s.Require().NoError(children[0].RelinkTo(survivor.ID, epoch.Add(time.Hour)))
		s.Require().NoError(st.Save(ctx, children[0]))

		dangling, err := st.FindByLinkedID(ctx, absorbed.ID)
		s.Require().NoError(err)
		s.Empty(dangling, "writes are visible inside the transaction")
		return nil
	})

	s.read(func(ctx context.Context, st ports.Store) error {
		linked, err := st.FindByLinkedID(ctx, survivor.ID)
		s.Require().NoError(err)
		s.Require().Len(linked, 2)
		s.Equal(absorbed.ID, linked[0].ID)
		s.Equal(child.ID, linked[1].ID)
		return nil
	})
}

func (s *contractSuite) TestFailedTransactionRollsBack() {
	p := primary("a@x.com", "", epoch)
	s.insert(p)

	boom := errors.New("boom")
	err := s.tx.RunInTx(context.Background(), func(ctx context.Context, st ports.Store) error {
		if err := st.Save(ctx, primary("b@x.com", "", epoch)); err != nil {
			return err
		}
		other := primary("c@x.com", "", epoch)
		if err := st.Save(ctx, other); err != nil {
			return err
		}
		if err := other.DemoteTo(p.ID, epoch); err != nil {
			return err
		}
		if err := st.Save(ctx, other); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	s.read(func(ctx context.Context, st ports.Store) error {
		all, err := st.ListActive(ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 1)
		s.Equal(p.ID, all[0].ID)
		return nil
	})
}

func (s *contractSuite) TestUpdateMissingRowIsNotFound() {
	err := s.tx.RunInTx(context.Background(), func(ctx context.Context, st ports.Store) error {
		ghost := primary("a@x.com", "", epoch)
		ghost.ID = 4242
		return st.Save(ctx, ghost)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestReadOnlyRejectsWrites() {
	err := s.tx.RunReadOnly(context.Background(), func(ctx context.Context, st ports.Store) error {
		return st.Save(ctx, primary("a@x.com", "", epoch))
	})
	s.ErrorIs(err, errReadOnly)
}

func (s *contractSuite) TestCancelledContextIsRejected() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.tx.RunInTx(ctx, func(context.Context, ports.Store) error {
		called = true
		return nil
	})
	s.Require().Error(err)
	s.False(called)
}

func (s *contractSuite) TestListActiveOrdersByID() {
	s.insert(primary("c@x.com", "", epoch.Add(time.Hour)), primary("a@x.com", "", epoch), primary("b@x.com", "", epoch.Add(-time.Hour)))

	s.read(func(ctx context.Context, st ports.Store) error {
		all, err := st.ListActive(ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Less(all[0].ID, all[1].ID)
		s.Less(all[1].ID, all[2].ID)
		return nil
	})
}
