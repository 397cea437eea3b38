package service

import (
	"context"
	"fmt"
	"time"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/sentinel"
	"contactsvc/pkg/requestcontext"
)

// attempt runs one reconciliation. The submitted values are locked for the
// whole attempt; matched groups are locked inside the transaction and the
// match is re-read under those locks. A match that moved in between returns
// sentinel.ErrConflict so the caller can start over.
func (s *Service) attempt(ctx context.Context, sub models.Submission) (*models.ConsolidatedView, models.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	valueKeys := sub.LockKeys()
	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, valueKeys)
	if err != nil {
		return nil, models.Outcome{}, fmt.Errorf("acquire value locks: %w", err)
	}
	defer release()
	s.metrics.ObserveLockWait(time.Since(waitStart))

	var (
		view    *models.ConsolidatedView
		outcome models.Outcome
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		if err := store.LockKeys(ctx, valueKeys); err != nil {
			return err
		}
		matches, err := s.lockedMatches(ctx, store, sub)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		var primary *models.Contact
		switch len(matches) {
		case 0:
			primary, outcome, err = createPrimary(ctx, store, sub, now)
		case 1:
			primary = matches[0]
			outcome, err = extendGroup(ctx, store, primary, sub, now)
		default:
			primary, outcome, err = mergeGroups(ctx, store, matches, sub, now)
		}
		if err != nil {
			return err
		}

		view, err = viewOf(ctx, store, primary)
		return err
	})
	if err != nil {
		return nil, models.Outcome{}, err
	}
	return view, outcome, nil
}

// lockedMatches finds the matching primaries and holds their group locks.
func (s *Service) lockedMatches(ctx context.Context, store ports.Store, sub models.Submission) ([]*models.Contact, error) {
	matches, err := store.FindPrimaryMatches(ctx, sub.Email, sub.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	for _, m := range matches {
		if err := m.CheckInvariants(); err != nil {
			return nil, err
		}
	}

	if err := store.LockKeys(ctx, models.GroupKeys(matches)); err != nil {
		return nil, err
	}
	locked, err := store.FindPrimaryMatches(ctx, sub.Email, sub.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if !sameContacts(matches, locked) {
		return nil, fmt.Errorf("matched groups changed while locking: %w", sentinel.ErrConflict)
	}
	return locked, nil
}

func createPrimary(ctx context.Context, store ports.Store, sub models.Submission, now time.Time) (*models.Contact, models.Outcome, error) {
	primary := models.NewPrimary(sub, now)
	if err := store.Save(ctx, primary); err != nil {
		return nil, models.Outcome{}, err
	}
	return primary, models.Outcome{
		Kind:      models.OutcomeCreated,
		PrimaryID: primary.ID,
		CreatedID: primary.ID,
	}, nil
}

// extendGroup links the submission to primary when it carries a value the
// store has not seen yet.
func extendGroup(ctx context.Context, store ports.Store, primary *models.Contact, sub models.Submission, now time.Time) (models.Outcome, error) {
	outcome := models.Outcome{Kind: models.OutcomeUnchanged, PrimaryID: primary.ID}

	fresh, err := carriesNewValue(ctx, store, primary, sub)
	if err != nil || !fresh {
		return outcome, err
	}

	secondary := models.NewSecondary(sub, primary.ID, now)
	if err := store.Save(ctx, secondary); err != nil {
		return outcome, err
	}
	outcome.Kind = models.OutcomeExtended
	outcome.CreatedID = secondary.ID
	return outcome, nil
}

// carriesNewValue reports whether a present value is unknown. A value is
// known when it equals the primary's own value or appears on any active
// contact, in this group or not.
func carriesNewValue(ctx context.Context, store ports.Store, primary *models.Contact, sub models.Submission) (bool, error) {
	if sub.Email != nil && !sameValue(primary.Email, sub.Email) {
		known, err := store.EmailExists(ctx, *sub.Email)
		if err != nil {
			return false, err
		}
		if !known {
			return true, nil
		}
	}
	if sub.PhoneNumber != nil && !sameValue(primary.PhoneNumber, sub.PhoneNumber) {
		known, err := store.PhoneExists(ctx, *sub.PhoneNumber)
		if err != nil {
			return false, err
		}
		if !known {
			return true, nil
		}
	}
	return false, nil
}

// mergeGroups folds every matched group into the oldest one. Matches arrive
// oldest first.
func mergeGroups(ctx context.Context, store ports.Store, matches []*models.Contact, sub models.Submission, now time.Time) (*models.Contact, models.Outcome, error) {
	survivor := matches[0]
	outcome := models.Outcome{Kind: models.OutcomeMerged, PrimaryID: survivor.ID}

	for _, absorbed := range matches[1:] {
		children, err := store.FindByLinkedID(ctx, absorbed.ID)
		if err != nil {
			return nil, outcome, err
		}
		if err := absorbed.DemoteTo(survivor.ID, now); err != nil {
			return nil, outcome, err
		}
		if err := store.Save(ctx, absorbed); err != nil {
			return nil, outcome, err
		}
		outcome.Demoted = append(outcome.Demoted, absorbed.ID)

		for _, child := range children {
			if err := child.RelinkTo(survivor.ID, now); err != nil {
				return nil, outcome, err
			}
			if err := store.Save(ctx, child); err != nil {
				return nil, outcome, err
			}
			outcome.Relinked = append(outcome.Relinked, child.ID)
		}
	}

	if err := verifyFlattened(ctx, store, survivor.ID, outcome.Demoted); err != nil {
		return nil, outcome, err
	}

	extended, err := extendGroup(ctx, store, survivor, sub, now)
	if err != nil {
		return nil, outcome, err
	}
	outcome.CreatedID = extended.CreatedID
	return survivor, outcome, nil
}

// verifyFlattened re-reads through the store that every demoted primary now
// links to the survivor and that nothing still links to a demoted primary.
func verifyFlattened(ctx context.Context, store ports.Store, survivorID int64, demoted []int64) error {
	for _, id := range demoted {
		row, err := store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if row.IsPrimary() || row.LinkedID == nil || *row.LinkedID != survivorID {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("demoted contact %d is not linked to primary %d", id, survivorID))
		}
		dangling, err := store.FindByLinkedID(ctx, id)
		if err != nil {
			return err
		}
		if len(dangling) > 0 {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("contact %d still links to demoted primary %d", dangling[0].ID, id))
		}
	}
	return nil
}

func viewOf(ctx context.Context, store ports.Store, primary *models.Contact) (*models.ConsolidatedView, error) {
	secondaries, err := store.FindByLinkedID(ctx, primary.ID)
	if err != nil {
		return nil, err
	}
	view := buildView(primary, secondaries)
	return &view, nil
}

func sameContacts(a, b []*models.Contact) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Precedence != b[i].Precedence {
			return false
		}
	}
	return true
}

func sameValue(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
