package service

import (
	"fmt"
	"sort"

	"contactsvc/internal/contact/models"
	dErrors "contactsvc/pkg/domain-errors"
	pkgstrings "contactsvc/pkg/platform/strings"
)

// buildView aggregates one group. The primary's values come first, then the
// secondaries' in creation order; duplicates keep their first position.
func buildView(primary *models.Contact, secondaries []*models.Contact) models.ConsolidatedView {
	ordered := make([]*models.Contact, len(secondaries))
	copy(ordered, secondaries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	emails := make([]string, 0, len(ordered)+1)
	phones := make([]string, 0, len(ordered)+1)
	ids := make([]int64, 0, len(ordered))

	collect := func(c *models.Contact) {
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil {
			phones = append(phones, *c.PhoneNumber)
		}
	}
	collect(primary)
	for _, c := range ordered {
		collect(c)
		ids = append(ids, c.ID)
	}

	return models.ConsolidatedView{
		PrimaryID:    primary.ID,
		Emails:       pkgstrings.Unique(emails),
		PhoneNumbers: pkgstrings.Unique(phones),
		SecondaryIDs: ids,
	}
}

type group struct {
	primary     *models.Contact
	secondaries []*models.Contact
}

// groupViews partitions active contacts by effective primary and builds one
// view per group, ordered by primary id. Any contact that cannot be placed
// in a group headed by an active primary is a data-integrity violation.
func groupViews(contacts []*models.Contact) ([]models.ConsolidatedView, error) {
	groups := make(map[int64]*group)
	for _, c := range contacts {
		if err := c.CheckInvariants(); err != nil {
			return nil, err
		}
		primaryID, err := c.EffectivePrimaryID()
		if err != nil {
			return nil, err
		}
		g, ok := groups[primaryID]
		if !ok {
			g = &group{}
			groups[primaryID] = g
		}
		if c.IsPrimary() {
			g.primary = c
		} else {
			g.secondaries = append(g.secondaries, c)
		}
	}

	ids := make([]int64, 0, len(groups))
	for id, g := range groups {
		if g.primary == nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("contact %d links to %d, which is not an active primary", g.secondaries[0].ID, id))
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	views := make([]models.ConsolidatedView, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		views = append(views, buildView(g.primary, g.secondaries))
	}
	return views, nil
}
