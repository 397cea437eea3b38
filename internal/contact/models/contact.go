package models

import (
	"fmt"
	"time"

	dErrors "contactsvc/pkg/domain-errors"
)

// Precedence classifies a contact within its identity group.
type Precedence string

const (
	PrecedencePrimary   Precedence = "PRIMARY"
	PrecedenceSecondary Precedence = "SECONDARY"
)

// Contact is one submitted (email, phone) record. A SECONDARY always links
// directly to a PRIMARY by id; links are never followed through more than
// one hop.
type Contact struct {
	ID          int64      `db:"id"`
	Email       *string    `db:"email"`
	PhoneNumber *string    `db:"phone_number"`
	Precedence  Precedence `db:"link_precedence"`
	LinkedID    *int64     `db:"linked_id"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
}

// NewPrimary builds an unsaved PRIMARY carrying the submitted values verbatim.
func NewPrimary(sub Submission, now time.Time) *Contact {
	return &Contact{
		Email:       cloneString(sub.Email),
		PhoneNumber: cloneString(sub.PhoneNumber),
		Precedence:  PrecedencePrimary,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewSecondary builds an unsaved SECONDARY linked to primaryID.
func NewSecondary(sub Submission, primaryID int64, now time.Time) *Contact {
	linked := primaryID
	return &Contact{
		Email:       cloneString(sub.Email),
		PhoneNumber: cloneString(sub.PhoneNumber),
		Precedence:  PrecedenceSecondary,
		LinkedID:    &linked,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c *Contact) IsPrimary() bool {
	return c.Precedence == PrecedencePrimary
}

func (c *Contact) IsActive() bool {
	return c.DeletedAt == nil
}

// DemoteTo reclassifies a primary as a secondary of survivorID.
func (c *Contact) DemoteTo(survivorID int64, now time.Time) error {
	if !c.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("contact %d is not a primary", c.ID))
	}
	if c.ID == survivorID {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("contact %d cannot be linked to itself", c.ID))
	}
	linked := survivorID
	c.Precedence = PrecedenceSecondary
	c.LinkedID = &linked
	c.UpdatedAt = now
	return nil
}

// RelinkTo points a secondary directly at survivorID.
func (c *Contact) RelinkTo(survivorID int64, now time.Time) error {
	if c.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("contact %d is a primary and cannot be relinked", c.ID))
	}
	linked := survivorID
	c.LinkedID = &linked
	c.UpdatedAt = now
	return nil
}

// EffectivePrimaryID is the id of the group this contact belongs to.
// A secondary without a link is a data-integrity violation.
func (c *Contact) EffectivePrimaryID() (int64, error) {
	if c.IsPrimary() {
		return c.ID, nil
	}
	if c.LinkedID == nil {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("secondary contact %d has no linked primary", c.ID))
	}
	return *c.LinkedID, nil
}

// CheckInvariants validates the precedence/link pairing of one record.
func (c *Contact) CheckInvariants() error {
	switch c.Precedence {
	case PrecedencePrimary:
		if c.LinkedID != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("primary contact %d has a linked id", c.ID))
		}
	case PrecedenceSecondary:
		if c.LinkedID == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("secondary contact %d has no linked primary", c.ID))
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("contact %d has unknown precedence %q", c.ID, c.Precedence))
	}
	return nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	out := *c
	out.Email = cloneString(c.Email)
	out.PhoneNumber = cloneString(c.PhoneNumber)
	if c.LinkedID != nil {
		linked := *c.LinkedID
		out.LinkedID = &linked
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		out.DeletedAt = &deleted
	}
	return &out
}

// Before orders contacts by creation time, ties broken by lowest id. A zero
// CreatedAt sorts first.
func (c *Contact) Before(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
