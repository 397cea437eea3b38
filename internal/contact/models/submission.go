package models

import (
	"sort"
	"strconv"
)

// Submission is one (email, phone) pair presented for reconciliation.
// Values are matched exactly as given.
type Submission struct {
	Email       *string
	PhoneNumber *string
}

// IsEmpty reports whether neither value is present.
func (s Submission) IsEmpty() bool {
	return s.Email == nil && s.PhoneNumber == nil
}

// LockKeys returns the sorted serialization keys for the submitted values.
func (s Submission) LockKeys() []string {
	keys := make([]string, 0, 2)
	if s.Email != nil {
		keys = append(keys, EmailKey(*s.Email))
	}
	if s.PhoneNumber != nil {
		keys = append(keys, PhoneKey(*s.PhoneNumber))
	}
	sort.Strings(keys)
	return keys
}

// EmailKey is the lock key guarding one email value.
func EmailKey(email string) string {
	return "email:" + email
}

// PhoneKey is the lock key guarding one phone value.
func PhoneKey(phone string) string {
	return "phone:" + phone
}

// GroupKey is the lock key guarding the identity group rooted at primaryID.
func GroupKey(primaryID int64) string {
	return "group:" + strconv.FormatInt(primaryID, 10)
}

// GroupKeys returns sorted group keys for the given primaries.
func GroupKeys(primaries []*Contact) []string {
	keys := make([]string, 0, len(primaries))
	for _, p := range primaries {
		keys = append(keys, GroupKey(p.ID))
	}
	sort.Strings(keys)
	return keys
}
