package models

// ConsolidatedView is the externally visible aggregate of one identity group.
type ConsolidatedView struct {
	PrimaryID    int64
	Emails       []string
	PhoneNumbers []string
	SecondaryIDs []int64
}

// OutcomeKind names which branch a reconciliation took.
type OutcomeKind string

const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeExtended  OutcomeKind = "extended"
	OutcomeMerged    OutcomeKind = "merged"
	OutcomeUnchanged OutcomeKind = "unchanged"
)

// Outcome records the mutations one committed reconciliation applied.
type Outcome struct {
	Kind      OutcomeKind
	PrimaryID int64
	// CreatedID is the id of the record created by this reconciliation, if any.
	CreatedID int64
	Demoted   []int64
	Relinked  []int64
}
