package handler

import "contactsvc/internal/contact/models"

// ContactResponse is the consolidated view of one identity group.
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

type ListResponse struct {
	Contacts []ContactResponse `json:"contacts"`
}

func toResponse(v models.ConsolidatedView) ContactResponse {
	resp := ContactResponse{
		PrimaryContactID:    v.PrimaryID,
		Emails:              v.Emails,
		PhoneNumbers:        v.PhoneNumbers,
		SecondaryContactIDs: v.SecondaryIDs,
	}
	// Empty lists render as [] rather than null.
	if resp.Emails == nil {
		resp.Emails = []string{}
	}
	if resp.PhoneNumbers == nil {
		resp.PhoneNumbers = []string{}
	}
	if resp.SecondaryContactIDs == nil {
		resp.SecondaryContactIDs = []int64{}
	}
	return resp
}
