package model

import (
	"strings"
	"time"
)

// Application is a user's registration against one marathon. The marathon
// title and start date are snapshots taken when the application was made.
type Application struct {
	ID                string    `json:"_id"`
	MarathonID        string    `json:"marathonId"`
	MarathonTitle     string    `json:"marathonTitle"`
	MarathonStartDate Date      `json:"marathonStartDate"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	ContactNumber     string    `json:"contactNumber"`
	AdditionalInfo    string    `json:"additionalInfo"`
	Email             string    `json:"email"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
}

// Matches reports whether term is a case-insensitive substring of the
// marathon title or the applicant's first or last name.
func (a Application) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.MarathonTitle), term) ||
		strings.Contains(strings.ToLower(a.FirstName), term) ||
		strings.Contains(strings.ToLower(a.LastName), term)
}

// ApplicationInput holds the applicant fields entered in the registration form.
type ApplicationInput struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ContactNumber  string `json:"contactNumber"`
	AdditionalInfo string `json:"additionalInfo"`
}

// ApplicationRequest is the body of POST /api/apply.
type ApplicationRequest struct {
	MarathonID        string `json:"marathonId"`
	MarathonTitle     string `json:"marathonTitle"`
	MarathonStartDate Date   `json:"marathonStartDate"`
	ApplicationInput
	Email string `json:"email"`
}

// ApplicationPatch is a partial update of the applicant fields.
type ApplicationPatch struct {
	FirstName      *string `json:"firstName,omitempty"`
	LastName       *string `json:"lastName,omitempty"`
	ContactNumber  *string `json:"contactNumber,omitempty"`
	AdditionalInfo *string `json:"additionalInfo,omitempty"`
}

// Apply returns a with the non-nil patch fields applied.
func (p ApplicationPatch) Apply(a Application) Application {
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.ContactNumber != nil {
		a.ContactNumber = *p.ContactNumber
	}
	if p.AdditionalInfo != nil {
		a.AdditionalInfo = *p.AdditionalInfo
	}
	return a
}
