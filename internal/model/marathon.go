package model

import (
	"strings"
	"time"
)

// Distance is the running distance of a marathon. The create form offers
// 3k/10k/25k/42k and the edit form 5k/10k/half/full, so both sets are valid.
type Distance string

const (
	Distance3K   Distance = "3k"
	Distance5K   Distance = "5k"
	Distance10K  Distance = "10k"
	Distance25K  Distance = "25k"
	DistanceHalf Distance = "half"
	DistanceFull Distance = "full"
	Distance42K  Distance = "42k"
)

var distances = map[Distance]bool{
	Distance3K: true, Distance5K: true, Distance10K: true, Distance25K: true,
	DistanceHalf: true, DistanceFull: true, Distance42K: true,
}

// Valid reports whether d is one of the known distances.
func (d Distance) Valid() bool {
	return distances[d]
}

// SortOrder orders marathon listings by marathon start date.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// Marathon is an event listing as returned by the backend.
type Marathon struct {
	ID                    string    `json:"_id"`
	Title                 string    `json:"marathonTitle"`
	Location              string    `json:"location"`
	StartRegistrationDate Date      `json:"startRegistrationDate"`
	EndRegistrationDate   Date      `json:"endRegistrationDate"`
	MarathonStartDate     Date      `json:"marathonStartDate"`
	RunningDistance       Distance  `json:"runningDistance"`
	Description           string    `json:"description"`
	ImageURL              string    `json:"marathonImage"`
	Email                 string    `json:"email"`
	TotalRegistration     int       `json:"totalRegistration"`
	CreatedAt             time.Time `json:"createdAt,omitempty"`
}

// OwnedBy reports whether email owns the marathon.
func (m Marathon) OwnedBy(email string) bool {
	return email != "" && m.Email == email
}

// RegistrationOpen reports whether applications are still accepted at now.
// The window closes at the end of the end-registration day.
func (m Marathon) RegistrationOpen(now time.Time) bool {
	if m.EndRegistrationDate.IsZero() {
		return false
	}
	return !now.After(m.EndRegistrationDate.Add(24*time.Hour - time.Nanosecond))
}

// MarathonInput is the body of a create request.
type MarathonInput struct {
	Title                 string   `json:"marathonTitle"`
	Location              string   `json:"location"`
	StartRegistrationDate Date     `json:"startRegistrationDate"`
	EndRegistrationDate   Date     `json:"endRegistrationDate"`
	MarathonStartDate     Date     `json:"marathonStartDate"`
	RunningDistance       Distance `json:"runningDistance"`
	Description           string   `json:"description"`
	ImageURL              string   `json:"marathonImage"`
	Email                 string   `json:"email"`
}

// Normalize trims whitespace from the free-text fields.
func (in MarathonInput) Normalize() MarathonInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}

// MarathonPatch is a partial update. Nil fields are left untouched.
type MarathonPatch struct {
	Title                 *string   `json:"marathonTitle,omitempty"`
	Location              *string   `json:"location,omitempty"`
	StartRegistrationDate *Date     `json:"startRegistrationDate,omitempty"`
	EndRegistrationDate   *Date     `json:"endRegistrationDate,omitempty"`
	MarathonStartDate     *Date     `json:"marathonStartDate,omitempty"`
	RunningDistance       *Distance `json:"runningDistance,omitempty"`
	Description           *string   `json:"description,omitempty"`
	ImageURL              *string   `json:"marathonImage,omitempty"`
}

// Apply returns m with the non-nil patch fields applied.
func (p MarathonPatch) Apply(m Marathon) Marathon {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Location != nil {
		m.Location = *p.Location
	}
	if p.StartRegistrationDate != nil {
		m.StartRegistrationDate = *p.StartRegistrationDate
	}
	if p.EndRegistrationDate != nil {
		m.EndRegistrationDate = *p.EndRegistrationDate
	}
	if p.MarathonStartDate != nil {
		m.MarathonStartDate = *p.MarathonStartDate
	}
	if p.RunningDistance != nil {
		m.RunningDistance = *p.RunningDistance
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.ImageURL != nil {
		m.ImageURL = *p.ImageURL
	}
	return m
}

// Empty reports whether the patch changes nothing.
func (p MarathonPatch) Empty() bool {
	return p == MarathonPatch{}
}
