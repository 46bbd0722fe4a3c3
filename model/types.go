// Package model provides domain types shared across packages.
package model

import "time"

// UserContext identifies the user on whose behalf a query or catalog run executes.
type UserContext struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Person is an organizational contact discovered from meetings or documents.
// People are keyed by email address everywhere in the system.
type Person struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
}

// Meeting is a calendar meeting as represented in the graph store.
// Keyed by the source calendar event id.
type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Location     string    `json:"location,omitempty"`
	Organizer    string    `json:"organizer,omitempty"`
	Participants []string  `json:"participants,omitempty"`
}

// Document is a file attached to or referenced by a meeting.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// CalendarEvent is a raw event fetched from the calendar provider,
// before it is upserted into the graph store.
type CalendarEvent struct {
	GoogleEventID string    `json:"googleEventId"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Location      string    `json:"location,omitempty"`
	Organizer     string    `json:"organizer,omitempty"`
	Attendees     []string  `json:"attendees,omitempty"`
}

// UserTokens carries the OAuth credentials used to read a user's calendar.
type UserTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ConversationTurn is one question/answer exchange in a conversation session.
type ConversationTurn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
