// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipationStatus is the viewing user's relation to an activity.
type ParticipationStatus string

const (
	StatusParticipating    ParticipationStatus = "participating"
	StatusNotParticipating ParticipationStatus = "notParticipating"
	StatusInvited          ParticipationStatus = "invited"
	StatusCreator          ParticipationStatus = "creator"
)

// Location is where an activity takes place.
type Location struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// ChatMessage is a message posted in an activity's chat.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	SenderUser BaseUser  `json:"senderUser"`
	ActivityID uuid.UUID `json:"activityId"`
}

// Activity is an event a user created or was invited to, as shown in feeds.
type Activity struct {
	ID                  uuid.UUID           `json:"id"`
	Title               string              `json:"title,omitempty"`
	Icon                string              `json:"icon,omitempty"`
	StartTime           *time.Time          `json:"startTime,omitempty"`
	EndTime             *time.Time          `json:"endTime,omitempty"`
	Location            *Location           `json:"location,omitempty"`
	Note                string              `json:"note,omitempty"`
	ParticipantLimit    *int                `json:"participantLimit,omitempty"`
	CreatorUser         BaseUser            `json:"creatorUser"`
	ParticipantUsers    []BaseUser          `json:"participantUsers,omitempty"`
	InvitedUsers        []BaseUser          `json:"invitedUsers,omitempty"`
	ChatMessages        []ChatMessage       `json:"chatMessages,omitempty"`
	ParticipationStatus ParticipationStatus `json:"participationStatus,omitempty"`
	IsSelfOwned         bool                `json:"isSelfOwned"`
	CreatedAt           *time.Time          `json:"createdAt,omitempty"`
}

// EntityID implements Identifiable.
func (a Activity) EntityID() uuid.UUID { return a.ID }

// ReferencedPeople implements PeopleReferencer: creator, participants,
// invitees and chat message senders.
func (a Activity) ReferencedPeople() []Person {
	people := make([]Person, 0, 1+len(a.ParticipantUsers)+len(a.InvitedUsers)+len(a.ChatMessages))
	people = append(people, a.CreatorUser)
	for _, u := range a.ParticipantUsers {
		people = append(people, u)
	}
	for _, u := range a.InvitedUsers {
		people = append(people, u)
	}
	for _, m := range a.ChatMessages {
		people = append(people, m.SenderUser)
	}
	return people
}

// ProfileActivity is an activity listed on a user's profile.
type ProfileActivity struct {
	Activity
	IsPastActivity bool `json:"isPastActivity"`
}

// ActivityType is a user-defined category of activities with the friends
// usually invited to it.
type ActivityType struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Icon              string     `json:"icon,omitempty"`
	OrderNum          int        `json:"orderNum"`
	IsPinned          bool       `json:"isPinned"`
	OwnerUserID       uuid.UUID  `json:"ownerUserId"`
	AssociatedFriends []BaseUser `json:"associatedFriends,omitempty"`
}

// EntityID implements Identifiable.
func (t ActivityType) EntityID() uuid.UUID { return t.ID }

// ReferencedPeople implements PeopleReferencer.
func (t ActivityType) ReferencedPeople() []Person {
	people := make([]Person, 0, len(t.AssociatedFriends))
	for _, u := range t.AssociatedFriends {
		people = append(people, u)
	}
	return people
}
