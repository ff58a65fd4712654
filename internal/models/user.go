// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package models

import "github.com/google/uuid"

// BaseUser is the minimal public view of a user.
type BaseUser struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Email          string    `json:"email,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"` // Avatar URL
}

// EntityID implements Identifiable.
func (u BaseUser) EntityID() uuid.UUID { return u.ID }

// PersonID implements Person.
func (u BaseUser) PersonID() uuid.UUID { return u.ID }

// AvatarURL implements Person.
func (u BaseUser) AvatarURL() string { return u.ProfilePicture }

// ReferencedPeople implements PeopleReferencer.
func (u BaseUser) ReferencedPeople() []Person { return []Person{u} }

// FriendUser is a friend of the viewing user.
type FriendUser struct {
	BaseUser
	FriendTags []string `json:"friendTags,omitempty"`
}

// RecommendedFriend is a suggested friend with the number of friends in common.
type RecommendedFriend struct {
	BaseUser
	MutualFriendCount int `json:"mutualFriendCount"`
}

// FriendRequest is an incoming friend request.
type FriendRequest struct {
	ID         uuid.UUID `json:"id"`
	SenderUser BaseUser  `json:"senderUser"`
}

// EntityID implements Identifiable.
func (r FriendRequest) EntityID() uuid.UUID { return r.ID }

// ReferencedPeople implements PeopleReferencer.
func (r FriendRequest) ReferencedPeople() []Person { return []Person{r.SenderUser} }

// SentFriendRequest is a friend request the viewing user sent.
type SentFriendRequest struct {
	ID           uuid.UUID `json:"id"`
	ReceiverUser BaseUser  `json:"receiverUser"`
}

// EntityID implements Identifiable.
func (r SentFriendRequest) EntityID() uuid.UUID { return r.ID }

// ReferencedPeople implements PeopleReferencer.
func (r SentFriendRequest) ReferencedPeople() []Person { return []Person{r.ReceiverUser} }

// UserStats are the counters shown on a profile.
type UserStats struct {
	PeopleMet         int `json:"peopleMet"`
	ActivitiesCreated int `json:"activitiesCreated"`
	ActivitiesJoined  int `json:"activitiesJoined"`
}

// SocialMedia holds the external links a user shows on their profile.
type SocialMedia struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	WhatsappLink  string    `json:"whatsappLink,omitempty"`
	InstagramLink string    `json:"instagramLink,omitempty"`
}
