// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package models defines the DTOs served by the Huddle backend and cached on
// the client: users, friends, friend requests, activities, activity types and
// the per-profile detail records.
package models

import "github.com/google/uuid"

// Person is anything that identifies a user and may reference an avatar.
// The image preloader only needs these two facts, so every DTO that points
// at a person exposes them through this interface.
type Person interface {
	PersonID() uuid.UUID
	// AvatarURL returns "" when the person has no profile picture.
	AvatarURL() string
}

// Identifiable is implemented by every entity stored in a cache table.
// Table entries are unique by this id.
type Identifiable interface {
	EntityID() uuid.UUID
}

// PeopleReferencer is implemented by DTOs that reference other people
// (an activity's creator and participants, a request's sender, ...).
type PeopleReferencer interface {
	ReferencedPeople() []Person
}

// CollectPeople flattens the people referenced by items, deduplicated by id,
// keeping the first occurrence. People without an avatar URL are skipped.
func CollectPeople[T PeopleReferencer](items []T) []Person {
	seen := make(map[uuid.UUID]struct{})
	var out []Person
	for _, item := range items {
		for _, p := range item.ReferencedPeople() {
			if p == nil || p.AvatarURL() == "" {
				continue
			}
			id := p.PersonID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
