// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package appcache

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/api"
	"github.com/tomtom215/huddle/internal/models"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// snapshots serializes every table except the named ones.
func snapshots(t *testing.T, c *Cache, except ...string) map[string][]byte {
	t.Helper()
	all := map[string]interface{}{
		Friends:            c.friends.snapshot(),
		Activities:         c.activities.snapshot(),
		ActivityTypes:      c.activityTypes.snapshot(),
		RecommendedFriends: c.recommendedFriends.snapshot(),
		FriendRequests:     c.friendRequests.snapshot(),
		SentFriendRequests: c.sentFriendRequests.snapshot(),
		OtherProfiles:      c.otherProfiles.snapshot(),
		ProfileStats:       c.profileStats.snapshot(),
		ProfileInterests:   c.profileInterests.snapshot(),
		ProfileSocialMedia: c.profileSocialMedia.snapshot(),
		ProfileActivities:  c.profileActivities.snapshot(),
	}
	out := make(map[string][]byte, len(all))
	for name, v := range all {
		if !slices.Contains(except, name) {
			out[name] = mustJSON(t, v)
		}
	}
	return out
}

func TestValidateCache_FirstRunRefreshesStandardTables(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	h.api.delay = 20 * time.Millisecond
	h.api.friends = []models.FriendUser{friend("f")}
	h.api.activities = []models.Activity{activity("a", user("c"))}
	h.api.activityTypes = []models.ActivityType{{ID: uuid.New(), Title: "Sport"}}
	h.api.recommendedFriends = []models.RecommendedFriend{{BaseUser: user("r")}}
	h.api.friendRequests = []models.FriendRequest{{ID: uuid.New(), SenderUser: user("s")}}
	h.api.sentFriendRequests = []models.SentFriendRequest{{ID: uuid.New(), ReceiverUser: user("t")}}

	h.cache.ValidateCache(context.Background())

	for _, name := range StandardTables {
		if n := h.api.Calls(name); n != 1 {
			t.Errorf("%s fetched %d times, want 1", name, n)
		}
	}
	if n := h.api.Calls("validate"); n != 0 {
		t.Errorf("first run should not call the validation endpoint, called %d", n)
	}
	if n := h.api.Calls("clear_calendar"); n != 1 {
		t.Errorf("calendar cache clears = %d, want 1", n)
	}

	// populated by the time ValidateCache returns
	if len(h.cache.Friends()) != 1 || len(h.cache.Activities()) != 1 || len(h.cache.ActivityTypes()) != 1 ||
		len(h.cache.RecommendedFriends()) != 1 || len(h.cache.FriendRequests()) != 1 || len(h.cache.SentFriendRequests()) != 1 {
		t.Error("every standard table should be populated on return")
	}
	ts := h.cache.Timestamps(me)
	for _, name := range StandardTables {
		if _, ok := ts[name]; !ok {
			t.Errorf("no timestamp for %s", name)
		}
	}
}

func TestValidateCache_SendsTimestamps(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	h.cache.UpdateFriends(me, []models.FriendUser{friend("f")})

	h.cache.ValidateCache(context.Background())

	if len(h.api.validateInputs) != 1 {
		t.Fatalf("validation calls = %d, want 1", len(h.api.validateInputs))
	}
	if got := h.api.validateInputs[0][Friends]; !got.Equal(h.now) {
		t.Errorf("sent friends timestamp %v, want %v", got, h.now)
	}
	if h.api.Calls(Friends) != 0 {
		t.Error("nothing invalid, nothing should be fetched")
	}
}

func TestValidateCache_InlineUpdateTouchesOnlyItsTable(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	p := user("p")
	h.cache.UpdateFriends(me, []models.FriendUser{friend("old")})
	h.cache.UpdateActivities(me, []models.Activity{activity("a", user("c"))})
	h.cache.UpdateOtherProfile(p.ID, p)
	h.cache.UpdateProfileInterests(p.ID, []string{"chess"})
	h.cache.Wait()

	before := snapshots(t, h.cache, Friends)
	replacement := []models.FriendUser{friend("new1"), friend("new2")}
	h.api.validate = map[string]api.ValidationResult{
		Friends:    {Invalidate: true, UpdatedItems: mustJSON(t, replacement)},
		Activities: {Invalidate: false},
	}

	h.cache.ValidateCache(context.Background())
	h.cache.Wait()

	got := h.cache.Friends()
	if len(got) != 2 || got[0].Username != "new1" || got[1].Username != "new2" {
		t.Fatalf("friends = %v, want inline payload", got)
	}
	after := snapshots(t, h.cache, Friends)
	for name, b := range before {
		if !bytes.Equal(b, after[name]) {
			t.Errorf("%s changed by an unrelated inline update", name)
		}
	}
	if n := h.api.TotalCalls() - h.api.Calls("validate") - h.api.Calls("clear_calendar"); n != 0 {
		t.Errorf("inline update should not fetch, made %d calls", n)
	}
}

func TestValidateCache_InvalidWithoutUsablePayloadRefreshes(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "no payload"},
		{name: "null payload", payload: []byte("null")},
		{name: "padded null payload", payload: []byte(" null\n")},
		{name: "malformed payload", payload: []byte(`{"not":"a list"`)},
		{name: "wrong shape", payload: []byte(`{"id":"x"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			me := h.login()
			h.cache.UpdateFriends(me, []models.FriendUser{friend("old")})
			h.api.friends = []models.FriendUser{friend("fetched")}
			h.api.validate = map[string]api.ValidationResult{
				Friends: {Invalidate: true, UpdatedItems: tt.payload},
			}

			h.cache.ValidateCache(context.Background())
			h.cache.Wait()

			if n := h.api.Calls(Friends); n != 1 {
				t.Errorf("friends fetched %d times, want 1", n)
			}
			if got := h.cache.Friends(); len(got) != 1 || got[0].Username != "fetched" {
				t.Errorf("friends = %v, want refreshed", got)
			}
		})
	}
}

func TestValidateCache_ProfileEntriesUseOwnProfile(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	h.cache.UpdateFriends(me, nil)
	self := models.BaseUser{ID: me, Username: "me"}
	h.api.stats = &models.UserStats{ActivitiesCreated: 7}
	h.api.validate = map[string]api.ValidationResult{
		OtherProfiles: {Invalidate: true, UpdatedItems: mustJSON(t, self)},
		ProfileStats:  {Invalidate: true},
	}

	h.cache.ValidateCache(context.Background())
	h.cache.Wait()

	if got := h.cache.OtherProfile(me); got == nil || got.Username != "me" {
		t.Errorf("own profile = %v", got)
	}
	if got := h.cache.ProfileStats(me); got == nil || got.ActivitiesCreated != 7 {
		t.Errorf("own stats = %v", got)
	}
}

func TestValidateCache_UnknownTypeIgnored(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	h.cache.UpdateFriends(me, []models.FriendUser{friend("f")})
	before := snapshots(t, h.cache)
	h.api.validate = map[string]api.ValidationResult{
		"calendarEvents": {Invalidate: true, UpdatedItems: []byte(`[]`)},
	}

	h.cache.ValidateCache(context.Background())
	h.cache.Wait()

	after := snapshots(t, h.cache)
	for name, b := range before {
		if !bytes.Equal(b, after[name]) {
			t.Errorf("%s changed by an unknown cache type", name)
		}
	}
}

func TestValidateCache_FailureKeepsData(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	f := friend("f")
	h.cache.UpdateFriends(me, []models.FriendUser{f})
	h.cache.Wait()
	before := snapshots(t, h.cache)
	h.api.validateErr = errors.New("503 service unavailable")

	h.cache.ValidateCache(context.Background())
	h.cache.Wait()

	after := snapshots(t, h.cache)
	for name, b := range before {
		if !bytes.Equal(b, after[name]) {
			t.Errorf("%s changed after a failed validation", name)
		}
	}
	if !slices.Contains(h.images.Refreshed(), f.ID) {
		t.Error("the picture pass should still run")
	}
}

func TestValidateCache_CalendarClearFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	h.cache.UpdateFriends(me, nil)
	h.api.errs["clear_calendar"] = errors.New("boom")

	h.cache.ValidateCache(context.Background())

	if n := h.api.Calls("validate"); n != 1 {
		t.Errorf("validation calls = %d, want 1", n)
	}
}

func TestPicturePass_VisitsEachPersonOnce(t *testing.T) {
	h := newHarness(t)
	me := h.login()
	f1, f2 := friend("f1"), friend("f2")
	noAvatar := friend("plain")
	noAvatar.ProfilePicture = ""
	p := user("profile")

	h.cache.UpdateFriends(me, []models.FriendUser{f1, f2, noAvatar})
	h.cache.UpdateFriendRequests(me, []models.FriendRequest{{ID: uuid.New(), SenderUser: f1.BaseUser}})
	h.cache.UpdateRecommendedFriends(me, []models.RecommendedFriend{{BaseUser: f2.BaseUser}})
	h.cache.UpdateOtherProfile(p.ID, p)
	h.cache.Wait()

	h.cache.ValidateCache(context.Background())
	h.cache.Wait()

	refreshed := h.images.Refreshed()
	counts := make(map[uuid.UUID]int)
	for _, id := range refreshed {
		counts[id]++
	}
	for _, id := range []uuid.UUID{f1.ID, f2.ID, p.ID} {
		if counts[id] != 1 {
			t.Errorf("%s refreshed %d times, want 1", id, counts[id])
		}
	}
	if counts[noAvatar.ID] != 0 {
		t.Error("people without an avatar should be skipped")
	}
	if len(refreshed) != 3 {
		t.Errorf("refreshed %d people, want 3", len(refreshed))
	}
}

func TestPicturePass_OnePerUser(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	release := sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	h.images.mu.Lock()
	h.images.gate = gate
	h.images.mu.Unlock()

	alice := h.login()
	ana := friend("ana")
	h.cache.UpdateFriends(alice, []models.FriendUser{ana})

	h.cache.ValidateCache(context.Background())
	eventually(t, func() bool { return h.images.RefreshCount(ana.ID) == 1 }, "alice's pass did not start")

	// a second validation for alice while her pass runs adds nothing
	h.cache.ValidateCache(context.Background())

	// switching accounts starts bob's pass next to alice's
	bob := h.login()
	ben := friend("ben")
	h.cache.UpdateFriends(bob, []models.FriendUser{ben})
	h.cache.ValidateCache(context.Background())
	eventually(t, func() bool { return h.images.RefreshCount(ben.ID) == 1 }, "bob's pass was dropped while alice's ran")

	release()
	h.cache.Wait()

	if n := h.images.RefreshCount(ana.ID); n != 1 {
		t.Errorf("ana refreshed %d times, want 1", n)
	}

	// once finished, a later validation runs a new pass
	h.cache.ValidateCache(context.Background())
	h.cache.Wait()
	if n := h.images.RefreshCount(ben.ID); n != 2 {
		t.Errorf("ben refreshed %d times, want 2", n)
	}
}
