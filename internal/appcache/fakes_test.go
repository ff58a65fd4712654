// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package appcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/api"
	"github.com/tomtom215/huddle/internal/colors"
	"github.com/tomtom215/huddle/internal/imagecache"
	"github.com/tomtom215/huddle/internal/models"
	"github.com/tomtom215/huddle/internal/session"
	"github.com/tomtom215/huddle/internal/store"
)

// fakeAPI serves canned collections and counts calls per endpoint.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error

	friends            []models.FriendUser
	activities         []models.Activity
	activityTypes      []models.ActivityType
	recommendedFriends []models.RecommendedFriend
	friendRequests     []models.FriendRequest
	sentFriendRequests []models.SentFriendRequest
	profile            *models.BaseUser
	stats              *models.UserStats
	interests          []string
	socialMedia        *models.SocialMedia
	profileActivities  []models.ProfileActivity

	validate       map[string]api.ValidationResult
	validateErr    error
	validateInputs []map[string]time.Time
	viewers        []uuid.UUID

	// delay holds every fetch, to show callers wait for completion.
	delay time.Duration
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int), errs: make(map[string]error)}
}

func (f *fakeAPI) record(name string) error {
	f.mu.Lock()
	f.calls[name]++
	err := f.errs[name]
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeAPI) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) FetchFriends(context.Context, uuid.UUID) ([]models.FriendUser, error) {
	return f.friends, f.record(Friends)
}

func (f *fakeAPI) FetchActivities(context.Context, uuid.UUID) ([]models.Activity, error) {
	return f.activities, f.record(Activities)
}

func (f *fakeAPI) FetchActivityTypes(context.Context, uuid.UUID) ([]models.ActivityType, error) {
	return f.activityTypes, f.record(ActivityTypes)
}

func (f *fakeAPI) FetchRecommendedFriends(context.Context, uuid.UUID) ([]models.RecommendedFriend, error) {
	return f.recommendedFriends, f.record(RecommendedFriends)
}

func (f *fakeAPI) FetchIncomingFriendRequests(context.Context, uuid.UUID) ([]models.FriendRequest, error) {
	return f.friendRequests, f.record(FriendRequests)
}

func (f *fakeAPI) FetchSentFriendRequests(context.Context, uuid.UUID) ([]models.SentFriendRequest, error) {
	return f.sentFriendRequests, f.record(SentFriendRequests)
}

func (f *fakeAPI) FetchProfile(context.Context, uuid.UUID) (*models.BaseUser, error) {
	return f.profile, f.record(OtherProfiles)
}

func (f *fakeAPI) FetchProfileStats(context.Context, uuid.UUID) (*models.UserStats, error) {
	return f.stats, f.record(ProfileStats)
}

func (f *fakeAPI) FetchProfileInterests(context.Context, uuid.UUID) ([]string, error) {
	return f.interests, f.record(ProfileInterests)
}

func (f *fakeAPI) FetchProfileSocialMedia(context.Context, uuid.UUID) (*models.SocialMedia, error) {
	return f.socialMedia, f.record(ProfileSocialMedia)
}

func (f *fakeAPI) FetchProfileActivities(_ context.Context, _, viewerID uuid.UUID) ([]models.ProfileActivity, error) {
	f.mu.Lock()
	f.viewers = append(f.viewers, viewerID)
	f.mu.Unlock()
	return f.profileActivities, f.record(ProfileActivities)
}

func (f *fakeAPI) ValidateCache(_ context.Context, _ uuid.UUID, ts map[string]time.Time) (map[string]api.ValidationResult, error) {
	f.mu.Lock()
	f.validateInputs = append(f.validateInputs, ts)
	f.mu.Unlock()
	if err := f.record("validate"); err != nil {
		return nil, err
	}
	return f.validate, f.validateErr
}

func (f *fakeAPI) ClearCalendarCaches(context.Context, uuid.UUID) error {
	return f.record("clear_calendar")
}

// fakeImages records what the entity cache asks of the image cache.
type fakeImages struct {
	mu        sync.Mutex
	downloads []uuid.UUID
	urls      map[uuid.UUID]string
	refreshes []uuid.UUID
	removed   []uuid.UUID
	cleared   int

	// gate, when set, holds every GetWithRefresh after it is recorded.
	gate chan struct{}
}

func newFakeImages() *fakeImages {
	return &fakeImages{urls: make(map[uuid.UUID]string)}
}

func (f *fakeImages) DownloadAndCache(_ context.Context, url string, ownerID uuid.UUID) (*imagecache.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, ownerID)
	f.urls[ownerID] = url
	return &imagecache.Image{Data: []byte(url), Format: "png"}, nil
}

func (f *fakeImages) GetWithRefresh(_ context.Context, ownerID uuid.UUID, _ string, _ time.Duration) *imagecache.Image {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, ownerID)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return nil
}

// RefreshCount reports how often ownerID was refreshed.
func (f *fakeImages) RefreshCount(ownerID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.refreshes {
		if id == ownerID {
			n++
		}
	}
	return n
}

func (f *fakeImages) Remove(ownerID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ownerID)
}

func (f *fakeImages) ClearAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeImages) Downloaded() map[uuid.UUID]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for _, id := range f.downloads {
		out[id]++
	}
	return out
}

func (f *fakeImages) Refreshed() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.refreshes...)
}

// harness wires a Cache to fakes and an in-memory store.
type harness struct {
	cache   *Cache
	api     *fakeAPI
	images  *fakeImages
	session *session.Session
	store   *store.BadgerStore
	colors  *colors.Assigner
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := &harness{
		api:     newFakeAPI(),
		images:  newFakeImages(),
		session: session.New(),
		store:   st,
		colors:  colors.New(nil, nil),
		now:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.cache = h.open()
	t.Cleanup(h.cache.Wait)
	return h
}

// open builds a Cache over the harness dependencies.
func (h *harness) open() *Cache {
	return New(Config{Now: func() time.Time { return h.now }}, h.api, h.session, h.store, h.colors, h.images)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) login() uuid.UUID {
	user := uuid.New()
	h.session.Login(user, "token")
	return user
}

func friend(name string) models.FriendUser {
	return models.FriendUser{BaseUser: user(name)}
}

func user(name string) models.BaseUser {
	return models.BaseUser{
		ID:             uuid.New(),
		Username:       name,
		ProfilePicture: "https://cdn.example.com/" + name + ".png",
	}
}

func activity(title string, creator models.BaseUser) models.Activity {
	return models.Activity{ID: uuid.New(), Title: title, CreatorUser: creator}
}
