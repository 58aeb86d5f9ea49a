package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeUserStore struct {
	users     map[int64]*models.User
	byName    map[string]*models.User
	referrals map[int64]int64 // userID -> referredBy
	blocked   map[int64]bool
	channels  []models.Channel
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[int64]*models.User),
		byName:    make(map[string]*models.User),
		referrals: make(map[int64]int64),
		blocked:   make(map[int64]bool),
	}
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func (f *fakeUserStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
	}
	return u, nil
}

func (f *fakeUserStore) SetUserBlocked(ctx context.Context, id int64, blocked bool) error {
	f.blocked[id] = blocked
	return nil
}

func (f *fakeUserStore) SetUserException(ctx context.Context, id int64, exempt bool) error {
	return nil
}

func (f *fakeUserStore) CountUsers(ctx context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeUserStore) CreateReferral(ctx context.Context, userID, referredBy int64) error {
	if _, ok := f.referrals[userID]; ok {
		return nil // first referrer wins
	}
	f.referrals[userID] = referredBy
	return nil
}

func (f *fakeUserStore) CountReferrals(ctx context.Context, referredBy int64) (int, error) {
	count := 0
	for _, by := range f.referrals {
		if by == referredBy {
			count++
		}
	}
	return count, nil
}

func (f *fakeUserStore) GetOrderStats(ctx context.Context, userID int64) (*models.OrderStats, error) {
	return &models.OrderStats{}, nil
}

func (f *fakeUserStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	ch.ID = int64(len(f.channels) + 1)
	f.channels = append(f.channels, *ch)
	return nil
}

func (f *fakeUserStore) ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error) {
	return f.channels, nil
}

func (f *fakeUserStore) SetChannelEnabled(ctx context.Context, id int64, enabled bool) error {
	return nil
}

func (f *fakeUserStore) DeleteChannel(ctx context.Context, id int64) error {
	return nil
}

func TestRecordReferral(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store)
	ctx := context.Background()

	svc.RecordReferral(ctx, 7, "ref42")
	assert.Equal(t, int64(42), store.referrals[7])

	// The first referrer wins.
	svc.RecordReferral(ctx, 7, "ref99")
	assert.Equal(t, int64(42), store.referrals[7])
}

func TestRecordReferralIgnoresGarbage(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store)
	ctx := context.Background()

	svc.RecordReferral(ctx, 7, "ref7")      // self-referral
	svc.RecordReferral(ctx, 7, "refabc")    // not a number
	svc.RecordReferral(ctx, 7, "ref-3")     // non-positive
	svc.RecordReferral(ctx, 7, "discount5") // not a referral arg
	assert.Empty(t, store.referrals)
}

func TestReferralArgRoundTrip(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store)

	svc.RecordReferral(context.Background(), 7, ReferralArg(42))
	assert.Equal(t, int64(42), store.referrals[7])
}

func TestResolve(t *testing.T) {
	store := newFakeUserStore()
	store.users[7] = &models.User{ID: 7, Username: "alice"}
	store.byName["alice"] = store.users[7]
	svc := NewUserService(store)
	ctx := context.Background()

	byID, err := svc.Resolve(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), byID.ID)

	byName, err := svc.Resolve(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(7), byName.ID)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.Resolve(ctx, "@nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddChannelValidation(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store)
	ctx := context.Background()

	ch, err := svc.AddChannel(ctx, "@news", "News")
	require.NoError(t, err)
	assert.True(t, ch.IsEnabled)

	_, err = svc.AddChannel(ctx, "-1001234567890", "Private")
	require.NoError(t, err)

	_, err = svc.AddChannel(ctx, "news", "")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.AddChannel(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}
