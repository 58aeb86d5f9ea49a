package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeStore struct {
	flags    map[int64]models.User // preset block/exception flags
	channels []models.Channel
	upserted []int64
}

func (f *fakeStore) UpsertUser(ctx context.Context, user *models.User) error {
	f.upserted = append(f.upserted, user.ID)
	if preset, ok := f.flags[user.ID]; ok {
		user.IsBlocked = preset.IsBlocked
		user.IsException = preset.IsException
	}
	return nil
}

func (f *fakeStore) ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error) {
	return f.channels, nil
}

type fakeMembership struct {
	member map[string]bool
	err    error
}

func (f *fakeMembership) IsChannelMember(channel string, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.member[channel], nil
}

func TestGateAllowsRegisteredUser(t *testing.T) {
	store := &fakeStore{}
	g := New(store, &fakeMembership{}, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", false)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, []int64{7}, store.upserted)
}

func TestGateHaltsBlockedUser(t *testing.T) {
	store := &fakeStore{flags: map[int64]models.User{7: {IsBlocked: true}}}
	g := New(store, &fakeMembership{}, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", false)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, HaltBlocked, decision.Reason)
}

func TestGateEscapeBypassesBlock(t *testing.T) {
	store := &fakeStore{flags: map[int64]models.User{7: {IsBlocked: true}}}
	g := New(store, &fakeMembership{}, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", true)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	// The escape still registers the user.
	assert.Equal(t, []int64{7}, store.upserted)
}

func TestGateRequiresSubscriptions(t *testing.T) {
	store := &fakeStore{channels: []models.Channel{
		{ID: 1, TelegramID: "@news", IsEnabled: true},
		{ID: 2, TelegramID: "@deals", IsEnabled: true},
	}}
	membership := &fakeMembership{member: map[string]bool{"@news": true}}
	g := New(store, membership, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", false)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, HaltSubscription, decision.Reason)
	require.Len(t, decision.Missing, 1)
	assert.Equal(t, "@deals", decision.Missing[0].TelegramID)
}

func TestGateAdminSkipsSubscriptions(t *testing.T) {
	store := &fakeStore{channels: []models.Channel{
		{ID: 1, TelegramID: "@news", IsEnabled: true},
	}}
	g := New(store, &fakeMembership{}, []int64{7})

	decision, err := g.Check(context.Background(), 7, "admin", "Admin", false)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGateExceptionSkipsSubscriptions(t *testing.T) {
	store := &fakeStore{
		flags:    map[int64]models.User{7: {IsException: true}},
		channels: []models.Channel{{ID: 1, TelegramID: "@news", IsEnabled: true}},
	}
	g := New(store, &fakeMembership{}, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", false)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGateFailsOpenOnMembershipError(t *testing.T) {
	store := &fakeStore{channels: []models.Channel{
		{ID: 1, TelegramID: "@news", IsEnabled: true},
	}}
	membership := &fakeMembership{err: errors.New("bot is not in the channel")}
	g := New(store, membership, nil)

	decision, err := g.Check(context.Background(), 7, "alice", "Alice", false)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
