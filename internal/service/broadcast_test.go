package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeBroadcastStore struct {
	targets []int64
}

func (f *fakeBroadcastStore) ListBroadcastTargets(ctx context.Context) ([]int64, error) {
	return f.targets, nil
}

type fakeSender struct {
	sent    []int64
	failFor map[int64]bool
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	if f.failFor[chatID] {
		return errors.New("bot was blocked by the user")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func TestBroadcastDeliver(t *testing.T) {
	store := &fakeBroadcastStore{targets: []int64{1, 2, 3}}
	sender := &fakeSender{failFor: map[int64]bool{2: true}}
	svc := NewBroadcastService(store, sender, &fakeEvents{}, 1000, 100, true)

	sent, failed := svc.Deliver(context.Background(), "hello")
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []int64{1, 3}, sender.sent)
}

func TestBroadcastRequestValidation(t *testing.T) {
	svc := NewBroadcastService(&fakeBroadcastStore{}, &fakeSender{}, &fakeEvents{}, 1000, 100, false)

	err := svc.Request(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestBroadcastRequestEnqueues(t *testing.T) {
	events := &fakeEvents{}
	svc := NewBroadcastService(&fakeBroadcastStore{}, &fakeSender{}, events, 1000, 100, false)

	require.NoError(t, svc.Request(context.Background(), 1, "sale!"))
	assert.Equal(t, 1, events.broadcasts)
}
