// Package gate decides whether an incoming update may reach the shop.
// Every update passes through registration, the block list, and the
// channel subscription check, in that order.
package gate

import (
	"context"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// Halt reasons reported in decisions and metrics.
const (
	HaltBlocked      = "blocked"
	HaltSubscription = "subscription"
)

// UserStore is the slice of the store the gate needs.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
	ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error)
}

// MembershipChecker answers whether a user is subscribed to a channel.
type MembershipChecker interface {
	IsChannelMember(channel string, userID int64) (bool, error)
}

// Decision is the gate's verdict for one update. When Allowed is false,
// Reason says why and Missing lists the channels still to be joined.
type Decision struct {
	Allowed bool
	Reason  string
	Missing []models.Channel
	User    *models.User
}

type Gate struct {
	store      UserStore
	membership MembershipChecker
	adminIDs   map[int64]bool
	logger     *zap.Logger
}

func New(store UserStore, membership MembershipChecker, adminIDs []int64) *Gate {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Gate{
		store:      store,
		membership: membership,
		adminIDs:   admins,
		logger:     util.GetLogger(),
	}
}

func (g *Gate) IsAdmin(userID int64) bool {
	return g.adminIDs[userID]
}

// Check runs the gate for one update. The escape flag marks commands
// like /help that must be answered even for blocked users.
//
// Registration never halts the update: if the upsert fails the user is
// treated as freshly registered and the error is only logged.
func (g *Gate) Check(ctx context.Context, userID int64, username, fullName string, escape bool) (Decision, error) {
	user := &models.User{
		ID:       userID,
		Username: username,
		FullName: fullName,
	}
	if err := g.store.UpsertUser(ctx, user); err != nil {
		g.logger.Warn("failed to register user, letting the update through",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	if escape {
		return Decision{Allowed: true, User: user}, nil
	}

	if user.IsBlocked {
		util.GateHaltsTotal.WithLabelValues(HaltBlocked).Inc()
		return Decision{Allowed: false, Reason: HaltBlocked, User: user}, nil
	}

	if g.adminIDs[userID] || user.IsException {
		return Decision{Allowed: true, User: user}, nil
	}

	missing, err := g.missingChannels(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if len(missing) > 0 {
		util.GateHaltsTotal.WithLabelValues(HaltSubscription).Inc()
		return Decision{Allowed: false, Reason: HaltSubscription, Missing: missing, User: user}, nil
	}

	return Decision{Allowed: true, User: user}, nil
}

// missingChannels returns the enabled channels the user is not in.
// A failed membership lookup counts as subscribed so a misconfigured
// channel cannot lock everyone out of the shop.
func (g *Gate) missingChannels(ctx context.Context, userID int64) ([]models.Channel, error) {
	channels, err := g.store.ListChannels(ctx, true)
	if err != nil {
		return nil, err
	}

	var missing []models.Channel
	for _, ch := range channels {
		ok, err := g.membership.IsChannelMember(ch.TelegramID, userID)
		if err != nil {
			g.logger.Warn("membership check failed, treating as subscribed",
				zap.String("channel", ch.TelegramID),
				zap.Int64("user_id", userID),
				zap.Error(err))
			continue
		}
		if !ok {
			missing = append(missing, ch)
		}
	}
	return missing, nil
}
