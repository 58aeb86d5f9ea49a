package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// referralPrefix marks a /start deep-link argument as a referral.
const referralPrefix = "ref"

// UserStore is the slice of the store the user service needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetUserBlocked(ctx context.Context, id int64, blocked bool) error
	SetUserException(ctx context.Context, id int64, exempt bool) error
	CountUsers(ctx context.Context) (int, error)
	CreateReferral(ctx context.Context, userID, referredBy int64) error
	CountReferrals(ctx context.Context, referredBy int64) (int, error)
	GetOrderStats(ctx context.Context, userID int64) (*models.OrderStats, error)
	CreateChannel(ctx context.Context, ch *models.Channel) error
	ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error)
	SetChannelEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteChannel(ctx context.Context, id int64) error
}

// UserService covers referrals, user administration, and the required
// channel set.
type UserService struct {
	store  UserStore
	logger *zap.Logger
}

func NewUserService(store UserStore) *UserService {
	return &UserService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// RecordReferral parses a /start deep-link argument and records the
// referral when it names a valid, distinct referrer. Malformed or
// self-referring arguments are ignored without error; the first recorded
// referrer for a user wins.
func (s *UserService) RecordReferral(ctx context.Context, userID int64, startArg string) {
	if !strings.HasPrefix(startArg, referralPrefix) {
		return
	}
	referrerID, err := strconv.ParseInt(strings.TrimPrefix(startArg, referralPrefix), 10, 64)
	if err != nil || referrerID == userID || referrerID <= 0 {
		return
	}
	if err := s.store.CreateReferral(ctx, userID, referrerID); err != nil {
		s.logger.Warn("failed to record referral",
			zap.Int64("user_id", userID),
			zap.Int64("referred_by", referrerID),
			zap.Error(err))
		return
	}
	s.logger.Info("referral recorded",
		zap.Int64("user_id", userID),
		zap.Int64("referred_by", referrerID))
}

// ReferralArg builds the deep-link argument a user shares to refer others.
func ReferralArg(userID int64) string {
	return fmt.Sprintf("%s%d", referralPrefix, userID)
}

// Resolve looks a user up by numeric id or @username.
func (s *UserService) Resolve(ctx context.Context, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty user reference: %w", models.ErrValidation)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.store.GetUserByID(ctx, id)
	}
	return s.store.FindUserByUsername(ctx, strings.TrimPrefix(ref, "@"))
}

// Block stops a user at the gate. Admins cannot be blocked here; the
// caller checks that before resolving.
func (s *UserService) Block(ctx context.Context, ref string) (*models.User, error) {
	user, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetUserBlocked(ctx, user.ID, true); err != nil {
		return nil, err
	}
	s.logger.Info("user blocked", zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *UserService) Unblock(ctx context.Context, ref string) (*models.User, error) {
	user, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetUserBlocked(ctx, user.ID, false); err != nil {
		return nil, err
	}
	s.logger.Info("user unblocked", zap.Int64("user_id", user.ID))
	return user, nil
}

// SetException exempts a user from the channel subscription requirement.
func (s *UserService) SetException(ctx context.Context, ref string, exempt bool) (*models.User, error) {
	user, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetUserException(ctx, user.ID, exempt); err != nil {
		return nil, err
	}
	s.logger.Info("user exception set",
		zap.Int64("user_id", user.ID),
		zap.Bool("exempt", exempt))
	return user, nil
}

func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	return s.store.CountUsers(ctx)
}

// Profile returns a user together with their purchase stats and how
// many users they referred.
func (s *UserService) Profile(ctx context.Context, userID int64) (*models.User, *models.OrderStats, int, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	stats, err := s.store.GetOrderStats(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	referrals, err := s.store.CountReferrals(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	return user, stats, referrals, nil
}

// AddChannel registers a channel the gate will require while enabled.
// The reference is an @username or a numeric chat id.
func (s *UserService) AddChannel(ctx context.Context, telegramID, title string) (*models.Channel, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return nil, fmt.Errorf("empty channel reference: %w", models.ErrValidation)
	}
	if !strings.HasPrefix(telegramID, "@") {
		if _, err := strconv.ParseInt(telegramID, 10, 64); err != nil {
			return nil, fmt.Errorf("channel reference %q is neither @username nor id: %w",
				telegramID, models.ErrValidation)
		}
	}

	ch := &models.Channel{TelegramID: telegramID, Title: title, IsEnabled: true}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}
	s.logger.Info("channel added",
		zap.Int64("channel_id", ch.ID),
		zap.String("telegram_id", telegramID))
	return ch, nil
}

func (s *UserService) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return s.store.ListChannels(ctx, false)
}

func (s *UserService) SetChannelEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.store.SetChannelEnabled(ctx, id, enabled)
}

func (s *UserService) RemoveChannel(ctx context.Context, id int64) error {
	return s.store.DeleteChannel(ctx, id)
}
