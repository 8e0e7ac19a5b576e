package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

// QuotaService gates generation on the user's trailing-24h message volume.
type QuotaService interface {
	Check(ctx context.Context, userID uuid.UUID, tier types.UserTier) error
}

type quotaService struct {
	log      *logger.Logger
	messages repos.MessageRepo
	cfg      config.QuotaConfig
}

func NewQuotaService(log *logger.Logger, messages repos.MessageRepo, cfg config.QuotaConfig) QuotaService {
	return &quotaService{
		log:      log.With("service", "QuotaService"),
		messages: messages,
		cfg:      cfg,
	}
}

func (qs *quotaService) ceiling(tier types.UserTier) int64 {
	if tier == types.TierRegistered {
		return int64(qs.cfg.Registered)
	}
	return int64(qs.cfg.Guest)
}

// Check counts the user's own messages across all of their chats over the
// trailing 24 hours, before the incoming message is persisted. The ceiling is
// inclusive: a user who already sent `ceiling` messages is denied.
func (qs *quotaService) Check(ctx context.Context, userID uuid.UUID, tier types.UserTier) error {
	since := time.Now().Add(-24 * time.Hour)
	count, err := qs.messages.CountByOwnerSince(ctx, nil, userID, types.RoleUser, since)
	if err != nil {
		return apierr.Internal(fmt.Errorf("count recent messages: %w", err))
	}
	limit := qs.ceiling(tier)
	if count >= limit {
		qs.log.Debug("Quota exceeded", "user_id", userID.String(), "tier", string(tier), "count", count, "limit", limit)
		return apierr.RateLimit(fmt.Errorf("message quota of %d per 24h reached", limit))
	}
	return nil
}
