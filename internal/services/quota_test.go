package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

func seedChatWithMessages(t *testing.T, db *gorm.DB, ownerID uuid.UUID, userMessages int, age time.Duration) uuid.UUID {
	t.Helper()
	chatID := uuid.New()
	if err := db.Create(&types.Chat{ID: chatID, OwnerID: ownerID, Title: "t", Visibility: types.VisibilityPrivate}).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	parts, err := types.EncodeParts([]types.MessagePart{{Type: "text", Text: "hi"}})
	if err != nil {
		t.Fatalf("encode parts: %v", err)
	}
	for i := 0; i < userMessages; i++ {
		m := &types.Message{
			ID:        uuid.New(),
			ChatID:    chatID,
			Role:      types.RoleUser,
			Parts:     parts,
			Seq:       int64(i + 1),
			CreatedAt: time.Now().Add(-age),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
	return chatID
}

func TestQuotaCheck(t *testing.T) {
	cfg := config.QuotaConfig{Guest: 3, Registered: 5}

	cases := []struct {
		name     string
		tier     types.UserTier
		prior    int
		age      time.Duration
		wantDeny bool
	}{
		{name: "guest_under_limit", tier: types.TierGuest, prior: 2, age: time.Hour, wantDeny: false},
		{name: "guest_at_limit", tier: types.TierGuest, prior: 3, age: time.Hour, wantDeny: true},
		{name: "registered_between_limits", tier: types.TierRegistered, prior: 4, age: time.Hour, wantDeny: false},
		{name: "registered_at_limit", tier: types.TierRegistered, prior: 5, age: time.Hour, wantDeny: true},
		{name: "old_messages_do_not_count", tier: types.TierGuest, prior: 10, age: 25 * time.Hour, wantDeny: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testDB(t)
			messageRepo := repos.NewMessageRepo(db, testLogger(t))
			qs := NewQuotaService(testLogger(t), messageRepo, cfg)

			userID := uuid.New()
			seedChatWithMessages(t, db, userID, tc.prior, tc.age)

			err := qs.Check(context.Background(), userID, tc.tier)
			if tc.wantDeny {
				var ae *apierr.Error
				if !errors.As(err, &ae) || ae.Code != apierr.CodeRateLimit {
					t.Fatalf("want rate_limit error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("want allow, got %v", err)
			}
		})
	}
}

func TestQuotaCheckIgnoresAssistantMessagesAndOtherUsers(t *testing.T) {
	db := testDB(t)
	messageRepo := repos.NewMessageRepo(db, testLogger(t))
	qs := NewQuotaService(testLogger(t), messageRepo, config.QuotaConfig{Guest: 1, Registered: 2})

	userID := uuid.New()
	chatID := seedChatWithMessages(t, db, userID, 0, 0)

	parts, _ := types.EncodeParts([]types.MessagePart{{Type: "text", Text: "reply"}})
	assistant := &types.Message{ID: uuid.New(), ChatID: chatID, Role: types.RoleAssistant, Parts: parts, Seq: 100}
	if err := db.Create(assistant).Error; err != nil {
		t.Fatalf("seed assistant message: %v", err)
	}
	// A different user's traffic must not count against this one.
	seedChatWithMessages(t, db, uuid.New(), 5, time.Minute)

	if err := qs.Check(context.Background(), userID, types.TierGuest); err != nil {
		t.Fatalf("assistant or foreign messages counted: %v", err)
	}
}
