package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/types"
)

type requestDataKeyType struct{}

var requestDataKey = requestDataKeyType{}

// RequestData is the authenticated caller as seen by every service. The core
// never looks past (UserID, Tier).
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	Tier        types.UserTier
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey).(*RequestData); ok {
		return rd
	}
	return nil
}
