package services

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/requestdata"
	"github.com/yungbote/chatstream-backend/internal/types"
)

func newAuthService(t *testing.T) AuthService {
	t.Helper()
	db := testDB(t)
	log := testLogger(t)
	return NewAuthService(db, log, repos.NewUserRepo(db, log), "test-secret", time.Hour)
}

func TestAuthRegisterLoginRoundtrip(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, token, err := as.RegisterUser(ctx, "Someone@Example.COM", "hunter2hunter2")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if user.Email != "someone@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Tier != types.TierRegistered {
		t.Fatalf("tier = %s", user.Tier)
	}
	if user.Password == "hunter2hunter2" {
		t.Fatal("password stored in plaintext")
	}

	rctx, err := as.SetContextFromToken(ctx, token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(rctx)
	if rd == nil || rd.UserID != user.ID || rd.Tier != types.TierRegistered {
		t.Fatalf("request data mismatch: %+v", rd)
	}

	if _, _, err := as.LoginUser(ctx, "someone@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if _, _, err := as.LoginUser(ctx, "someone@example.com", "wrong"); apiCode(err) != apierr.CodeUnauthorized {
		t.Fatalf("wrong password = %v, want unauthorized", err)
	}
	if _, _, err := as.LoginUser(ctx, "nobody@example.com", "whatever"); apiCode(err) != apierr.CodeUnauthorized {
		t.Fatalf("unknown email = %v, want unauthorized", err)
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "bad_email", email: "not-an-email", password: "longenough"},
		{name: "short_password", email: "ok@example.com", password: "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := as.RegisterUser(ctx, tc.email, tc.password); apiCode(err) != apierr.CodeBadRequest {
				t.Fatalf("got %v, want bad_request", err)
			}
		})
	}

	if _, _, err := as.RegisterUser(ctx, "dup@example.com", "longenough"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, _, err := as.RegisterUser(ctx, "dup@example.com", "longenough"); apiCode(err) != apierr.CodeBadRequest {
		t.Fatal("duplicate email should be bad_request")
	}
}

func TestAuthGuestTierAndTokens(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, token, err := as.GuestUser(ctx)
	if err != nil {
		t.Fatalf("GuestUser: %v", err)
	}
	if user.Tier != types.TierGuest {
		t.Fatalf("guest tier = %s", user.Tier)
	}

	rctx, err := as.SetContextFromToken(ctx, token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(rctx)
	if rd == nil || rd.Tier != types.TierGuest {
		t.Fatalf("guest tier lost in token roundtrip: %+v", rd)
	}

	if _, err := as.SetContextFromToken(ctx, "garbage.token.here"); apiCode(err) != apierr.CodeUnauthorized {
		t.Fatal("garbage token should be unauthorized")
	}
	if _, err := as.SetContextFromToken(ctx, ""); apiCode(err) != apierr.CodeUnauthorized {
		t.Fatal("empty token should be unauthorized")
	}
}
