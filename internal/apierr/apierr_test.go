package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorsCarryStatusAndCode(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{name: "bad_request", err: BadRequest(errors.New("x")), status: http.StatusBadRequest, code: CodeBadRequest},
		{name: "unauthorized", err: Unauthorized(errors.New("x")), status: http.StatusUnauthorized, code: CodeUnauthorized},
		{name: "forbidden", err: Forbidden(errors.New("x")), status: http.StatusForbidden, code: CodeForbidden},
		{name: "not_found", err: NotFound(errors.New("x")), status: http.StatusNotFound, code: CodeNotFound},
		{name: "rate_limit", err: RateLimit(errors.New("x")), status: http.StatusTooManyRequests, code: CodeRateLimit},
		{name: "upstream", err: Upstream(errors.New("x")), status: http.StatusBadGateway, code: CodeUpstreamError},
		{name: "internal", err: Internal(errors.New("x")), status: http.StatusInternalServerError, code: CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Status != tc.status || tc.err.Code != tc.code {
				t.Fatalf("got status=%d code=%s, want %d %s", tc.err.Status, tc.err.Code, tc.status, tc.code)
			}
		})
	}
}

func TestFromClassifiesWrappedErrors(t *testing.T) {
	inner := NotFound(errors.New("chat gone"))
	wrapped := fmt.Errorf("while loading: %w", inner)

	ae := From(wrapped)
	if ae.Code != CodeNotFound {
		t.Fatalf("wrapped classification = %s, want not_found", ae.Code)
	}

	if ae := From(errors.New("plain")); ae.Code != CodeInternal || ae.Status != http.StatusInternalServerError {
		t.Fatalf("unclassified error = %+v, want internal 500", ae)
	}

	if From(nil) != nil {
		t.Fatal("From(nil) must be nil")
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Forbidden(fmt.Errorf("denied: %w", cause))
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause through the taxonomy wrapper")
	}
}
