package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nhle/classroom/internal/model"
)

func TestIsAuthErrorWrapped(t *testing.T) {
	err := fmt.Errorf("listing notifications: %w", &AuthError{Message: "JWT expired"})
	if !IsAuthError(err) {
		t.Error("wrapped AuthError not detected")
	}
	if IsAuthError(errors.New("plain")) {
		t.Error("plain error reported as AuthError")
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Status: 400, Method: "GET", Path: "/rest/v1/notifications", Code: "PGRST100", Message: "bad filter"}
	want := "backend error (400) on GET /rest/v1/notifications [PGRST100]: bad filter"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name  string
		msg   model.OutgoingMessage
		field string
	}{
		{"ok", model.OutgoingMessage{SenderID: "t", RecipientIDs: []string{"s"}, Body: "hi"}, ""},
		{"no recipients", model.OutgoingMessage{SenderID: "t", Body: "hi"}, "RecipientIDs"},
		{"blank body", model.OutgoingMessage{SenderID: "t", RecipientIDs: []string{"s"}, Body: "  "}, "Body"},
		{"empty recipient", model.OutgoingMessage{SenderID: "t", RecipientIDs: []string{""}, Body: "hi"}, "RecipientIDs[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.msg)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestUnconfiguredReturnsEmptySuccess(t *testing.T) {
	var g Gateway = Unconfigured{}
	ctx := context.Background()

	ns, err := g.ListNotifications(ctx, "u", 50)
	if err != nil || len(ns) != 0 {
		t.Errorf("ListNotifications = %v, %v", ns, err)
	}
	n, err := g.UnreadNotificationCount(ctx, "u")
	if err != nil || n != 0 {
		t.Errorf("UnreadNotificationCount = %d, %v", n, err)
	}
	row, err := g.MarkNotificationRead(ctx, "x")
	if err != nil || row != nil {
		t.Errorf("MarkNotificationRead = %v, %v", row, err)
	}
	msgs, err := g.SendMessage(ctx, model.OutgoingMessage{})
	if err != nil || msgs != nil {
		t.Errorf("SendMessage = %v, %v", msgs, err)
	}
	if g.Mode() != ModeDemo {
		t.Errorf("Mode = %q", g.Mode())
	}

	s, err := Unconfigured{}.SignIn(ctx, "a@b.c", "pw")
	if err != nil || s.User.ID != model.DemoUserID {
		t.Errorf("SignIn = %+v, %v", s, err)
	}
}
