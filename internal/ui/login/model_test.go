package login

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

type fakeAuth struct {
	gateway.StaticAuth
	password string
	code     string
	otpSent  []string
}

func (a *fakeAuth) SignIn(_ context.Context, email, password string) (*model.Session, error) {
	if password != a.password {
		return nil, &gateway.AuthError{Message: "invalid login credentials"}
	}
	return &model.Session{AccessToken: "tok", User: model.User{ID: "u1", Email: email}}, nil
}

func (a *fakeAuth) SendOTP(_ context.Context, email string) error {
	a.otpSent = append(a.otpSent, email)
	return nil
}

func (a *fakeAuth) VerifyOTP(_ context.Context, email, token string) (*model.Session, error) {
	if token != a.code {
		return nil, &gateway.AuthError{Message: "token has expired or is invalid"}
	}
	return &model.Session{AccessToken: "otp", User: model.User{ID: "u1", Email: email}}, nil
}

// settle runs the non-spinner part of cmd and feeds its message back.
func settle(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Msg) {
	t.Helper()
	if cmd == nil {
		t.Fatal("no command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		msg = nil
		for _, c := range batch {
			if c == nil {
				continue
			}
			switch r := c().(type) {
			case signedInMsg, codeSentMsg:
				msg = r
			}
		}
	}
	m, next := m.Update(msg)
	if next == nil {
		return m, nil
	}
	return m, next()
}

func TestPasswordSignIn(t *testing.T) {
	auth := &fakeAuth{password: "secret"}
	m := New(auth, "ada@example.com", 80, 24)
	m.in.password = "secret"

	m, cmd := m.submitCredentials()
	if m.Step() != StepWaiting {
		t.Fatalf("step = %d, want waiting", m.Step())
	}
	if m.in.password != "" {
		t.Error("password kept after submit")
	}
	_, msg := settle(t, m, cmd)

	in, ok := msg.(LoggedInMsg)
	if !ok || in.Session.User.Email != "ada@example.com" {
		t.Errorf("got %#v, want LoggedInMsg", msg)
	}
}

func TestWrongPasswordReturnsToForm(t *testing.T) {
	m := New(&fakeAuth{password: "secret"}, "ada@example.com", 80, 24)
	m.in.password = "nope"

	m, cmd := m.submitCredentials()
	m, _ = settle(t, m, cmd)

	if m.Step() != StepCredentials {
		t.Errorf("step = %d, want credentials", m.Step())
	}
	if !strings.Contains(m.Err(), "invalid login credentials") {
		t.Errorf("err = %q", m.Err())
	}
	if !strings.Contains(m.View(), "Sign in failed") {
		t.Error("failure not shown")
	}
}

func TestOTPFlow(t *testing.T) {
	auth := &fakeAuth{code: "123456"}
	m := New(auth, "ada@example.com", 80, 24)
	m.in.method = MethodOTP

	m, cmd := m.submitCredentials()
	m, _ = settle(t, m, cmd)
	if m.Step() != StepCode {
		t.Fatalf("step = %d, want code", m.Step())
	}
	if len(auth.otpSent) != 1 || auth.otpSent[0] != "ada@example.com" {
		t.Errorf("otp sent to %v", auth.otpSent)
	}

	m.in.code = " 123456 "
	m, cmd = m.submitCode()
	_, msg := settle(t, m, cmd)
	if in, ok := msg.(LoggedInMsg); !ok || in.Session.AccessToken != "otp" {
		t.Errorf("got %#v, want LoggedInMsg", msg)
	}
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", " ada@example.com "} {
		if err := validateEmail(ok); err != nil {
			t.Errorf("validateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "   ", "not-an-email"} {
		if validateEmail(bad) == nil {
			t.Errorf("validateEmail(%q) accepted", bad)
		}
	}
}
