package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "anon-key", Options{RequestsPerSec: 1000, Timeout: 5 * time.Second})
}

func TestListNotificationsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rest/v1/notifications" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" || q.Get("order") != "created_at.desc" || q.Get("limit") != "50" {
			t.Errorf("query = %v", q)
		}
		if r.Header.Get("apikey") != "anon-key" || r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Errorf("headers = %v", r.Header)
		}
		_, _ = io.WriteString(w, `[
			{"id":"n2","user_id":"u1","type":"test","title":"New Test Available","message":"m","link":"/tests/9","read":false,"created_at":"2024-05-02T10:00:00+00:00"},
			{"id":"n1","user_id":"u1","type":"badge","title":"t","message":"m","link":null,"read":true,"created_at":"2024-05-01T10:00:00+00:00"}
		]`)
	})

	got, err := c.ListNotifications(context.Background(), "u1", 50)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "n2" || got[0].Link != "/tests/9" || got[0].Read {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Type != "badge" || got[1].Link != "" {
		t.Errorf("unknown type or null link not preserved: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not decoded")
	}
}

func TestMarkNotificationReadReturnsConfirmedRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Query().Get("id") != "eq.n1" {
			t.Errorf("query = %v", r.URL.Query())
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["read"] != true {
			t.Errorf("body = %v, %v", body, err)
		}
		_, _ = io.WriteString(w, `[{"id":"n1","user_id":"u1","read":true}]`)
	})

	n, err := c.MarkNotificationRead(context.Background(), "n1")
	if err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if n == nil || !n.Read {
		t.Fatalf("row = %+v", n)
	}
}

func TestMarkNotificationReadNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	n, err := c.MarkNotificationRead(context.Background(), "missing")
	if err != nil || n != nil {
		t.Fatalf("= %+v, %v; want nil, nil", n, err)
	}
}

func TestMarkAllNotificationsReadFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u1" || q.Get("read") != "eq.false" {
			t.Errorf("query = %v", q)
		}
		_, _ = io.WriteString(w, `[{"id":"a","read":true},{"id":"b","read":true}]`)
	})
	rows, err := c.MarkAllNotificationsRead(context.Background(), "u1")
	if err != nil || len(rows) != 2 {
		t.Fatalf("= %v, %v", rows, err)
	}
}

func TestUnreadNotificationCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-1/12")
	})
	n, err := c.UnreadNotificationCount(context.Background(), "u1")
	if err != nil || n != 12 {
		t.Fatalf("= %d, %v; want 12", n, err)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0-24/573", 573, true},
		{"*/0", 0, true},
		{"", 0, false},
		{"0-1/*", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseContentRange(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseContentRange(%q) = %d, %v", tt.in, got, ok)
		}
	}
}

func TestSendMessageOneRowPerRecipient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var rows []newMessage
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			t.Errorf("decoding body: %v", err)
			return
		}
		if len(rows) != 2 || rows[0].RecipientID != "s1" || rows[1].RecipientID != "s2" || rows[0].Message != "hi" {
			t.Errorf("rows = %+v", rows)
		}
		_ = json.NewEncoder(w).Encode([]model.Message{{ID: "m1"}, {ID: "m2"}})
	})
	out, err := c.SendMessage(context.Background(), model.OutgoingMessage{
		SenderID: "t1", RecipientIDs: []string{"s1", "s2"}, Body: "hi",
	})
	if err != nil || len(out) != 2 {
		t.Fatalf("= %v, %v", out, err)
	}
}

func TestSendMessageValidatesLocally(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	_, err := c.SendMessage(context.Background(), model.OutgoingMessage{SenderID: "t1", Body: "hi"})
	if !gateway.IsValidationError(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("invalid message reached the server")
	}
}

func TestListMessagesUsesDisjunction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("or"); got != "(sender_id.eq.u1,recipient_id.eq.u1)" {
			t.Errorf("or = %q", got)
		}
		_, _ = io.WriteString(w, `[]`)
	})
	if _, err := c.ListMessages(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name: "postgrest error", status: 400,
			body: `{"code":"PGRST100","message":"failed to parse filter","details":"x","hint":null}`,
			check: func(t *testing.T, err error) {
				var apiErr *gateway.APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("err = %v, want APIError", err)
				}
				if apiErr.Status != 400 || apiErr.Code != "PGRST100" || apiErr.Message != "failed to parse filter" {
					t.Errorf("APIError = %+v", apiErr)
				}
			},
		},
		{
			name: "expired jwt", status: 401,
			body: `{"code":"PGRST301","message":"JWT expired"}`,
			check: func(t *testing.T, err error) {
				if !gateway.IsAuthError(err) {
					t.Fatalf("err = %v, want AuthError", err)
				}
			},
		},
		{
			name: "plain text 502", status: 502, body: "bad gateway",
			check: func(t *testing.T, err error) {
				var apiErr *gateway.APIError
				if !errors.As(err, &apiErr) || apiErr.Message != "bad gateway" {
					t.Fatalf("err = %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.ListCourses(context.Background())
			tt.check(t, err)
		})
	}
}

func TestNoRetryOnServerError(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.ListTests(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "k", Options{RequestsPerSec: 1000, BreakerFailures: 3, BreakerCooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = c.ListCourses(context.Background())
	}
	_, err := c.ListCourses(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open circuit", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"nope"}`)
	})
	for i := 0; i < 10; i++ {
		_, err := c.ListCourses(context.Background())
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("breaker opened on 4xx after %d calls", i)
		}
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func TestSignInAdoptsSession(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, jwt.MapClaims{
		"sub":           "u1",
		"email":         "ada@example.com",
		"exp":           exp.Unix(),
		"user_metadata": map[string]any{"full_name": "Ada", "role": "teacher"},
	})

	var sawBearer string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			if r.URL.Query().Get("grant_type") != "password" {
				t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": access, "refresh_token": "r1", "expires_in": 3600})
		case "/rest/v1/courses":
			sawBearer = r.Header.Get("Authorization")
			_, _ = io.WriteString(w, `[]`)
		}
	})

	s, err := c.SignIn(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.User.ID != "u1" || s.User.Role != model.RoleTeacher || s.User.FullName != "Ada" {
		t.Errorf("user = %+v", s.User)
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, exp)
	}
	if !s.IsTeacher() {
		t.Error("IsTeacher = false")
	}

	if _, err := c.ListCourses(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sawBearer != "Bearer "+access {
		t.Errorf("Authorization = %q, want the access token", sawBearer)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	})
	_, err := c.SignIn(context.Background(), "a@b.c", "wrong")
	if !gateway.IsAuthError(err) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if !strings.Contains(err.Error(), "Invalid login credentials") {
		t.Errorf("err = %v", err)
	}
}

func TestSendOTPNeverCreatesUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["create_user"] != false {
			t.Errorf("create_user = %v", body["create_user"])
		}
	})
	if err := c.SendOTP(context.Background(), "a@b.c"); err != nil {
		t.Fatal(err)
	}
}

func TestPutAvatar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/avatars/u1/avatar.png" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-upsert") != "true" || r.Header.Get("Content-Type") != "image/png" {
			t.Errorf("headers = %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"Key":"avatars/u1/avatar.png"}`)
	})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	url, err := c.PutAvatar(context.Background(), "u1", gateway.Avatar{Data: []byte{1}, ContentType: "image/png", Ext: "png"})
	if err != nil {
		t.Fatalf("PutAvatar: %v", err)
	}
	if !strings.HasSuffix(url, "/storage/v1/object/public/avatars/u1/avatar.png?t=1700000000000") {
		t.Errorf("url = %q", url)
	}
}
