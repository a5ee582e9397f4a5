package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/gateway/gatewaytest"
	"github.com/nhle/classroom/internal/model"
)

func seededFake() *gatewaytest.Fake {
	f := gatewaytest.NewFake()
	f.Enrollments = []model.Enrollment{
		{ID: "e1", UserID: "s1", CourseID: "c1", Status: model.EnrollmentActive},
		{ID: "e2", UserID: "s2", CourseID: "c1", Status: model.EnrollmentActive},
		{ID: "e3", UserID: "s3", CourseID: "c1", Status: model.EnrollmentSuspended},
		{ID: "e4", UserID: "s4", CourseID: "c2", Status: model.EnrollmentActive},
	}
	return f
}

func TestPublishAssignmentNotifiesActiveEnrollmentsOnly(t *testing.T) {
	f := seededFake()
	p := gateway.NewPublisher(f)

	created, err := p.PublishAssignment(context.Background(), model.Assignment{
		CourseID: "c1", TeacherID: "t1", Title: "Essay",
	})
	if err != nil {
		t.Fatalf("PublishAssignment: %v", err)
	}
	if created == nil || created.ID == "" {
		t.Fatalf("created = %+v, want an assignment with an id", created)
	}

	got := map[string]model.Notification{}
	for _, n := range f.Notifications {
		got[n.UserID] = n
	}
	if len(got) != 2 {
		t.Fatalf("notified %d users, want 2: %+v", len(got), f.Notifications)
	}
	for _, uid := range []string{"s1", "s2"} {
		n, ok := got[uid]
		if !ok {
			t.Fatalf("user %s not notified", uid)
		}
		if n.Type != model.NotificationAssignment || n.Title != "New Assignment" {
			t.Errorf("notification = %+v", n)
		}
		if n.Message != "New assignment: Essay" {
			t.Errorf("message = %q", n.Message)
		}
		if n.Link != "/assignments/"+created.ID {
			t.Errorf("link = %q, want /assignments/%s", n.Link, created.ID)
		}
		if n.Read {
			t.Error("fan-out notification created read")
		}
	}
}

func TestPublishLinksAndTitles(t *testing.T) {
	ctx := context.Background()

	t.Run("test", func(t *testing.T) {
		f := seededFake()
		created, err := gateway.NewPublisher(f).PublishTest(ctx, model.Test{CourseID: "c1", Title: "Midterm"})
		if err != nil {
			t.Fatal(err)
		}
		n := f.Notifications[0]
		if n.Title != "New Test Available" || n.Link != "/tests/"+created.ID || n.Message != "New test: Midterm" {
			t.Errorf("notification = %+v", n)
		}
	})

	t.Run("live class", func(t *testing.T) {
		f := seededFake()
		created, err := gateway.NewPublisher(f).ScheduleLiveClass(ctx, model.LiveClass{
			CourseID: "c1", Title: "Office hours", ScheduledAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
		if created.Status != model.LiveClassScheduled {
			t.Errorf("status = %q, want scheduled", created.Status)
		}
		n := f.Notifications[0]
		if n.Title != "New Live Class Scheduled" || n.Link != "/live-classes/"+created.ID {
			t.Errorf("notification = %+v", n)
		}
	})

	t.Run("announcement", func(t *testing.T) {
		f := seededFake()
		created, err := gateway.NewPublisher(f).Announce(ctx, model.Announcement{
			CourseID: "c1", Title: "No class Friday", Content: "Enjoy the break",
		})
		if err != nil {
			t.Fatal(err)
		}
		n := f.Notifications[0]
		if n.Title != "No class Friday" || n.Message != "Enjoy the break" || n.Link != "/announcements/"+created.ID {
			t.Errorf("notification = %+v", n)
		}
	})
}

func TestPublishSurvivesFanOutFailure(t *testing.T) {
	f := seededFake()
	f.FailNotificationWrites = errors.New("insert failed")

	created, err := gateway.NewPublisher(f).PublishTest(context.Background(), model.Test{CourseID: "c1", Title: "Quiz"})
	if err != nil {
		t.Fatalf("fan-out failure must not fail publishing: %v", err)
	}
	if created == nil {
		t.Fatal("created test missing")
	}
	if len(f.Notifications) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.Notifications))
	}
}

func TestPublishCreateFailure(t *testing.T) {
	f := seededFake()
	f.Err = errors.New("down")

	if _, err := gateway.NewPublisher(f).PublishAssignment(context.Background(), model.Assignment{CourseID: "c1", Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishRequiresCourseAndTitle(t *testing.T) {
	f := seededFake()
	_, err := gateway.NewPublisher(f).PublishAssignment(context.Background(), model.Assignment{Title: "x"})
	if !gateway.IsValidationError(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if f.Calls("CreateAssignment") != 0 {
		t.Error("invalid input reached the gateway")
	}
}

func TestPublishInDemoMode(t *testing.T) {
	created, err := gateway.NewPublisher(gateway.Unconfigured{}).PublishAssignment(context.Background(), model.Assignment{CourseID: "c1", Title: "x"})
	if err != nil || created != nil {
		t.Fatalf("demo publish = %+v, %v; want nil, nil", created, err)
	}
}
