package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/metrics"
	"github.com/nhle/classroom/internal/model"
)

// Publisher creates teacher content and notifies every active student of
// the course. Notification fan-out is best effort: its failure is logged
// and the created entity is still returned.
type Publisher struct {
	courses CourseGateway
	notes   NotificationGateway
	log     zerolog.Logger
}

// NewPublisher returns a Publisher writing through g.
func NewPublisher(g Gateway) *Publisher {
	return &Publisher{
		courses: g,
		notes:   g,
		log:     logging.WithComponent("publisher"),
	}
}

// PublishAssignment creates a and notifies enrolled students.
func (p *Publisher) PublishAssignment(ctx context.Context, a model.Assignment) (*model.Assignment, error) {
	if err := requireCourseAndTitle(a.CourseID, a.Title); err != nil {
		return nil, err
	}
	created, err := p.courses.CreateAssignment(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("creating assignment: %w", err)
	}
	if created == nil {
		return nil, nil
	}
	p.fanOut(ctx, a.CourseID, model.Notification{
		Type:    model.NotificationAssignment,
		Title:   "New Assignment",
		Message: "New assignment: " + a.Title,
		Link:    model.Link(model.RouteAssignment, created.ID),
	})
	return created, nil
}

// PublishTest creates t and notifies enrolled students.
func (p *Publisher) PublishTest(ctx context.Context, t model.Test) (*model.Test, error) {
	if err := requireCourseAndTitle(t.CourseID, t.Title); err != nil {
		return nil, err
	}
	created, err := p.courses.CreateTest(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("creating test: %w", err)
	}
	if created == nil {
		return nil, nil
	}
	p.fanOut(ctx, t.CourseID, model.Notification{
		Type:    model.NotificationTest,
		Title:   "New Test Available",
		Message: "New test: " + t.Title,
		Link:    model.Link(model.RouteTest, created.ID),
	})
	return created, nil
}

// ScheduleLiveClass creates lc and notifies enrolled students.
func (p *Publisher) ScheduleLiveClass(ctx context.Context, lc model.LiveClass) (*model.LiveClass, error) {
	if err := requireCourseAndTitle(lc.CourseID, lc.Title); err != nil {
		return nil, err
	}
	if lc.Status == "" {
		lc.Status = model.LiveClassScheduled
	}
	created, err := p.courses.ScheduleLiveClass(ctx, lc)
	if err != nil {
		return nil, fmt.Errorf("scheduling live class: %w", err)
	}
	if created == nil {
		return nil, nil
	}
	p.fanOut(ctx, lc.CourseID, model.Notification{
		Type:    model.NotificationLiveClass,
		Title:   "New Live Class Scheduled",
		Message: fmt.Sprintf("%s - %s", lc.Title, lc.ScheduledAt.Local().Format("Jan 2, 2006 3:04 PM")),
		Link:    model.Link(model.RouteLiveClass, created.ID),
	})
	return created, nil
}

// Announce creates a and notifies enrolled students.
func (p *Publisher) Announce(ctx context.Context, a model.Announcement) (*model.Announcement, error) {
	if err := requireCourseAndTitle(a.CourseID, a.Title); err != nil {
		return nil, err
	}
	created, err := p.courses.CreateAnnouncement(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("creating announcement: %w", err)
	}
	if created == nil {
		return nil, nil
	}
	p.fanOut(ctx, a.CourseID, model.Notification{
		Type:    model.NotificationAnnouncement,
		Title:   a.Title,
		Message: a.Content,
		Link:    model.Link(model.RouteAnnouncement, created.ID),
	})
	return created, nil
}

// fanOut copies tmpl to every active student of courseID and returns how
// many notifications were created.
func (p *Publisher) fanOut(ctx context.Context, courseID string, tmpl model.Notification) int {
	ids, err := p.courses.ListActiveStudentIDs(ctx, courseID)
	if err != nil {
		p.log.Warn().Err(err).Str("course", courseID).Msg("listing enrollments for fan-out")
		return 0
	}
	if len(ids) == 0 {
		p.log.Debug().Str("course", courseID).Msg("no active enrollments, nothing to notify")
		return 0
	}

	batch := make([]model.Notification, 0, len(ids))
	for _, id := range ids {
		n := tmpl
		n.UserID = id
		n.Read = false
		batch = append(batch, n)
	}

	created, err := p.notes.CreateNotifications(ctx, batch)
	if err != nil {
		p.log.Warn().Err(err).Str("course", courseID).Int("recipients", len(batch)).
			Msg("creating notifications (non-critical)")
		return 0
	}

	metrics.NotificationsFannedOut.WithLabelValues(string(tmpl.Type)).Add(float64(len(created)))
	p.log.Info().Str("course", courseID).Str("type", string(tmpl.Type)).Int("recipients", len(created)).
		Msg("notifications fanned out")
	return len(created)
}

func requireCourseAndTitle(courseID, title string) error {
	if err := requireField("course", courseID); err != nil {
		return err
	}
	return requireField("title", title)
}
