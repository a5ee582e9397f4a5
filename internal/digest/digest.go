// Package digest renders a user's unread notifications as a MIME email
// and optionally files it into an IMAP mailbox.
package digest

import (
	"bytes"
	"context"
	"fmt"
	htmltmpl "html/template"
	"io"
	texttmpl "text/template"
	"time"

	"github.com/emersion/go-message/mail"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

// Digest is one rendered summary.
type Digest struct {
	From          string
	To            string
	UserName      string
	Notifications []model.Notification
	GeneratedAt   time.Time
}

// Collect returns the unread entries among the user's latest limit
// notifications, newest first.
func Collect(ctx context.Context, gw gateway.NotificationGateway, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = model.DefaultNotificationLimit
	}
	all, err := gw.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	var unread []model.Notification
	for _, n := range all {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread, nil
}

// Subject returns the mail subject line.
func (d Digest) Subject() string {
	switch n := len(d.Notifications); n {
	case 0:
		return "No unread notifications"
	case 1:
		return "1 unread notification"
	default:
		return fmt.Sprintf("%d unread notifications", n)
	}
}

var funcs = map[string]any{
	"when":  func(t time.Time) string { return t.Local().Format("Jan 2, 2006 3:04 PM") },
	"label": Label,
}

var textTemplate = texttmpl.Must(texttmpl.New("text").Funcs(funcs).Parse(
	`Hi {{.UserName}},
{{if .Notifications}}
You have {{len .Notifications}} unread notification{{if gt (len .Notifications) 1}}s{{end}}:
{{range .Notifications}}
[{{label .Type}}] {{.Title}}
  {{.Message}}
  {{when .CreatedAt}}{{if .Link}} - {{.Link}}{{end}}
{{end}}{{else}}
You are all caught up.
{{end}}`))

var htmlTemplate = htmltmpl.Must(htmltmpl.New("html").Funcs(funcs).Parse(
	`<!DOCTYPE html>
<html><body>
<p>Hi {{.UserName}},</p>
{{if .Notifications}}<ul>
{{range .Notifications}}<li><strong>{{label .Type}}: {{.Title}}</strong><br>{{.Message}}<br><small>{{when .CreatedAt}}{{if .Link}} &middot; {{.Link}}{{end}}</small></li>
{{end}}</ul>{{else}}<p>You are all caught up.</p>{{end}}
</body></html>
`))

// Label returns a human readable category name.
func Label(t model.NotificationType) string {
	switch t {
	case model.NotificationAssignment:
		return "Assignment"
	case model.NotificationTest:
		return "Test"
	case model.NotificationLiveClass:
		return "Live class"
	case model.NotificationAnnouncement:
		return "Announcement"
	case model.NotificationMessage:
		return "Message"
	case model.NotificationGrade:
		return "Grade"
	default:
		return "Notice"
	}
}

// Compose writes d as a multipart message: a text and an HTML
// alternative plus the raw entries as a JSON attachment.
func Compose(w io.Writer, d Digest) error {
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now()
	}
	if d.UserName == "" {
		d.UserName = "there"
	}

	var h mail.Header
	h.SetDate(d.GeneratedAt)
	h.SetSubject(d.Subject())
	h.SetMessageID(uuid.NewString() + "@classroom.local")
	if err := setAddress(&h, "From", d.From); err != nil {
		return err
	}
	if err := setAddress(&h, "To", d.To); err != nil {
		return err
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating mail writer: %w", err)
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, d); err != nil {
		return fmt.Errorf("rendering text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, d); err != nil {
		return fmt.Errorf("rendering html body: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("creating inline part: %w", err)
	}
	if err := writeInline(iw, "text/plain", text.Bytes()); err != nil {
		return err
	}
	if err := writeInline(iw, "text/html", html.Bytes()); err != nil {
		return err
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing inline part: %w", err)
	}

	raw, err := json.MarshalIndent(d.Notifications, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding notifications: %w", err)
	}
	var ah mail.AttachmentHeader
	ah.SetContentType("application/json", nil)
	ah.SetFilename("notifications.json")
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment: %w", err)
	}
	if _, err := aw.Write(raw); err != nil {
		return fmt.Errorf("writing attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("closing attachment: %w", err)
	}

	return mw.Close()
}

func writeInline(iw *mail.InlineWriter, contentType string, body []byte) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	if _, err := pw.Write(body); err != nil {
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return pw.Close()
}

func setAddress(h *mail.Header, field, value string) error {
	if value == "" {
		return nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return &gateway.ValidationError{Field: field, Reason: fmt.Sprintf("invalid address %q", value)}
	}
	h.SetAddressList(field, []*mail.Address{addr})
	return nil
}

// Deliverer files a raw message somewhere.
type Deliverer interface {
	Deliver(ctx context.Context, raw []byte) error
}

// Send composes d and hands it to dl.
func Send(ctx context.Context, dl Deliverer, d Digest) error {
	var buf bytes.Buffer
	if err := Compose(&buf, d); err != nil {
		return err
	}
	return dl.Deliver(ctx, buf.Bytes())
}
