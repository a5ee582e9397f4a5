package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/model"
)

// IMAPDeliverer appends digests to a mailbox over IMAP.
type IMAPDeliverer struct {
	host     string
	port     string
	username string
	password string
	mailbox  string
	tls      bool
}

// NewIMAPDeliverer creates a deliverer for cfg. The password comes from
// the keyring.
func NewIMAPDeliverer(cfg model.DigestConfig, password string) *IMAPDeliverer {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPDeliverer{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		username: cfg.Username,
		password: password,
		mailbox:  mailbox,
		tls:      cfg.TLS,
	}
}

// connect dials and authenticates. The caller logs out.
func (d *IMAPDeliverer) connect(_ context.Context) (*imapclient.Client, error) {
	if d.host == "" {
		return nil, &gateway.ValidationError{Field: "digest.imap_host", Reason: "is required"}
	}
	addr := d.host + ":" + d.port

	var client *imapclient.Client
	var err error

	if d.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(d.username, d.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &gateway.AuthError{
			Message: fmt.Sprintf("IMAP login failed for %s: %v", d.username, err),
		}
	}

	return client, nil
}

// Deliver appends raw to the configured mailbox as an unseen message.
func (d *IMAPDeliverer) Deliver(ctx context.Context, raw []byte) error {
	client, err := d.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(d.mailbox, int64(len(raw)), &imap.AppendOptions{Time: time.Now()})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("writing message to %s: %w", d.mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("finishing append to %s: %w", d.mailbox, err)
	}
	data, err := cmd.Wait()
	if err != nil {
		return fmt.Errorf("appending to %s: %w", d.mailbox, err)
	}

	ev := logging.Ctx(ctx).Info().Str("mailbox", d.mailbox).Int("bytes", len(raw))
	if data != nil {
		ev = ev.Uint32("uid", uint32(data.UID))
	}
	ev.Msg("digest delivered")
	return nil
}
