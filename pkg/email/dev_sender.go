package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DevSender writes messages to a local outbox instead of delivering them.
// Each message lands in <dir>/<YYYY-MM-DD>/ as <id>.html plus an <id>.json
// envelope, so the copy a user would receive can be opened in a browser.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender returns a DevSender rooted at dir. The directory is created
// on the first send.
func NewDevSender(dir string) EmailSender {
	return &DevSender{dir: dir, now: time.Now}
}

// Envelope is the JSON record stored next to every outbox message.
type Envelope struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
	SendTo    string    `json:"send_to"`
	Subject   string    `json:"subject"`
	Tag       string    `json:"tag,omitempty"`
	BodyText  string    `json:"body_text,omitempty"`
	HTMLFile  string    `json:"html_file"`
}

// SendEmail stores the message and returns its outbox id.
func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	sentAt := d.now().UTC()
	id := "dev-" + uuid.NewString()
	day := filepath.Join(d.dir, sentAt.Format(time.DateOnly))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("%w: outbox: %w", ErrFailedToSendEmail, err)
	}

	htmlFile := id + ".html"
	if err := os.WriteFile(filepath.Join(day, htmlFile), []byte(params.BodyHTML), 0o644); err != nil {
		return "", fmt.Errorf("%w: outbox: %w", ErrFailedToSendEmail, err)
	}

	env, err := json.MarshalIndent(Envelope{
		MessageID: id,
		SentAt:    sentAt,
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyText:  params.BodyText,
		HTMLFile:  htmlFile,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: outbox: %w", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(day, id+".json"), env, 0o644); err != nil {
		return "", fmt.Errorf("%w: outbox: %w", ErrFailedToSendEmail, err)
	}

	return id, nil
}
