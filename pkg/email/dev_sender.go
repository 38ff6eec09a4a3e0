package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// DevSender writes emails to disk instead of sending them. Each message
// produces an .html file and a .json file with the remaining fields.
type DevSender struct {
	dir string
	seq atomic.Uint64
}

// NewDevSender creates a sender that stores emails under dir, creating it on
// first use.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

type devEnvelope struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	BodyText  string `json:"body_text,omitempty"`
}

func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", ErrFailedToSendEmail, err)
	}

	now := time.Now()
	label := params.Tag
	if label == "" {
		label = params.Subject
	}
	base := fmt.Sprintf("%s_%04d_%s", now.Format("20060102_150405"), d.seq.Add(1), sanitizeFilename(label))

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write HTML file: %w", ErrFailedToSendEmail, err)
	}

	meta, err := json.MarshalIndent(devEnvelope{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyText:  params.BodyText,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal metadata: %w", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write JSON file: %w", ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9\-_.]`)

// sanitizeFilename lowercases s, maps spaces to underscores, drops anything
// else outside [a-z0-9-_.] and caps the result at 64 bytes.
func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "email"
	}
	return s
}
