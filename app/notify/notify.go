// Package notify provides warning delivery via email. Escalator watches log output and mails
// warnings and errors together with the recent log lines.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

// Service sends emails to admins
type Service struct {
	destinations []notify.Notifier
	fromEmail    string
	toEmail      []string
	host         string
}

// Params for the service
type Params struct {
	Host string // shown in messages, usually hostname
}

// SendersParams configure SMTP delivery
type SendersParams struct {
	SMTPHost     string
	SMTPPort     int
	SMTPTLS      bool
	SMTPStartTLS bool
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration
	FromEmail    string
	ToEmails     []string
}

// NewService makes email service, returns nil if no recipients set
func NewService(p Params, sp SendersParams) *Service {
	if len(sp.ToEmails) == 0 {
		return nil
	}
	email := notify.NewEmail(notify.SMTPParams{
		Host:     sp.SMTPHost,
		Port:     sp.SMTPPort,
		TLS:      sp.SMTPTLS,
		StartTLS: sp.SMTPStartTLS,
		Username: sp.SMTPUsername,
		Password: sp.SMTPPassword,
		TimeOut:  sp.SMTPTimeout,
	})
	log.Printf("[INFO] email notifications to %v via %s:%d", sp.ToEmails, sp.SMTPHost, sp.SMTPPort)
	return &Service{destinations: []notify.Notifier{email}, fromEmail: sp.FromEmail, toEmail: sp.ToEmails, host: p.Host}
}

// Send message with subject to all recipients
func (s *Service) Send(ctx context.Context, subj, text string) error {
	dest := fmt.Sprintf("mailto:%s?from=%s&subject=%s", strings.Join(s.toEmail, ","), s.fromEmail, url.QueryEscape(subj))
	return notify.Send(ctx, s.destinations, dest, text)
}

// Host returns the host name shown in messages
func (s *Service) Host() string { return s.host }

var warningTmpl = template.Must(template.New("warning").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta name="viewport" content="width=device-width" />
		<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
		<style type="text/css">
			body {
				font-family: "Arial";
				font-size: 1.0em;
			}
			pre {
				padding: 0.6em;
				font-size: 0.7em;
				background-color: #E8E2A0;
				font-family: "Menlo";
				overflow-x: auto;
				white-space: pre-wrap;
				word-wrap: break-word;
			}
			.bold {
				color: #882828;
				font-weight: 900;
			}
		</style>
	</head>

	<body>
		<p>Job diary reported a problem on <span class="bold">{{.Host}}</span> at {{.TS.Format "2006-01-02T15:04:05Z07:00"}}</p>
		<p class="bold">{{.Line}}</p>
		<p>Recent log:</p>
		<pre>
{{.Recent}}
		</pre>
	</body>
</html>
`))

// MakeWarningHTML renders the email body for a warning line and the recent log
func MakeWarningHTML(host, line, recent string) (string, error) {
	data := struct {
		Host   string
		TS     time.Time
		Line   string
		Recent string
	}{Host: host, TS: time.Now(), Line: line, Recent: recent}

	buf := bytes.Buffer{}
	if err := warningTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}
