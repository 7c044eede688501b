package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

//go:generate moq -out mocks/sender.go -pkg mocks -skip-ensure -fmt goimports . Sender

// Sender delivers a message with subject
type Sender interface {
	Send(ctx context.Context, subj, text string) error
}

// EscalatorParams configure Escalator
type EscalatorParams struct {
	Sender        Sender        // required
	Next          io.Writer     // log lines forwarded here, optional
	Host          string        // shown in messages
	Backlog       int           // recent lines included in messages
	DedupInterval time.Duration // same warning is sent once per interval
	Timeout       time.Duration // limit of a single send
}

// Escalator passes log output to the next writer and emails [WARN] and [ERROR] lines.
// It is used as lgr output writer and as lgr.L for the web server panic reports.
type Escalator struct {
	EscalatorParams
	backlog *Backlog
	sent    cache.Cache[string, struct{}]
	wg      sync.WaitGroup
}

// strips lgr timestamp and caller, leaving the message for dedup keys
var levelRe = regexp.MustCompile(`\[(WARN|ERROR)\]\s+(?:\{[^}]*\}\s+)?(.*)$`)

// NewEscalator makes escalator with defaults for unset params
func NewEscalator(p EscalatorParams) *Escalator {
	if p.Backlog <= 0 {
		p.Backlog = 20
	}
	if p.DedupInterval <= 0 {
		p.DedupInterval = 15 * time.Minute
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return &Escalator{
		EscalatorParams: p,
		backlog:         NewBacklog(p.Backlog),
		sent:            cache.NewCache[string, struct{}]().WithTTL(p.DedupInterval).WithMaxKeys(1000),
	}
}

// Write satisfies io.Writer. Never fails on send problems, these are reported to Next.
func (e *Escalator) Write(p []byte) (int, error) {
	if e.Next != nil {
		if _, err := e.Next.Write(p); err != nil {
			return 0, err
		}
	}
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		_, _ = e.backlog.Write(line)
		m := levelRe.FindSubmatch(line)
		if m == nil {
			continue
		}
		key := string(m[1]) + ":" + strings.TrimSpace(string(m[2]))
		if _, found := e.sent.Get(key); found {
			continue
		}
		e.sent.Set(key, struct{}{}, 0)
		e.escalate(string(m[1]), string(line), e.backlog.String())
	}
	return len(p), nil
}

// Logf satisfies lgr.L
func (e *Escalator) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	_, _ = e.Write([]byte(msg))
}

// Wait blocks until all pending messages are sent
func (e *Escalator) Wait() {
	e.wg.Wait()
}

func (e *Escalator) escalate(level, line, recent string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		html, err := MakeWarningHTML(e.Host, line, recent)
		if err != nil {
			e.report("can't make warning message, %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
		defer cancel()
		subj := fmt.Sprintf("Job diary %s on %s", strings.ToLower(level), e.Host)
		if err := e.Sender.Send(ctx, subj, html); err != nil {
			e.report("can't send warning email, %v", err)
		}
	}()
}

// report writes to Next only, logging via lgr would escalate the failure again
func (e *Escalator) report(format string, args ...any) {
	if e.Next == nil {
		return
	}
	_, _ = fmt.Fprintf(e.Next, "[INFO] "+format+"\n", args...)
}
