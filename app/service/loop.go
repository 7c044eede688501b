// Package service runs the background components as scheduled loops. Each loop runs its task
// once on start, then on a cron schedule and on manual triggers. Passes never overlap,
// requests arriving while a pass runs are coalesced into the next one.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"
)

//go:generate moq -out mocks/cron.go -pkg mocks -skip-ensure -fmt goimports . Cron

// Cron interface defines basic robfig/cron methods used by service
type Cron interface {
	Start()
	Stop() context.Context
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
}

// Task is a single pass of a component, like poll or update
type Task func(ctx context.Context) error

// Loop runs Task on schedule
type Loop struct {
	Name string // used in logs and state
	Spec string // cron spec, descriptors like "@every 5s" supported
	Task Task
	Cron Cron // optional, cron.New() by default

	once    sync.Once
	pending chan struct{}

	mu    sync.Mutex
	state State
}

// State of the loop reported to the web ui
type State struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Runs     int       `json:"runs"`
	Running  bool      `json:"running"`
	LastRun  time.Time `json:"last_run"`
	Duration string    `json:"duration"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

func (l *Loop) init() {
	l.once.Do(func() {
		l.pending = make(chan struct{}, 1)
		l.state = State{Name: l.Name, Spec: l.Spec}
	})
}

// Do runs the loop, blocking until ctx is canceled. The current pass completes before return.
func (l *Loop) Do(ctx context.Context) error {
	l.init()
	sched, err := cron.ParseStandard(l.Spec)
	if err != nil {
		return fmt.Errorf("can't parse schedule %q of %s: %w", l.Spec, l.Name, err)
	}
	if l.Cron == nil {
		l.Cron = cron.New()
	}

	id := l.Cron.Schedule(sched, cron.FuncJob(func() {
		if !l.Trigger() {
			log.Printf("[DEBUG] %s pass already queued, tick skipped", l.Name)
		}
	}))
	l.setNext(sched.Next(time.Now()))
	log.Printf("[INFO] %s loop started, schedule %q (%v)", l.Name, l.Spec, id)

	l.Cron.Start()
	defer func() {
		<-l.Cron.Stop().Done()
		log.Printf("[INFO] %s loop stopped", l.Name)
	}()

	l.run(ctx) // first pass right away
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.pending:
			l.run(ctx)
			l.setNext(sched.Next(time.Now()))
		}
	}
}

// Trigger requests a pass as soon as possible. Returns false if a pass is already waiting.
func (l *Loop) Trigger() bool {
	l.init()
	select {
	case l.pending <- struct{}{}:
		return true
	default:
		return false
	}
}

// State returns a copy of the loop state
func (l *Loop) State() State {
	l.init()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	st := time.Now()
	l.mu.Lock()
	l.state.Running = true
	l.mu.Unlock()

	err := l.Task(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Running = false
	l.state.Runs++
	l.state.LastRun = st
	l.state.Duration = time.Since(st).Truncate(time.Millisecond).String()
	l.state.LastErr = ""
	if err != nil {
		l.state.LastErr = err.Error()
		log.Printf("[WARN] %s pass failed, %v", l.Name, err)
		return
	}
	log.Printf("[DEBUG] %s pass completed in %s", l.Name, l.state.Duration)
}

func (l *Loop) setNext(t time.Time) {
	l.mu.Lock()
	l.state.NextRun = t
	l.mu.Unlock()
}
