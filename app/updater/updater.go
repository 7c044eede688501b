// Package updater re-checks jobs which are not finished yet and stores status changes.
package updater

import (
	"context"
	"fmt"

	log "github.com/go-pkgz/lgr"

	"github.com/caejd/jobdiary/app/diary"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/resolver.go -pkg mocks -skip-ensure -fmt goimports . Resolver

// Store defines persistence used by the updater
type Store interface {
	UnfinishedJobs(ctx context.Context) ([]diary.Job, error)
	UpdateStatus(ctx context.Context, id int64, status diary.Status, jobDir string) error
}

// Resolver determines job status and job directory from the submission directory
type Resolver interface {
	Resolve(ctx context.Context, id int64, subDir string, recent bool) (diary.Status, string)
}

// Updater refreshes status of pending and running jobs
type Updater struct {
	Store    Store
	Resolver Resolver
}

// Update runs a single pass over unfinished jobs. A job whose files vanished gets StatusNone
// and drops out of later passes. Per-job failures are logged, the pass continues with the next job.
func (u *Updater) Update(ctx context.Context) error {
	jobs, err := u.Store.UnfinishedJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unfinished jobs: %w", err)
	}
	log.Printf("[DEBUG] updating %d unfinished jobs", len(jobs))

	changed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			log.Printf("[INFO] update pass interrupted")
			break
		}
		status, jobDir := u.Resolver.Resolve(ctx, job.ID, job.SubDir, true)
		if status == job.Status {
			continue
		}
		if err := u.Store.UpdateStatus(ctx, job.ID, status, jobDir); err != nil {
			log.Printf("[WARN] failed to update job %d: %v", job.ID, err)
			continue
		}
		log.Printf("[INFO] job %d changed from %s to %s, job dir %q", job.ID, job.Status, status, jobDir)
		changed++
	}
	if changed > 0 {
		log.Printf("[INFO] %d of %d unfinished jobs changed", changed, len(jobs))
	}
	return nil
}
