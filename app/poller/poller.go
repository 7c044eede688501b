// Package poller discovers new jobs from job log files appearing in the poll directory and
// adds them to the store, collecting details from the submission and job directories.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/jobfile"
	"github.com/caejd/jobdiary/app/jobinfo"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/resolver.go -pkg mocks -skip-ensure -fmt goimports . Resolver

// Store defines persistence used by the poller
type Store interface {
	JobExists(ctx context.Context, id int64) (bool, error)
	EnsureUser(ctx context.Context, u diary.User) (diary.User, error)
	CreateJob(ctx context.Context, job diary.Job) (diary.Job, error)
	AddBaseRuns(ctx context.Context, id int64, baseRuns []int64) (int, error)
}

// Resolver determines job status and job directory from the submission directory
type Resolver interface {
	Resolve(ctx context.Context, id int64, subDir string, recent bool) (diary.Status, string)
}

// Poller scans the poll directory for new job log files
type Poller struct {
	Params
	seenMu sync.Mutex
	seen   map[string]struct{} // file names of the previous pass
}

// Params of the poller
type Params struct {
	Dir          string        // directory with job log files
	Store        Store         // job storage
	Resolver     Resolver      // status resolver
	RecentWindow time.Duration // jobs submitted within this window get status rechecks
	MaxRechecks  int           // limit of status re-resolution when job files move during processing
	Now          func() time.Time
}

// New makes a poller with defaults for unset params
func New(params Params) *Poller {
	if params.RecentWindow == 0 {
		params.RecentWindow = 24 * time.Hour
	}
	if params.MaxRechecks <= 0 {
		params.MaxRechecks = 5
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Poller{Params: params, seen: map[string]struct{}{}}
}

// Poll runs a single pass over the poll directory. Files handled by previous passes are skipped,
// new ones are processed in name order. Stops between files if ctx is canceled.
func (p *Poller) Poll(ctx context.Context) error {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return fmt.Errorf("failed to list poll dir %s: %w", p.Dir, err)
	}

	// seen set of this pass: names listed before plus names processed now. Failed files and
	// files left by an interrupted pass stay out of it and are retried by the next pass.
	next := make(map[string]struct{}, len(entries))
	added := []string{}
	for _, e := range entries {
		if _, ok := p.seen[e.Name()]; ok {
			next[e.Name()] = struct{}{}
			continue
		}
		added = append(added, e.Name())
	}
	slices.Sort(added)
	if len(added) > 0 {
		log.Printf("[DEBUG] %d new files in %s", len(added), p.Dir)
	}

	for _, name := range added {
		if ctx.Err() != nil {
			log.Printf("[INFO] poll pass interrupted")
			break
		}
		path := filepath.Join(p.Dir, name)
		if !jobfile.IsJobLogName(path) || !fileExists(path) {
			log.Printf("[DEBUG] not a job log file or gone: %s", path)
			next[name] = struct{}{}
			continue
		}
		if _, err := p.ProcessJobLog(ctx, path); err != nil {
			log.Printf("[WARN] failed to process job log %s, retry on next pass: %v", path, err)
			continue
		}
		next[name] = struct{}{}
	}
	p.seen = next
	return nil
}

// ProcessJobLog creates a job from the job log file. Returns true if the job was stored.
// Jobs which can't be fully determined are skipped with a log message and no error,
// errors are returned for storage failures only.
func (p *Poller) ProcessJobLog(ctx context.Context, path string) (bool, error) {
	log.Printf("[INFO] processing job log %s", path)

	jl, err := jobfile.ParseJobLog(path)
	if err != nil {
		log.Printf("[WARN] can't read job log, no further processing possible, %v", err)
		return false, nil
	}
	if jl.ID == 0 || jl.SubDir == "" {
		log.Printf("[ERROR] no valid job id or sub dir in job log %s", path)
		return false, nil
	}

	exists, err := p.Store.JobExists(ctx, jl.ID)
	if err != nil {
		return false, err
	}
	if exists {
		log.Printf("[INFO] job %d already stored, skipped", jl.ID)
		return false, nil
	}

	recent := jobinfo.IsRecent(jl.SubmittedAt, p.Now(), p.RecentWindow)
	job := diary.Job{ID: jl.ID, SubDir: jl.SubDir, LogfilePath: path}
	var rd jobfile.Readme

	// status may change between resolving and reading the job files, moving the job dir.
	// re-resolve when files vanish.
	resolved := false
	for check := 1; check <= p.MaxRechecks && !resolved; check++ {
		job.Status, job.JobDir = p.Resolver.Resolve(ctx, jl.ID, jl.SubDir, recent)
		log.Printf("[DEBUG] job %d status %s, job dir %q, check %d", jl.ID, job.Status.Code(), job.JobDir, check)
		if job.Status == diary.StatusNone || job.JobDir == "" {
			log.Printf("[INFO] no status or job dir of job %d determined from %s, skipped", jl.ID, jl.SubDir)
			return false, nil
		}

		name, err := jobfile.FindReadme(job.JobDir)
		switch {
		case errors.Is(err, fs.ErrPermission):
			log.Printf("[WARN] no permission to read job dir, %v", err)
			return false, nil
		case err != nil:
			log.Printf("[INFO] job dir of job %d gone, status might have changed, %v", jl.ID, err)
			continue
		case name == "":
			log.Printf("[WARN] no README in job dir %s, skipped", job.JobDir)
			return false, nil
		}
		job.ReadmeFilename = name

		rd, err = jobfile.ParseReadme(filepath.Join(job.JobDir, name))
		switch {
		case errors.Is(err, fs.ErrPermission):
			log.Printf("[WARN] no permission to read README, %v", err)
			return false, nil
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("[INFO] README of job %d gone, status might have changed, %v", jl.ID, err)
			continue
		case err != nil:
			log.Printf("[ERROR] can't parse README of job %d, %v", jl.ID, err)
			return false, nil
		}
		if !rd.Complete() {
			log.Printf("[ERROR] README %s misses %v, extracted %+v", rd.Path, rd.Missing(), rd)
			return false, nil
		}
		resolved = true
	}
	if !resolved {
		log.Printf("[WARN] job %d files kept moving after %d checks, skipped", jl.ID, p.MaxRechecks)
		return false, nil
	}

	user, err := p.Store.EnsureUser(ctx, diary.NewUser(rd.Username, rd.Email))
	if err != nil {
		return false, err
	}

	job.MainName = rd.MainName
	job.Solver = rd.Solver
	job.SubDate = rd.SubDate
	job.Info = rd.InfoBlock
	job.Username = user.Username
	job.AnalysisStatus = diary.AnalysisOpen
	if _, err := p.Store.CreateJob(ctx, job); err != nil {
		return false, err
	}
	if _, err := p.Store.AddBaseRuns(ctx, job.ID, rd.BaseRuns); err != nil {
		return true, err
	}
	log.Printf("[INFO] job %d stored, status %s", job.ID, job.Status)
	return true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
