// Package jobinfo determines the status and the current directory of a job from the
// content of its submission directory.
//
// A job goes through pending, running and finished, each marked by files and folders in the
// submission directory:
//   - <id>.pending folder while queued
//   - cluster script <id>.<solver>.<host>.<cpus>.sh pointing to the scratch directory while running
//   - <id> folder, or a folder renamed from it, when finished
//
// During transitions the directory may show no status for a few seconds, so recently
// submitted jobs are checked a few times before giving up.
package jobinfo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/jobfile"
)

var errUndetermined = errors.New("job status not determined")

// Resolver checks submission directories for job status markers
type Resolver struct {
	Attempts int           // checks for recent jobs, old jobs are checked once
	Delay    time.Duration // pause between checks
}

// NewResolver makes a resolver checking recent jobs attempts times, delay apart
func NewResolver(attempts int, delay time.Duration) *Resolver {
	if attempts < 1 {
		attempts = 1
	}
	return &Resolver{Attempts: attempts, Delay: delay}
}

// Resolve returns job status and job directory found in subDir.
// StatusNone with empty directory is returned if nothing could be determined or
// if the found job directory isn't a directory.
func (r *Resolver) Resolve(ctx context.Context, id int64, subDir string, recent bool) (diary.Status, string) {
	attempts := 1
	if recent && r.Attempts > 1 {
		attempts = r.Attempts
	}

	status, jobDir := diary.StatusNone, ""
	check := 0
	rptr := repeater.New(&strategy.FixedDelay{Repeats: attempts, Delay: r.Delay})
	err := rptr.Do(ctx, func() error {
		check++
		log.Printf("[DEBUG] checking %s for status of job %d, %d/%d", subDir, id, check, attempts)
		status, jobDir = r.check(id, subDir)
		if status == diary.StatusNone {
			return errUndetermined
		}
		return nil
	})
	if err != nil {
		log.Printf("[INFO] no status determined for job %d from %s", id, subDir)
		return diary.StatusNone, ""
	}
	if check > 1 {
		log.Printf("[DEBUG] status of job %d determined on check %d", id, check)
	}

	if jobDir == "" || !isDir(jobDir) {
		log.Printf("[ERROR] job dir %q of job %d is not a directory", jobDir, id)
		return diary.StatusNone, ""
	}
	log.Printf("[INFO] job %d is %s in %s", id, status, jobDir)
	return status, jobDir
}

// check looks at subDir once, in the order finished, running, pending, renamed
func (r *Resolver) check(id int64, subDir string) (diary.Status, string) {
	entries, err := os.ReadDir(subDir)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("[INFO] sub dir not found: %v", err)
		case errors.Is(err, fs.ErrPermission):
			log.Printf("[WARN] no access to sub dir: %v", err)
		default:
			log.Printf("[WARN] can't read sub dir: %v", err)
		}
		return diary.StatusNone, ""
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	idStr := strconv.FormatInt(id, 10)
	finished, pending := idStr, idStr+".pending"
	script := jobfile.FindClusterScript(id, names)

	switch {
	case slices.Contains(names, finished):
		return diary.StatusFinished, filepath.Join(subDir, finished)
	case script != "":
		dir, err := jobfile.ScratchDir(filepath.Join(subDir, script))
		if err != nil {
			log.Printf("[ERROR] can't get scratch dir of job %d: %v", id, err)
		}
		return diary.StatusRunning, dir
	case slices.Contains(names, pending):
		return diary.StatusPending, filepath.Join(subDir, pending)
	}

	for _, name := range names {
		if !IsRenamedJobFolder(id, name) {
			continue
		}
		path := filepath.Join(subDir, name)
		if isDir(path) {
			log.Printf("[DEBUG] renamed job folder %s, assuming finished", path)
			return diary.StatusFinished, path
		}
	}
	return diary.StatusNone, ""
}

// IsRenamedJobFolder checks if name starts with the job id, not followed by another digit
// (that's a different job) or by a pending suffix.
func IsRenamedJobFolder(id int64, name string) bool {
	idStr := strconv.FormatInt(id, 10)
	rest, ok := strings.CutPrefix(name, idStr)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	if rest[0] >= '0' && rest[0] <= '9' {
		return false
	}
	return !strings.HasPrefix(rest[1:], "pending")
}

// IsRecent reports whether t is within window before now. Zero time is never recent.
func IsRecent(t, now time.Time, window time.Duration) bool {
	if t.IsZero() {
		return false
	}
	return now.Sub(t) <= window
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
