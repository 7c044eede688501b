// Package seed loads example users and jobs from a YAML file into the store.
// It is meant for demo and development instances, existing jobs are left as they are.
package seed

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/caejd/jobdiary/app/diary"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store

// Store defines storage used for seeding
type Store interface {
	EnsureUser(ctx context.Context, u diary.User) (diary.User, error)
	JobExists(ctx context.Context, id int64) (bool, error)
	CreateJob(ctx context.Context, job diary.Job) (diary.Job, error)
	AddBaseRuns(ctx context.Context, id int64, baseRuns []int64) (int, error)
}

// File is the content of a seed file
type File struct {
	Users []User `yaml:"users"`
	Jobs  []Job  `yaml:"jobs"`
}

// User is a seeded user, first and last names are derived from email
type User struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

// Job is a seeded job. Statuses use their short codes, i.e. "nor" or "don".
type Job struct {
	ID               int64                `yaml:"id"`
	MainName         string               `yaml:"main_name"`
	User             string               `yaml:"user"`
	SubDir           string               `yaml:"sub_dir"`
	SubDate          string               `yaml:"sub_date"` // local time, "2006-01-02 15:04"
	Project          string               `yaml:"project"`  // derived from sub_dir if empty
	Solver           string               `yaml:"solver"`
	Status           diary.Status         `yaml:"status"`
	AnalysisStatus   diary.AnalysisStatus `yaml:"analysis_status"`
	ResultAssessment diary.Assessment     `yaml:"result_assessment"`
	Info             string               `yaml:"info"`
	ResultSummary    string               `yaml:"result_summary"`
	Tags             []string             `yaml:"tags"`
	BaseRuns         []int64              `yaml:"base_runs"`
}

// Result counts what was stored
type Result struct {
	Users    int
	Jobs     int
	Skipped  int // jobs stored already
	BaseRuns int
}

var dateLayouts = []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339, "2006-01-02"}

// LoadFile reads and validates a seed file
func LoadFile(fname string) (File, error) {
	data, err := os.ReadFile(fname) //nolint:gosec // file name from cli
	if err != nil {
		return File{}, fmt.Errorf("can't read seed file %s: %w", fname, err)
	}
	return Parse(data)
}

// Parse decodes and validates seed data
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("can't parse seed data: %w", err)
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) validate() error {
	ids := map[int64]bool{}
	for i, j := range f.Jobs {
		if j.ID <= 0 {
			return fmt.Errorf("job #%d: id must be positive", i+1)
		}
		if ids[j.ID] {
			return fmt.Errorf("job %d: duplicate id", j.ID)
		}
		ids[j.ID] = true
		if j.MainName == "" {
			return fmt.Errorf("job %d: main_name is required", j.ID)
		}
		if j.SubDate != "" {
			if _, err := parseDate(j.SubDate); err != nil {
				return fmt.Errorf("job %d: %w", j.ID, err)
			}
		}
		for _, t := range j.Tags {
			if !diary.ValidateTag(t) {
				return fmt.Errorf("job %d: invalid tag %q", j.ID, t)
			}
		}
	}
	for i, u := range f.Users {
		if u.Username == "" {
			return fmt.Errorf("user #%d: username is required", i+1)
		}
	}
	return nil
}

// Apply stores users and jobs of the file. Jobs stored already are skipped, base runs are
// linked after all jobs are stored so they may refer to jobs later in the file.
func Apply(ctx context.Context, st Store, f File) (Result, error) {
	res := Result{}
	for _, u := range f.Users {
		if _, err := st.EnsureUser(ctx, diary.NewUser(u.Username, u.Email)); err != nil {
			return res, fmt.Errorf("can't add user %s: %w", u.Username, err)
		}
		res.Users++
	}

	for _, j := range f.Jobs {
		exists, err := st.JobExists(ctx, j.ID)
		if err != nil {
			return res, err
		}
		if exists {
			log.Printf("[INFO] job %d exists, skipped", j.ID)
			res.Skipped++
			continue
		}
		job, err := j.job()
		if err != nil {
			return res, err
		}
		if _, err := st.CreateJob(ctx, job); err != nil {
			return res, fmt.Errorf("can't add job %d: %w", j.ID, err)
		}
		log.Printf("[INFO] job %d added", j.ID)
		res.Jobs++
	}

	for _, j := range f.Jobs {
		if len(j.BaseRuns) == 0 {
			continue
		}
		n, err := st.AddBaseRuns(ctx, j.ID, j.BaseRuns)
		if err != nil {
			return res, fmt.Errorf("can't link base runs of job %d: %w", j.ID, err)
		}
		res.BaseRuns += n
	}
	return res, nil
}

func (j Job) job() (diary.Job, error) {
	res := diary.Job{
		ID:               j.ID,
		MainName:         j.MainName,
		Status:           j.Status,
		JobDir:           path.Join(j.SubDir, strconv.FormatInt(j.ID, 10)),
		SubDir:           j.SubDir,
		Username:         j.User,
		Project:          j.Project,
		Solver:           j.Solver,
		Info:             j.Info,
		AnalysisStatus:   j.AnalysisStatus,
		ResultAssessment: j.ResultAssessment,
		ResultSummary:    j.ResultSummary,
		Tags:             j.Tags,
	}
	if res.Status == "" {
		res.Status = diary.StatusPending
	}
	if j.SubDate != "" {
		ts, err := parseDate(j.SubDate)
		if err != nil {
			return diary.Job{}, fmt.Errorf("job %d: %w", j.ID, err)
		}
		res.SubDate = ts
	}
	return res, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("can't parse date %q", s)
}
