package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"

	"github.com/caejd/jobdiary/app/diary"
)

const jobColumns = `job_id, main_name, job_status, job_dir, sub_date, sub_dir, username, project, solver,
	logfile_path, readme_filename, info, analysis_status, result_assessment, result_summary,
	keyword_string, created_at, updated_at`

// jobRow is a jobs table row
type jobRow struct {
	ID               int64                `db:"job_id"`
	MainName         string               `db:"main_name"`
	Status           diary.Status         `db:"job_status"`
	JobDir           string               `db:"job_dir"`
	SubDate          int64                `db:"sub_date"`
	SubDir           string               `db:"sub_dir"`
	Username         sql.NullString       `db:"username"`
	Project          string               `db:"project"`
	Solver           string               `db:"solver"`
	LogfilePath      string               `db:"logfile_path"`
	ReadmeFilename   string               `db:"readme_filename"`
	Info             string               `db:"info"`
	AnalysisStatus   diary.AnalysisStatus `db:"analysis_status"`
	ResultAssessment diary.Assessment     `db:"result_assessment"`
	ResultSummary    string               `db:"result_summary"`
	KeywordString    string               `db:"keyword_string"`
	CreatedAt        int64                `db:"created_at"`
	UpdatedAt        int64                `db:"updated_at"`
}

func (r jobRow) job() diary.Job {
	res := diary.Job{
		ID:               r.ID,
		MainName:         r.MainName,
		Status:           r.Status,
		JobDir:           r.JobDir,
		SubDir:           r.SubDir,
		Username:         r.Username.String,
		Project:          r.Project,
		Solver:           r.Solver,
		LogfilePath:      r.LogfilePath,
		ReadmeFilename:   r.ReadmeFilename,
		Info:             r.Info,
		AnalysisStatus:   r.AnalysisStatus,
		ResultAssessment: r.ResultAssessment,
		ResultSummary:    r.ResultSummary,
		KeywordString:    r.KeywordString,
	}
	if r.SubDate != 0 {
		res.SubDate = time.Unix(r.SubDate, 0)
	}
	if r.CreatedAt != 0 {
		res.CreatedAt = time.Unix(r.CreatedAt, 0)
	}
	if r.UpdatedAt != 0 {
		res.UpdatedAt = time.Unix(r.UpdatedAt, 0)
	}
	return res
}

func newJobRow(j diary.Job) jobRow {
	row := jobRow{
		ID:               j.ID,
		MainName:         j.MainName,
		Status:           j.Status,
		JobDir:           j.JobDir,
		SubDir:           j.SubDir,
		Username:         sql.NullString{String: j.Username, Valid: j.Username != ""},
		Project:          j.Project,
		Solver:           j.Solver,
		LogfilePath:      j.LogfilePath,
		ReadmeFilename:   j.ReadmeFilename,
		Info:             j.Info,
		AnalysisStatus:   j.AnalysisStatus,
		ResultAssessment: j.ResultAssessment,
		ResultSummary:    j.ResultSummary,
		KeywordString:    j.KeywordString,
		CreatedAt:        j.CreatedAt.Unix(),
		UpdatedAt:        j.UpdatedAt.Unix(),
	}
	if !j.SubDate.IsZero() {
		row.SubDate = j.SubDate.Unix()
	}
	if row.Status == "" {
		row.Status = diary.StatusNone
	}
	if row.AnalysisStatus == "" {
		row.AnalysisStatus = diary.AnalysisOpen
	}
	return row
}

// JobExists checks if the job is stored already
func (s *Store) JobExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE job_id = ?`), id); err != nil {
		return false, fmt.Errorf("failed to check job %d: %w", id, err)
	}
	return count > 0, nil
}

// CreateJob stores a new job. The project is derived from the submission directory if empty,
// keywords and timestamps are set. The user row is created if missing.
func (s *Store) CreateJob(ctx context.Context, job diary.Job) (diary.Job, error) {
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Project == "" {
		job.Project = diary.ProjectFromPath(job.SubDir)
	}
	if job.SubDate.IsZero() {
		job.SubDate = now
	}
	job.KeywordString = job.BuildKeywordString()

	err := s.transact(ctx, func(tx *sqlx.Tx) error {
		if job.Username != "" {
			if err := insertUser(ctx, tx, diary.User{Username: job.Username}); err != nil {
				return err
			}
		}
		q := `INSERT INTO jobs (` + jobColumns + `) VALUES (:job_id, :main_name, :job_status, :job_dir, :sub_date,
			:sub_dir, :username, :project, :solver, :logfile_path, :readme_filename, :info, :analysis_status,
			:result_assessment, :result_summary, :keyword_string, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, newJobRow(job)); err != nil {
			return fmt.Errorf("failed to insert job %d: %w", job.ID, err)
		}
		if err := syncKeywords(ctx, tx, job.ID, job.Keywords()); err != nil {
			return err
		}
		return setTags(ctx, tx, job.ID, job.Tags)
	})
	if err != nil {
		return diary.Job{}, err
	}
	log.Printf("[DEBUG] job %d created, status %s", job.ID, job.Status.Code())
	return job, nil
}

// GetJob returns a job with its base runs and tags
func (s *Store) GetJob(ctx context.Context, id int64) (diary.Job, error) {
	job, err := getJob(ctx, s.db, id)
	if err != nil {
		return diary.Job{}, err
	}

	if err := s.db.SelectContext(ctx, &job.BaseRuns,
		s.db.Rebind(`SELECT base_run_id FROM base_runs WHERE job_id = ? ORDER BY base_run_id`), id); err != nil {
		return diary.Job{}, fmt.Errorf("failed to load base runs of job %d: %w", id, err)
	}
	if err := s.db.SelectContext(ctx, &job.Tags,
		s.db.Rebind(`SELECT tag FROM job_tags WHERE job_id = ? ORDER BY tag`), id); err != nil {
		return diary.Job{}, fmt.Errorf("failed to load tags of job %d: %w", id, err)
	}
	return job, nil
}

// UnfinishedJobs returns pending and running jobs, the only ones whose status may still change
func (s *Store) UnfinishedJobs(ctx context.Context) ([]diary.Job, error) {
	var rows []jobRow
	q := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE job_status IN (?, ?) ORDER BY job_id`)
	if err := s.db.SelectContext(ctx, &rows, q, diary.StatusPending, diary.StatusRunning); err != nil {
		return nil, fmt.Errorf("failed to load unfinished jobs: %w", err)
	}
	res := make([]diary.Job, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.job())
	}
	return res, nil
}

// UpdateStatus sets status and job directory, keywords follow the new status
func (s *Store) UpdateStatus(ctx context.Context, id int64, status diary.Status, jobDir string) error {
	return s.transact(ctx, func(tx *sqlx.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		job.Status, job.JobDir = status, jobDir
		return updateJob(ctx, tx, job)
	})
}

// Annotations are the job fields editable by users
type Annotations struct {
	Status           diary.Status
	Info             string
	AnalysisStatus   diary.AnalysisStatus
	ResultAssessment diary.Assessment
	ResultSummary    string
	Tags             []string
}

// UpdateAnnotations saves user edits of a job. Tags are created if missing and replace the current set.
func (s *Store) UpdateAnnotations(ctx context.Context, id int64, a Annotations) error {
	for _, t := range a.Tags {
		if !diary.ValidateTag(t) {
			return fmt.Errorf("%q: %w", t, ErrInvalidTag)
		}
	}
	return s.transact(ctx, func(tx *sqlx.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		job.Status = a.Status
		job.Info = a.Info
		job.AnalysisStatus = a.AnalysisStatus
		job.ResultAssessment = a.ResultAssessment
		job.ResultSummary = a.ResultSummary
		if err := updateJob(ctx, tx, job); err != nil {
			return err
		}
		return setTags(ctx, tx, id, a.Tags)
	})
}

// AddBaseRuns links the job to its base runs. Ids of jobs not in the store are skipped.
// Returns the number of linked base runs.
func (s *Store) AddBaseRuns(ctx context.Context, id int64, baseRuns []int64) (int, error) {
	added := 0
	err := s.transact(ctx, func(tx *sqlx.Tx) error {
		for _, br := range baseRuns {
			var count int
			if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM jobs WHERE job_id = ?`), br); err != nil {
				return fmt.Errorf("failed to check base run %d: %w", br, err)
			}
			if count == 0 {
				log.Printf("[DEBUG] no job %d stored, can't add it as base run of %d", br, id)
				continue
			}
			q := tx.Rebind(`INSERT INTO base_runs (job_id, base_run_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
			if _, err := tx.ExecContext(ctx, q, id, br); err != nil {
				return fmt.Errorf("failed to add base run %d to job %d: %w", br, id, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// queryer is implemented by both sqlx.DB and sqlx.Tx
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getJob(ctx context.Context, q queryer, id int64) (diary.Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return diary.Job{}, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return diary.Job{}, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return row.job(), nil
}

// updateJob writes mutable fields of the job, rebuilding keywords and the update time
func updateJob(ctx context.Context, tx *sqlx.Tx, job diary.Job) error {
	job.UpdatedAt = time.Now()
	if job.Project == "" {
		job.Project = diary.ProjectFromPath(job.SubDir)
	}
	job.KeywordString = job.BuildKeywordString()

	q := `UPDATE jobs SET job_status = :job_status, job_dir = :job_dir, project = :project, info = :info,
		analysis_status = :analysis_status, result_assessment = :result_assessment,
		result_summary = :result_summary, keyword_string = :keyword_string, updated_at = :updated_at
		WHERE job_id = :job_id`
	if _, err := tx.NamedExecContext(ctx, q, newJobRow(job)); err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}
	return syncKeywords(ctx, tx, job.ID, job.Keywords())
}

// syncKeywords makes the job's keyword associations match words, adding and removing links as needed.
// Words are stored lower-cased, sql LOWER folds ascii only.
func syncKeywords(ctx context.Context, tx *sqlx.Tx, id int64, words []string) error {
	words = lowerWords(words)
	var current []string
	if err := tx.SelectContext(ctx, &current, tx.Rebind(`SELECT word FROM job_keywords WHERE job_id = ?`), id); err != nil {
		return fmt.Errorf("failed to load keywords of job %d: %w", id, err)
	}

	for _, w := range words {
		if slices.Contains(current, w) {
			continue
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO keywords (word) VALUES (?) ON CONFLICT DO NOTHING`), w); err != nil {
			return fmt.Errorf("failed to add keyword %q: %w", w, err)
		}
		q := tx.Rebind(`INSERT INTO job_keywords (job_id, word) VALUES (?, ?) ON CONFLICT DO NOTHING`)
		if _, err := tx.ExecContext(ctx, q, id, w); err != nil {
			return fmt.Errorf("failed to link keyword %q to job %d: %w", w, id, err)
		}
	}

	for _, w := range current {
		if slices.Contains(words, w) {
			continue
		}
		q := tx.Rebind(`DELETE FROM job_keywords WHERE job_id = ? AND word = ?`)
		if _, err := tx.ExecContext(ctx, q, id, w); err != nil {
			return fmt.Errorf("failed to unlink keyword %q from job %d: %w", w, id, err)
		}
	}
	return nil
}

// lowerWords returns sorted unique lower-cased words
func lowerWords(words []string) []string {
	res := make([]string, 0, len(words))
	for _, w := range words {
		res = append(res, strings.ToLower(w))
	}
	slices.Sort(res)
	return slices.Compact(res)
}

// setTags replaces the tags of a job, creating missing tags
func setTags(ctx context.Context, tx *sqlx.Tx, id int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM job_tags WHERE job_id = ?`), id); err != nil {
		return fmt.Errorf("failed to clear tags of job %d: %w", id, err)
	}
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO tags (tag) VALUES (?) ON CONFLICT DO NOTHING`), t); err != nil {
			return fmt.Errorf("failed to create tag %q: %w", t, err)
		}
		q := tx.Rebind(`INSERT INTO job_tags (job_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`)
		if _, err := tx.ExecContext(ctx, q, id, t); err != nil {
			return fmt.Errorf("failed to tag job %d with %q: %w", id, t, err)
		}
	}
	return nil
}
