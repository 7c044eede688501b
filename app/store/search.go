package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/caejd/jobdiary/app/diary"
)

// DefaultPerPage is the job list page size
const DefaultPerPage = 25

// ListQuery defines filters and paging of the job list
type ListQuery struct {
	Project      string
	User         string
	Tag          string
	Search       string // words to search for, blank means no search
	ShowObsolete bool
	Page         string // raw page number, invalid values select the first page, out of range the last
	PerPage      int
}

// JobPage is a page of jobs
type JobPage struct {
	Jobs     []diary.Job
	Number   int // current page, starting from 1
	NumPages int
	Total    int
}

// HasPrev is true if there is a page before the current one
func (p JobPage) HasPrev() bool { return p.Number > 1 }

// HasNext is true if there is a page after the current one
func (p JobPage) HasNext() bool { return p.Number < p.NumPages }

// PrevNumber is the number of the previous page
func (p JobPage) PrevNumber() int { return p.Number - 1 }

// NextNumber is the number of the next page
func (p JobPage) NextNumber() int { return p.Number + 1 }

// StartIndex is the 1-based index of the first job on the page, 0 for an empty list
func (p JobPage) StartIndex(perPage int) int {
	if p.Total == 0 {
		return 0
	}
	return (p.Number-1)*perPage + 1
}

// ListJobs returns a page of jobs ordered by id descending.
// Obsolete jobs are excluded unless ShowObsolete is set; a blank search doesn't filter.
func (s *Store) ListJobs(ctx context.Context, lq ListQuery) (JobPage, error) {
	perPage := lq.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	where, args := jobFilter(lq)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM jobs j`+where), args...); err != nil {
		return JobPage{}, fmt.Errorf("failed to count jobs: %w", err)
	}

	page := JobPage{Total: total, NumPages: max(1, (total+perPage-1)/perPage)}
	page.Number = pageNumber(lq.Page, page.NumPages)

	q := s.db.Rebind(`SELECT ` + prefixed("j.", jobColumns) + ` FROM jobs j` + where +
		` ORDER BY j.job_id DESC LIMIT ? OFFSET ?`)
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, q, append(args, perPage, (page.Number-1)*perPage)...); err != nil {
		return JobPage{}, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs, err := s.withTags(ctx, rows)
	if err != nil {
		return JobPage{}, err
	}
	page.Jobs = jobs
	return page, nil
}

// SearchJobs returns jobs having a keyword starting with each word of the query, case insensitive.
// Searching for nothing finds nothing.
func (s *Store) SearchJobs(ctx context.Context, query string) ([]diary.Job, error) {
	if len(diary.SplitSearch(query)) == 0 {
		return []diary.Job{}, nil
	}
	where, args := jobFilter(ListQuery{Search: query, ShowObsolete: true})
	q := s.db.Rebind(`SELECT ` + prefixed("j.", jobColumns) + ` FROM jobs j` + where + ` ORDER BY j.job_id DESC`)
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to search jobs for %q: %w", query, err)
	}
	return s.withTags(ctx, rows)
}

// jobFilter makes the WHERE clause for the list query
func jobFilter(lq ListQuery) (string, []any) {
	conds := []string{}
	args := []any{}

	if !lq.ShowObsolete {
		conds = append(conds, `j.result_assessment <> ?`)
		args = append(args, diary.AssessmentObsolete)
	}
	if lq.Project != "" {
		conds = append(conds, `j.project = ?`)
		args = append(args, lq.Project)
	}
	if lq.User != "" {
		conds = append(conds, `j.username = ?`)
		args = append(args, lq.User)
	}
	if lq.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM job_tags t WHERE t.job_id = j.job_id AND t.tag = ?)`)
		args = append(args, lq.Tag)
	}
	for _, w := range diary.SplitSearch(lq.Search) {
		conds = append(conds, `EXISTS (SELECT 1 FROM job_keywords k WHERE k.job_id = j.job_id AND k.word LIKE ? ESCAPE '\')`)
		args = append(args, likePrefix(w))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// withTags converts rows to jobs and loads their tags
func (s *Store) withTags(ctx context.Context, rows []jobRow) ([]diary.Job, error) {
	res := make([]diary.Job, 0, len(rows))
	if len(rows) == 0 {
		return res, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	q, args, err := sqlx.In(`SELECT job_id, tag FROM job_tags WHERE job_id IN (?) ORDER BY tag`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to make tags query: %w", err)
	}
	var links []struct {
		JobID int64  `db:"job_id"`
		Tag   string `db:"tag"`
	}
	if err := s.db.SelectContext(ctx, &links, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	tags := map[int64][]string{}
	for _, l := range links {
		tags[l.JobID] = append(tags[l.JobID], l.Tag)
	}

	for _, r := range rows {
		job := r.job()
		job.Tags = tags[r.ID]
		res = append(res, job)
	}
	return res, nil
}

// pageNumber resolves the requested page; non-numbers give the first page, out of range the last one
func pageNumber(raw string, numPages int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	if n < 1 || n > numPages {
		return numPages
	}
	return n
}

// prefixed adds the table alias to each column of the list
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
