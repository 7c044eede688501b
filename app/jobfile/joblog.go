// Package jobfile reads the files the cluster queue leaves behind for a job: job log files
// written to the central poll directory on submission, cluster scripts placed in the
// submission directory while a job runs, and the job README stored in the job directory.
// All of them keep their information in colon separated key-value lines.
package jobfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
)

// JobLogDateLayout is the layout of submission_time values in job log files, e.g. "Fri Jul 27 08:28:38 2018"
const JobLogDateLayout = "Mon Jan 2 15:04:05 2006"

var jobLogNameRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}__\d{2}:\d{2}:\d{2}-\d+\.log$`)

// JobLog holds the fields of interest from a job log file
type JobLog struct {
	Path        string
	ID          int64     // job_number, 0 if not found
	SubDir      string    // sge_o_workdir, empty if not found
	SubmittedAt time.Time // submission_time, zero if not found or malformed
}

// IsJobLogName checks if the base name of path matches job log naming,
// like 2010-01-02__12:34:56-1234567.log
func IsJobLogName(path string) bool {
	return jobLogNameRe.MatchString(filepath.Base(path))
}

// ParseJobLog reads job id, submission directory and submission time from the job log file.
// Invalid UTF-8 sequences are dropped. Missing or malformed values are left empty.
func ParseJobLog(path string) (JobLog, error) {
	res := JobLog{Path: path}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured poll directory
	if err != nil {
		return res, fmt.Errorf("failed to read job log %s: %w", path, err)
	}
	content := strings.ToValidUTF8(string(data), "")

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "job_number") {
			id, err := strconv.ParseInt(lastValue(line), 10, 64)
			if err != nil {
				log.Printf("[ERROR] job id in %s is not an integer: %v", path, err)
			} else {
				res.ID = id
			}
		}
		if strings.Contains(line, "sge_o_workdir") {
			if dir := lastValue(line); dir != "" {
				res.SubDir = dir
			}
		}
		if strings.Contains(line, "submission_time") {
			ts := strings.Join(strings.Fields(valueFromLine(line)), " ")
			t, err := time.ParseInLocation(JobLogDateLayout, ts, time.Local)
			if err != nil {
				log.Printf("[DEBUG] submission time %q in %s doesn't match expected format: %v", ts, path, err)
			} else {
				res.SubmittedAt = t
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to scan job log %s: %w", path, err)
	}

	if res.ID == 0 && res.SubDir == "" {
		log.Printf("[WARN] no relevant content in job log %s, content:\n%s", path, content)
	}
	log.Printf("[DEBUG] job log %s: id=%d, sub_dir=%q, submitted=%v", path, res.ID, res.SubDir, res.SubmittedAt)
	return res, nil
}

// valueFromLine returns the trimmed part after the first colon, empty if there is no colon
func valueFromLine(line string) string {
	_, val, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(val)
}

// lastValue returns the trimmed part after the last colon
func lastValue(line string) string {
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return strings.TrimSpace(line)
}
