package jobfile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/text/encoding/charmap"
)

// ReadmeDateLayout is the layout of Sub-Date values in README files, e.g. "2018-01-02__12:34:56"
const ReadmeDateLayout = "2006-01-02__15:04:05"

const (
	infoBlockStart = "information      :"
	infoBlockEnd   = "********Header********"
)

var (
	readmeNameRe = regexp.MustCompile(`^README\..*\.README$`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// Readme holds job information from a job README file
type Readme struct {
	Path      string
	MainName  string
	BaseRuns  []int64
	InfoBlock string
	Username  string
	Email     string
	SubDate   time.Time
	Solver    string

	found map[string]bool
}

// readme keys needed to create a job
var requiredReadmeKeys = []string{"main_name", "base_runs", "info_block", "username", "email", "sub_date", "solver"}

// Missing lists required keys not found in the README
func (r Readme) Missing() []string {
	var res []string
	for _, k := range requiredReadmeKeys {
		if !r.found[k] {
			res = append(res, k)
		}
	}
	return res
}

// Complete is true when all keys needed to create a job were found
func (r Readme) Complete() bool {
	return len(r.Missing()) == 0
}

// IsReadmeName checks if name looks like a job README, e.g. README.crash_front.key.README
func IsReadmeName(name string) bool {
	return readmeNameRe.MatchString(name)
}

// FindReadme returns the file name of the first README in jobDir, empty if there is none.
// Errors listing the directory are returned as is, so callers can check for fs.ErrNotExist or fs.ErrPermission.
func FindReadme(jobDir string) (string, error) {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if IsReadmeName(e.Name()) {
			log.Printf("[DEBUG] found job README %s in %s", e.Name(), jobDir)
			return e.Name(), nil
		}
	}
	log.Printf("[INFO] no job README found in %s", jobDir)
	return "", nil
}

// ParseReadme reads job information from the README. The file is ISO-8859-1 encoded.
// The info block spans the lines after "information      :" up to the header marker.
func ParseReadme(path string) (Readme, error) {
	res := Readme{Path: path, found: map[string]bool{}}

	fh, err := os.Open(path) //nolint:gosec // README is located in the job directory
	if err != nil {
		return res, fmt.Errorf("failed to open README: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(fh))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	readingInfo := false
	var info strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "FILE:") {
			res.MainName = valueFromLine(line)
			res.found["main_name"] = true
		}

		if strings.Contains(line, "base-run (job-id):") {
			res.BaseRuns = baseRuns(line)
			res.found["base_runs"] = true
		}

		if readingInfo {
			if strings.Contains(line, infoBlockEnd) {
				readingInfo = false
				res.InfoBlock = strings.TrimRight(info.String(), " \t\r\n")
				res.found["info_block"] = true
			} else {
				info.WriteString(line)
				info.WriteString("\n")
			}
		}
		if strings.Contains(line, infoBlockStart) {
			readingInfo = true
		}

		if strings.Contains(line, "Sub-User:") {
			res.Username = valueFromLine(line)
			res.found["username"] = true
		}

		if strings.Contains(line, "EMail:") {
			res.Email = valueFromLine(line)
			res.found["email"] = true
		}

		if strings.Contains(line, "Sub-Date:") {
			val := valueFromLine(line)
			t, err := time.ParseInLocation(ReadmeDateLayout, val, time.Local)
			if err != nil {
				return res, fmt.Errorf("invalid Sub-Date %q in %s: %w", val, path, err)
			}
			res.SubDate = t
			res.found["sub_date"] = true
		}

		if strings.Contains(line, "Solver:") {
			res.Solver = valueFromLine(line)
			res.found["solver"] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to scan README %s: %w", path, err)
	}

	log.Printf("[DEBUG] README %s: main_name=%q, user=%q, solver=%q, base_runs=%v",
		path, res.MainName, res.Username, res.Solver, res.BaseRuns)
	return res, nil
}

// baseRuns parses job ids from the value of a "base-run (job-id):" line, any non-digit separates ids
func baseRuns(line string) []int64 {
	clean := nonDigitRe.ReplaceAllString(valueFromLine(line), " ")
	res := []int64{}
	for _, f := range strings.Fields(clean) {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			log.Printf("[WARN] can't parse base run %q: %v", f, err)
			continue
		}
		res = append(res, id)
	}
	return res
}
