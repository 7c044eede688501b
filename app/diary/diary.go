// Package diary defines the job record kept by the job diary together with the rules
// deriving searchable keywords, project identifiers and user names from it.
package diary

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxKeywordLength limits the size of a single stored keyword, longer words are trimmed
const MaxKeywordLength = 200

// Job is a single simulation job recorded in the diary
type Job struct {
	ID             int64
	MainName       string // main input file name
	Status         Status
	JobDir         string // directory the job runs or ran in
	SubDate        time.Time
	SubDir         string // directory the job was submitted from
	Username       string
	Project        string
	Solver         string
	LogfilePath    string
	ReadmeFilename string

	// annotations, edited through the web form
	Info             string
	AnalysisStatus   AnalysisStatus
	ResultAssessment Assessment
	ResultSummary    string
	Tags             []string

	BaseRuns      []int64 // ids of jobs this one is based on
	KeywordString string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// User is the owner of a job
type User struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// Keywords returns sorted unique words describing the job, used to search for it
func (j Job) Keywords() []string {
	words := map[string]struct{}{}
	add := func(ww ...string) {
		for _, w := range ww {
			if w = strings.TrimSpace(w); w == "" {
				continue
			}
			w = trimWord(w)
			words[w] = struct{}{}
		}
	}

	add(strconv.FormatInt(j.ID, 10))
	add(strings.Fields(j.MainName)...)
	add(strings.Fields(parsedMainName(j.MainName))...)
	add(j.Username, j.Project)
	add(subDirWords(j.SubDir)...)
	add(fulltextWords(j.Info)...)
	add(fulltextWords(j.ResultSummary)...)
	add(strings.Fields(strings.ReplaceAll(j.statusOrNone().String(), "/", ""))...)
	add(j.analysisOrOpen().String())
	add(strings.Fields(j.ResultAssessment.String())...)
	if j.ResultAssessment == AssessmentNotOK {
		add("nok")
	}
	add(j.SubDate.Format("2006-01-02"))

	res := make([]string, 0, len(words))
	for w := range words {
		res = append(res, w)
	}
	slices.Sort(res)
	return res
}

// BuildKeywordString joins job keywords into a single space-separated string
func (j Job) BuildKeywordString() string {
	return strings.Join(j.Keywords(), " ")
}

func (j Job) statusOrNone() Status {
	if j.Status == "" {
		return StatusNone
	}
	return j.Status
}

func (j Job) analysisOrOpen() AnalysisStatus {
	if j.AnalysisStatus == "" {
		return AnalysisOpen
	}
	return j.AnalysisStatus
}

// parsedMainName splits the extension off at the last dot and turns underscores into spaces,
// i.e. "crash_front_40.key" -> "crash front 40 key"
func parsedMainName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[:idx] + " " + name[idx+1:]
	}
	return strings.ReplaceAll(name, "_", " ")
}

// subDirWords returns every folder of the path, and for folders with underscores each part too
func subDirWords(path string) []string {
	var res []string
	for folder := range strings.SplitSeq(path, "/") {
		res = append(res, folder)
		if strings.Contains(folder, "_") {
			res = append(res, strings.Split(folder, "_")...)
		}
	}
	return res
}

const fulltextPunctuation = "()[]{}!?,.\"':;-_"

// fulltextWords splits free text into words with leading and trailing punctuation removed
func fulltextWords(text string) []string {
	fields := strings.Fields(text)
	res := make([]string, 0, len(fields))
	for _, w := range fields {
		res = append(res, strings.Trim(w, fulltextPunctuation))
	}
	return res
}

var projectRe = regexp.MustCompile(`^[\drq]\d{6}(v\d{2})?$`)

// IsProjectIdentifier checks if s looks like a project number, e.g. 1234567, r123456 or q123456v01
func IsProjectIdentifier(s string) bool {
	return projectRe.MatchString(s)
}

// ProjectFromPath extracts the project identifier from a submission path.
// The identifier is a folder matching IsProjectIdentifier placed directly under a folder
// containing "_pcae_" or "_prj". The last match wins, empty string if nothing found.
func ProjectFromPath(path string) string {
	project := ""
	folders := strings.Split(path, "/")
	for i := 1; i < len(folders); i++ {
		parent := folders[i-1]
		if IsProjectIdentifier(folders[i]) && (strings.Contains(parent, "_pcae_") || strings.Contains(parent, "_prj")) {
			project = folders[i]
		}
	}
	return project
}

// NameFromEmail extracts first and last name from an address like first.last@example.com.
// Both are empty unless both parts are found.
func NameFromEmail(email string) (first, last string) {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.Split(local, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

// NewUser makes a user from README credentials, names derived from email
func NewUser(username, email string) User {
	first, last := NameFromEmail(email)
	return User{Username: username, Email: email, FirstName: first, LastName: last}
}

var tagRe = regexp.MustCompile(`^#[A-Za-z0-9]+$`)

// ValidateTag checks a tag is a hash sign followed by letters and digits only
func ValidateTag(tag string) bool {
	return tagRe.MatchString(tag)
}

// SplitSearch splits a search query into words, empty for a blank query
func SplitSearch(q string) []string {
	return strings.Fields(q)
}

// trimWord cuts w to MaxKeywordLength bytes, never splitting a rune
func trimWord(w string) string {
	if len(w) <= MaxKeywordLength {
		return w
	}
	n := MaxKeywordLength
	for n > 0 && !utf8.RuneStart(w[n]) {
		n--
	}
	return w[:n]
}
