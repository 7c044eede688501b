package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/service"
	"github.com/caejd/jobdiary/app/store"
)

// APIJob represents a job in JSON API response
type APIJob struct {
	ID               int64     `json:"id"`
	MainName         string    `json:"main_name"`
	Status           string    `json:"status"`
	JobDir           string    `json:"job_dir"`
	SubDate          time.Time `json:"sub_date,omitzero"`
	SubDir           string    `json:"sub_dir"`
	Username         string    `json:"username"`
	Project          string    `json:"project"`
	Solver           string    `json:"solver"`
	Info             string    `json:"info"`
	AnalysisStatus   string    `json:"analysis_status"`
	ResultAssessment string    `json:"result_assessment,omitempty"`
	ResultSummary    string    `json:"result_summary,omitempty"`
	Tags             []string  `json:"tags"`
	BaseRuns         []int64   `json:"base_runs"`
	UpdatedAt        time.Time `json:"updated_at,omitzero"`
}

// APIJobsResponse is the JSON response for /api/v1/jobs
type APIJobsResponse struct {
	Jobs     []APIJob `json:"jobs"`
	Page     int      `json:"page"`
	NumPages int      `json:"num_pages"`
	Total    int      `json:"total"`
}

// APIStatusResponse is the JSON response for /api/v1/status
type APIStatusResponse struct {
	Version    string          `json:"version"`
	Hostname   string          `json:"hostname"`
	Components []service.State `json:"components"`
	Timestamp  time.Time       `json:"timestamp"`
}

// tagOption is a select2-style autocomplete entry
type tagOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func toAPIJob(job diary.Job) APIJob {
	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}
	baseRuns := job.BaseRuns
	if baseRuns == nil {
		baseRuns = []int64{}
	}
	return APIJob{
		ID:               job.ID,
		MainName:         job.MainName,
		Status:           job.Status.Code(),
		JobDir:           job.JobDir,
		SubDate:          job.SubDate,
		SubDir:           job.SubDir,
		Username:         job.Username,
		Project:          job.Project,
		Solver:           job.Solver,
		Info:             job.Info,
		AnalysisStatus:   job.AnalysisStatus.Code(),
		ResultAssessment: job.ResultAssessment.Code(),
		ResultSummary:    job.ResultSummary,
		Tags:             tags,
		BaseRuns:         baseRuns,
		UpdatedAt:        job.UpdatedAt,
	}
}

func toAPIJobs(jobs []diary.Job) []APIJob {
	res := make([]APIJob, 0, len(jobs))
	for _, j := range jobs {
		res = append(res, toAPIJob(j))
	}
	return res
}

// handleAPIJobs returns a page of jobs, accepts the same filters as the job list
func (s *Server) handleAPIJobs(w http.ResponseWriter, r *http.Request) {
	lq := listQuery(r.URL.Query())
	if pp, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && pp > 0 && pp <= 500 {
		lq.PerPage = pp
	}
	page, err := s.store.ListJobs(r.Context(), lq)
	if err != nil {
		log.Printf("[WARN] failed to list jobs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, APIJobsResponse{Jobs: toAPIJobs(page.Jobs), Page: page.Number,
		NumPages: page.NumPages, Total: page.Total})
}

// handleAPIJob returns a single job
func (s *Server) handleAPIJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		log.Printf("[WARN] failed to load job %d: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIJob(job))
}

// handleAPISearch returns all jobs matching every word of q
func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.SearchJobs(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("[WARN] failed to search jobs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to search jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": toAPIJobs(jobs), "total": len(jobs)})
}

// handleAPIStatus returns the version and the state of background loops
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, APIStatusResponse{
		Version:    s.version,
		Hostname:   s.hostname,
		Components: s.componentStates(),
		Timestamp:  time.Now(),
	})
}

// handleTagsAutocomplete returns tags starting with the q parameter
func (s *Server) handleTagsAutocomplete(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.FindTags(r.Context(), r.URL.Query().Get("q"), 20)
	if err != nil {
		log.Printf("[WARN] failed to find tags: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to find tags")
		return
	}
	res := make([]tagOption, 0, len(tags))
	for _, t := range tags {
		res = append(res, tagOption{ID: t, Text: t})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

// handleTagCreate adds a new tag from the tag form field
func (s *Server) handleTagCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	tag := r.PostFormValue("tag")
	err := s.store.CreateTag(r.Context(), tag)
	if errors.Is(err, store.ErrInvalidTag) {
		s.writeJSONError(w, http.StatusBadRequest, "invalid tag, use # followed by letters and digits")
		return
	}
	if err != nil {
		log.Printf("[WARN] failed to create tag %q: %v", tag, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	s.writeJSON(w, http.StatusCreated, tagOption{ID: tag, Text: tag})
}

// handlePollTrigger requests an immediate poll pass
func (s *Server) handlePollTrigger(w http.ResponseWriter, _ *http.Request) {
	if s.pollTrigger == nil {
		s.writeJSONError(w, http.StatusNotFound, "poller is not running in this process")
		return
	}
	status := "queued"
	if !s.pollTrigger.Trigger() {
		status = "already queued"
	}
	log.Printf("[INFO] poll pass requested from web, %s", status)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
