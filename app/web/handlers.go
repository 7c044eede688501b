package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/service"
	"github.com/caejd/jobdiary/app/store"
)

const (
	listQueryCookie = "jobdiary-list"
	flashCookie     = "jobdiary-flash"
)

// listData is the job list page
type listData struct {
	TemplateData
	Page      store.JobPage
	Query     store.ListQuery
	QueryBase string // query string without page, ready to append page=N
	PerPage   int
	LastIndex int // 1-based index of the last job on the page
	Usernames []string
	Projects  []string
}

// jobForm holds the editable fields as submitted
type jobForm struct {
	Status           string
	Info             string
	AnalysisStatus   string
	ResultAssessment string
	ResultSummary    string
	Tags             []string
}

// detailData is the job detail page
type detailData struct {
	TemplateData
	Job              diary.Job
	Form             jobForm
	Errors           map[string]string
	Updated          bool
	BackURL          string // job list with the last used filters
	StatusValues     []diary.Status
	AnalysisValues   []diary.AnalysisStatus
	AssessmentValues []diary.Assessment
}

// aboutData is the about page
type aboutData struct {
	TemplateData
	FeedbackEmail string
	PollEnabled   bool
	Components    []service.State
}

// handleJobList renders the filtered and paginated job list.
// The list query is remembered for the "back to list" link of the detail page.
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	lq := listQuery(r.URL.Query())
	page, err := s.store.ListJobs(r.Context(), lq)
	if err != nil {
		log.Printf("[WARN] failed to list jobs: %v", err)
		http.Error(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}

	usernames, err := s.store.Usernames(r.Context())
	if err != nil {
		log.Printf("[WARN] failed to load usernames: %v", err)
	}
	projects, err := s.store.Projects(r.Context())
	if err != nil {
		log.Printf("[WARN] failed to load projects: %v", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     listQueryCookie,
		Value:    url.QueryEscape(r.URL.RawQuery),
		Path:     s.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	data := listData{
		TemplateData: s.newTemplateData("Jobs"),
		Page:         page,
		Query:        lq,
		QueryBase:    queryWithoutPage(r.URL.Query()),
		PerPage:      store.DefaultPerPage,
		Usernames:    usernames,
		Projects:     projects,
	}
	if len(page.Jobs) > 0 {
		data.LastIndex = page.StartIndex(data.PerPage) + len(page.Jobs) - 1
	}
	s.render(w, http.StatusOK, "list.html", data)
}

// handleJobDetail renders a job with its annotation form
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	updated := false
	if c, err := r.Cookie(flashCookie); err == nil && c.Value == "updated" {
		updated = true
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: s.cookiePath(), MaxAge: -1, HttpOnly: true})
	}

	data := s.newDetailData(r, job)
	data.Form = formFromJob(job)
	data.Updated = updated
	s.render(w, http.StatusOK, "detail.html", data)
}

// handleJobUpdate saves the annotation form. Invalid input re-renders the form with errors.
func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	form := jobForm{
		Status:           r.PostFormValue("job_status"),
		Info:             r.PostFormValue("info"),
		AnalysisStatus:   r.PostFormValue("analysis_status"),
		ResultAssessment: r.PostFormValue("result_assessment"),
		ResultSummary:    r.PostFormValue("result_summary"),
		Tags:             splitTags(r.PostForm["tags"]),
	}
	ann, errs := form.annotations()
	if len(errs) == 0 {
		err := s.store.UpdateAnnotations(r.Context(), job.ID, ann)
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		case errors.Is(err, store.ErrInvalidTag):
			errs = map[string]string{"tags": err.Error()}
		case err != nil:
			log.Printf("[WARN] failed to update job %d: %v", job.ID, err)
			http.Error(w, "Failed to save job", http.StatusInternalServerError)
			return
		}
	}

	if len(errs) > 0 {
		log.Printf("[DEBUG] invalid form for job %d: %v", job.ID, errs)
		data := s.newDetailData(r, job)
		data.Form = form
		data.Errors = errs
		s.render(w, http.StatusBadRequest, "detail.html", data)
		return
	}

	log.Printf("[INFO] job %d updated from web", job.ID)
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "updated", Path: s.cookiePath(), HttpOnly: true,
		SameSite: http.SameSiteLaxMode})
	http.Redirect(w, r, s.url(fmt.Sprintf("/jobs/%d", job.ID)), http.StatusSeeOther)
}

// handleAbout renders the about page
func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	data := aboutData{
		TemplateData:  s.newTemplateData("About"),
		FeedbackEmail: s.feedbackEmail,
		PollEnabled:   s.pollTrigger != nil,
		Components:    s.componentStates(),
	}
	s.render(w, http.StatusOK, "about.html", data)
}

// loadJob gets the job of the {id} path value, responds with 404 if there is none
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (diary.Job, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Job not found", http.StatusNotFound)
		return diary.Job{}, false
	}
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return diary.Job{}, false
	}
	if err != nil {
		log.Printf("[WARN] failed to load job %d: %v", id, err)
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return diary.Job{}, false
	}
	return job, true
}

func (s *Server) newDetailData(r *http.Request, job diary.Job) detailData {
	back := s.url("/")
	if c, err := r.Cookie(listQueryCookie); err == nil {
		if q, err := url.QueryUnescape(c.Value); err == nil && q != "" {
			back += "?" + q
		}
	}
	return detailData{
		TemplateData:     s.newTemplateData(fmt.Sprintf("Job %d", job.ID)),
		Job:              job,
		BackURL:          back,
		StatusValues:     diary.StatusValues,
		AnalysisValues:   diary.AnalysisValues,
		AssessmentValues: diary.AssessmentValues,
	}
}

func (s *Server) componentStates() []service.State {
	res := make([]service.State, 0, len(s.components))
	for _, c := range s.components {
		res = append(res, c.State())
	}
	return res
}

func formFromJob(job diary.Job) jobForm {
	return jobForm{
		Status:           job.Status.Code(),
		Info:             job.Info,
		AnalysisStatus:   job.AnalysisStatus.Code(),
		ResultAssessment: job.ResultAssessment.Code(),
		ResultSummary:    job.ResultSummary,
		Tags:             job.Tags,
	}
}

// annotations validates the form, returns field errors keyed by form field name
func (f jobForm) annotations() (store.Annotations, map[string]string) {
	errs := map[string]string{}
	var res store.Annotations
	var err error

	if res.Status, err = diary.ParseStatus(f.Status); err != nil || f.Status == "" {
		errs["job_status"] = fmt.Sprintf("select a valid job status, %q is not one of the available choices", f.Status)
	}
	if res.AnalysisStatus, err = diary.ParseAnalysisStatus(f.AnalysisStatus); err != nil || f.AnalysisStatus == "" {
		errs["analysis_status"] = fmt.Sprintf("select a valid analysis status, %q is not one of the available choices", f.AnalysisStatus)
	}
	if res.ResultAssessment, err = diary.ParseAssessment(f.ResultAssessment); err != nil {
		errs["result_assessment"] = fmt.Sprintf("select a valid assessment, %q is not one of the available choices", f.ResultAssessment)
	}
	for _, tag := range f.Tags {
		if !diary.ValidateTag(tag) {
			errs["tags"] = fmt.Sprintf("invalid tag %q, a tag is # followed by letters and digits", tag)
			break
		}
	}
	res.Info = f.Info
	res.ResultSummary = f.ResultSummary
	res.Tags = f.Tags
	return res, errs
}

// listQuery makes the store query from list request parameters
func listQuery(q url.Values) store.ListQuery {
	return store.ListQuery{
		Project:      q.Get("project"),
		User:         q.Get("user"),
		Tag:          q.Get("tag"),
		Search:       strings.TrimSpace(q.Get("q")),
		ShowObsolete: q.Has("show_obsolete"),
		Page:         q.Get("page"),
	}
}

// queryWithoutPage returns the encoded query without page, followed by & if not empty
func queryWithoutPage(q url.Values) string {
	c := url.Values{}
	for k, v := range q {
		if k != "page" {
			c[k] = v
		}
	}
	if enc := c.Encode(); enc != "" {
		return enc + "&"
	}
	return ""
}

// pageURL makes the query string of a list page
func pageURL(queryBase string, page int) string {
	return "?" + queryBase + "page=" + strconv.Itoa(page)
}

// splitTags accepts tags as repeated values or separated by spaces and commas, duplicates dropped
func splitTags(values []string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		for _, t := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' }) {
			if !seen[t] {
				seen[t] = true
				res = append(res, t)
			}
		}
	}
	return res
}
