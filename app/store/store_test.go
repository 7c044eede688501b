package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caejd/jobdiary/app/diary"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), EngineSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testJob(id int64) diary.Job {
	return diary.Job{
		ID:       id,
		MainName: "crash_front_40.key",
		Status:   diary.StatusPending,
		JobDir:   "/cae/abc_pcae_x/1234567/front/" + fmt.Sprint(id) + ".pending",
		SubDate:  time.Date(2019, 5, 3, 10, 11, 12, 0, time.UTC),
		SubDir:   "/cae/abc_pcae_x/1234567/front",
		Username: "doej",
		Solver:   "dyn",
		Info:     "Front crash, baseline",
	}
}

func TestNew(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		s := newTestStore(t)
		assert.Equal(t, EngineSQLite, s.Engine())
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reopen.db")
		s, err := New(context.Background(), EngineSQLite, path)
		require.NoError(t, err)
		_, err = s.CreateJob(context.Background(), testJob(1))
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = New(context.Background(), EngineSQLite, path)
		require.NoError(t, err)
		defer s.Close()
		ok, err := s.JobExists(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unsupported engine", func(t *testing.T) {
		_, err := New(context.Background(), "mysql", "x")
		require.Error(t, err)
	})
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("a.db"))
	assert.Equal(t, "a.db?mode=ro&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("a.db?mode=ro"))
	assert.Equal(t, "a.db?_pragma=busy_timeout(1)", sqliteDSN("a.db?_pragma=busy_timeout(1)"))
}

func TestStore_CreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.JobExists(ctx, 3000123)
	require.NoError(t, err)
	assert.False(t, ok)

	job := testJob(3000123)
	job.Tags = []string{"#foam"}
	created, err := s.CreateJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "1234567", created.Project, "project derived from sub dir")
	assert.NotEmpty(t, created.KeywordString)
	assert.False(t, created.CreatedAt.IsZero())

	ok, err = s.JobExists(ctx, 3000123)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJob(ctx, 3000123)
	require.NoError(t, err)
	assert.Equal(t, job.MainName, got.MainName)
	assert.Equal(t, diary.StatusPending, got.Status)
	assert.Equal(t, diary.AnalysisOpen, got.AnalysisStatus)
	assert.Equal(t, diary.AssessmentUnset, got.ResultAssessment)
	assert.Equal(t, job.SubDate.Unix(), got.SubDate.Unix())
	assert.Equal(t, "doej", got.Username)
	assert.Equal(t, "1234567", got.Project)
	assert.Equal(t, []string{"#foam"}, got.Tags)
	assert.Empty(t, got.BaseRuns)
	assert.Equal(t, created.KeywordString, got.KeywordString)

	_, err = s.CreateJob(ctx, job)
	require.Error(t, err, "duplicate id rejected")

	_, err = s.GetJob(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	user, err := s.GetUser(ctx, "doej")
	require.NoError(t, err)
	assert.Equal(t, "doej", user.Username)
}

func TestStore_ExplicitProjectKept(t *testing.T) {
	s := newTestStore(t)
	job := testJob(1)
	job.Project = "r000001"
	_, err := s.CreateJob(context.Background(), job)
	require.NoError(t, err)
	got, err := s.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "r000001", got.Project)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateJob(ctx, testJob(10))
	require.NoError(t, err)

	res, err := s.SearchJobs(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, res, 1)

	require.NoError(t, s.UpdateStatus(ctx, 10, diary.StatusFinished, "/cae/x/10"))
	got, err := s.GetJob(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, diary.StatusFinished, got.Status)
	assert.Equal(t, "/cae/x/10", got.JobDir)
	assert.Contains(t, got.KeywordString, "finished")
	assert.NotContains(t, got.KeywordString, "pending")

	res, err = s.SearchJobs(ctx, "pending")
	require.NoError(t, err)
	assert.Empty(t, res, "stale keyword unlinked")
	res, err = s.SearchJobs(ctx, "finished")
	require.NoError(t, err)
	assert.Len(t, res, 1)

	err = s.UpdateStatus(ctx, 11, diary.StatusFinished, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UnfinishedJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, st := range []diary.Status{diary.StatusPending, diary.StatusRunning, diary.StatusFinished,
		diary.StatusNone, diary.StatusNormalTermination, diary.StatusErrorTermination} {
		job := testJob(int64(i + 1))
		job.Status = st
		_, err := s.CreateJob(ctx, job)
		require.NoError(t, err)
	}

	jobs, err := s.UnfinishedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(1), jobs[0].ID)
	assert.Equal(t, diary.StatusPending, jobs[0].Status)
	assert.Equal(t, int64(2), jobs[1].ID)
	assert.Equal(t, diary.StatusRunning, jobs[1].Status)
}

func TestStore_UpdateAnnotations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := testJob(20)
	job.Tags = []string{"#old"}
	_, err := s.CreateJob(ctx, job)
	require.NoError(t, err)

	err = s.UpdateAnnotations(ctx, 20, Annotations{
		Status:           diary.StatusNormalTermination,
		Info:             "updated info text",
		AnalysisStatus:   diary.AnalysisDone,
		ResultAssessment: diary.AssessmentNotOK,
		ResultSummary:    "Intrusion too high.",
		Tags:             []string{"#foam", "#Side"},
	})
	require.NoError(t, err)

	got, err := s.GetJob(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, diary.StatusNormalTermination, got.Status)
	assert.Equal(t, "updated info text", got.Info)
	assert.Equal(t, diary.AnalysisDone, got.AnalysisStatus)
	assert.Equal(t, diary.AssessmentNotOK, got.ResultAssessment)
	assert.Equal(t, "Intrusion too high.", got.ResultSummary)
	assert.Equal(t, []string{"#Side", "#foam"}, got.Tags)
	assert.Contains(t, got.KeywordString, "nok")
	assert.Contains(t, got.KeywordString, "Intrusion")
	assert.True(t, !got.UpdatedAt.Before(got.CreatedAt))

	res, err := s.SearchJobs(ctx, "intru NOK")
	require.NoError(t, err)
	assert.Len(t, res, 1)

	err = s.UpdateAnnotations(ctx, 20, Annotations{Tags: []string{"bad tag"}})
	require.Error(t, err)
	err = s.UpdateAnnotations(ctx, 21, Annotations{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AddBaseRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		_, err := s.CreateJob(ctx, testJob(id))
		require.NoError(t, err)
	}

	added, err := s.AddBaseRuns(ctx, 3, []int64{1, 2, 99})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.AddBaseRuns(ctx, 3, []int64{1})
	require.NoError(t, err, "adding twice is fine")
	assert.Equal(t, 1, added)

	got, err := s.GetJob(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.BaseRuns)
}

func TestStore_EnsureUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, diary.NewUser("doej", "john.doe@example.com"))
	require.NoError(t, err)
	assert.Equal(t, diary.User{Username: "doej", Email: "john.doe@example.com", FirstName: "john", LastName: "doe"}, u)

	u, err = s.EnsureUser(ctx, diary.NewUser("doej", "other.person@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "john.doe@example.com", u.Email, "existing user wins")

	_, err = s.EnsureUser(ctx, diary.User{})
	require.Error(t, err)

	_, err = s.EnsureUser(ctx, diary.NewUser("alice", "alice@example.com"))
	require.NoError(t, err)
	names, err := s.Usernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "doej"}, names)

	_, err = s.GetUser(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Projects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projects, err := s.Projects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	for i, p := range []string{"r000002", "", "r000001", "r000002"} {
		job := testJob(int64(i + 1))
		job.SubDir = "/no/project/here"
		job.Project = p
		_, err := s.CreateJob(ctx, job)
		require.NoError(t, err)
	}
	projects, err = s.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r000001", "r000002"}, projects)
}

func TestStore_Tags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTag(ctx, "#foam"))
	require.NoError(t, s.CreateTag(ctx, "#foam"), "creating twice is fine")
	require.NoError(t, s.CreateTag(ctx, "#Front"))
	require.NoError(t, s.CreateTag(ctx, "#side"))
	require.ErrorIs(t, s.CreateTag(ctx, "side"), ErrInvalidTag)
	require.ErrorIs(t, s.CreateTag(ctx, "#a_b"), ErrInvalidTag)

	tags, err := s.FindTags(ctx, "#f", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"#Front", "#foam"}, tags)

	tags, err = s.FindTags(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	tags, err = s.FindTags(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, tags, "like wildcards escaped")
}

func TestPageNumber(t *testing.T) {
	tbl := []struct {
		raw  string
		num  int
		want int
	}{
		{"", 3, 1},
		{"abc", 3, 1},
		{"2", 3, 2},
		{"3", 3, 3},
		{"4", 3, 3},
		{"0", 3, 3},
		{"-1", 3, 3},
		{"1", 1, 1},
	}
	for _, tt := range tbl {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, pageNumber(tt.raw, tt.num))
		})
	}
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "abc%", likePrefix("ABC"))
	assert.Equal(t, `a\_b\%c\\%`, likePrefix(`a_b%c\`))
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "j.a, j.b, j.c", prefixed("j.", "a, b,\n\tc"))
}
