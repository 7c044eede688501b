package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caejd/jobdiary/app/diary"
)

func seedJobs(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		job := testJob(int64(i))
		if i%2 == 0 {
			job.Username = "alice"
			job.SubDir = "/cae/abc_prj/r000002/side"
			job.MainName = "side_pole.key"
		}
		_, err := s.CreateJob(ctx, job)
		require.NoError(t, err)
	}
}

func ids(jobs []diary.Job) []int64 {
	res := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		res = append(res, j.ID)
	}
	return res
}

func TestStore_ListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJobs(t, s, 30)

	t.Run("first page", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 30, page.Total)
		assert.Equal(t, 2, page.NumPages)
		assert.Equal(t, 1, page.Number)
		require.Len(t, page.Jobs, DefaultPerPage)
		assert.Equal(t, int64(30), page.Jobs[0].ID, "newest first")
		assert.False(t, page.HasPrev())
		assert.True(t, page.HasNext())
		assert.Equal(t, 2, page.NextNumber())
		assert.Equal(t, 1, page.StartIndex(DefaultPerPage))
	})

	t.Run("last page", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Page: "2"})
		require.NoError(t, err)
		assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids(page.Jobs))
		assert.True(t, page.HasPrev())
		assert.False(t, page.HasNext())
		assert.Equal(t, 26, page.StartIndex(DefaultPerPage))
	})

	t.Run("out of range page gives last", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Page: "99"})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Number)
	})

	t.Run("project filter", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Project: "r000002", PerPage: 100})
		require.NoError(t, err)
		assert.Equal(t, 15, page.Total)
		for _, j := range page.Jobs {
			assert.Equal(t, "r000002", j.Project)
		}
	})

	t.Run("user filter", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{User: "doej", PerPage: 100})
		require.NoError(t, err)
		assert.Equal(t, 15, page.Total)
	})

	t.Run("search", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Search: "SIDE pol", PerPage: 100})
		require.NoError(t, err)
		assert.Equal(t, 15, page.Total)

		page, err = s.ListJobs(ctx, ListQuery{Search: "side 1234567"})
		require.NoError(t, err)
		assert.Zero(t, page.Total, "all words must match")
	})

	t.Run("blank search lists all", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Search: "   "})
		require.NoError(t, err)
		assert.Equal(t, 30, page.Total)
	})

	t.Run("obsolete hidden unless requested", func(t *testing.T) {
		require.NoError(t, s.UpdateAnnotations(ctx, 30, Annotations{Status: diary.StatusFinished,
			AnalysisStatus: diary.AnalysisDone, ResultAssessment: diary.AssessmentObsolete, Tags: []string{"#old"}}))

		page, err := s.ListJobs(ctx, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 29, page.Total)
		assert.Equal(t, int64(29), page.Jobs[0].ID)

		page, err = s.ListJobs(ctx, ListQuery{ShowObsolete: true})
		require.NoError(t, err)
		assert.Equal(t, 30, page.Total)
		assert.Equal(t, []string{"#old"}, page.Jobs[0].Tags)
	})

	t.Run("tag filter", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{Tag: "#old", ShowObsolete: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{30}, ids(page.Jobs))
	})

	t.Run("empty result", func(t *testing.T) {
		page, err := s.ListJobs(ctx, ListQuery{User: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, page.Jobs)
		assert.Equal(t, 1, page.NumPages)
		assert.Equal(t, 1, page.Number)
		assert.Zero(t, page.StartIndex(DefaultPerPage))
	})
}

func TestStore_SearchJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJobs(t, s, 4)

	res, err := s.SearchJobs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, res, "searching for nothing finds nothing")

	res, err = s.SearchJobs(ctx, " \t ")
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.SearchJobs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, ids(res))

	res, err = s.SearchJobs(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(res))

	res, err = s.SearchJobs(ctx, "2019-05")
	require.NoError(t, err)
	assert.Len(t, res, 4)

	res, err = s.SearchJobs(ctx, "rash")
	require.NoError(t, err)
	assert.Empty(t, res, "prefix match only")

	res, err = s.SearchJobs(ctx, "cr%")
	require.NoError(t, err)
	assert.Empty(t, res, "wildcards escaped")
}

func TestStore_SearchJobsNonASCII(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJobs(t, s, 2)

	job := testJob(5)
	job.Info = "Übung mit Änderung"
	_, err := s.CreateJob(ctx, job)
	require.NoError(t, err)

	for _, q := range []string{"Übung", "übung", "ÜBUNG", "Änd", "änderung front"} {
		res, err := s.SearchJobs(ctx, q)
		require.NoError(t, err, q)
		assert.Equal(t, []int64{5}, ids(res), q)
	}

	require.NoError(t, s.UpdateAnnotations(ctx, 5, Annotations{Status: diary.StatusPending, Info: "Straße gesperrt"}))
	res, err := s.SearchJobs(ctx, "übung")
	require.NoError(t, err)
	assert.Empty(t, res, "old words unlinked")
	res, err = s.SearchJobs(ctx, "straße")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(res))
}
