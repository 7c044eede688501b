package poller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/jobinfo"
	"github.com/caejd/jobdiary/app/poller/mocks"
	"github.com/caejd/jobdiary/app/store"
)

const readmeTmpl = `README for crash_front_40.key
base-run (job-id): %s
information      :
Front crash with new foam

********Header********
Sub-User:   doej
EMail:      john.doe@example.com
Sub-Date:   2018-06-07__17:21:21
Solver:     dyn
FILE:       crash_front_40.key
`

type fixture struct {
	pollDir string
	subDir  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{pollDir: filepath.Join(root, "poll"), subDir: filepath.Join(root, "cae", "1234567", "front")}
	require.NoError(t, os.MkdirAll(f.pollDir, 0o750))
	require.NoError(t, os.MkdirAll(f.subDir, 0o750))
	return f
}

// jobLog writes a job log file for id pointing to the fixture's submission dir
func (f fixture) jobLog(t *testing.T, id int64) string {
	t.Helper()
	name := fmt.Sprintf("2018-06-07__17:21:%02d-%d.log", id%60, id)
	path := filepath.Join(f.pollDir, name)
	content := fmt.Sprintf("job_number: %d\nsge_o_workdir: %s\nsubmission_time: Thu Jun  7 17:21:21 2018\n", id, f.subDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// finishedJob creates the finished job folder of id, with README if readme isn't empty
func (f fixture) finishedJob(t *testing.T, id int64, readme string) string {
	t.Helper()
	dir := filepath.Join(f.subDir, fmt.Sprint(id))
	require.NoError(t, os.MkdirAll(dir, 0o750))
	if readme != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.crash_front_40.key.README"), []byte(readme), 0o600))
	}
	return dir
}

func newTestPoller(t *testing.T, dir string) (*Poller, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.EngineSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	p := New(Params{Dir: dir, Store: st, Resolver: jobinfo.NewResolver(1, 0),
		Now: func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local) }})
	return p, st
}

func TestNew_Defaults(t *testing.T) {
	p := New(Params{Dir: "/tmp"})
	assert.Equal(t, 24*time.Hour, p.RecentWindow)
	assert.Equal(t, 5, p.MaxRechecks)
	assert.NotNil(t, p.Now)
}

func TestPoller_ProcessJobLog(t *testing.T) {
	f := newFixture(t)
	p, st := newTestPoller(t, f.pollDir)
	ctx := context.Background()

	t.Run("new job stored", func(t *testing.T) {
		f.finishedJob(t, 3000100, fmt.Sprintf(readmeTmpl, ""))
		path := f.jobLog(t, 3000100)
		ok, err := p.ProcessJobLog(ctx, path)
		require.NoError(t, err)
		assert.True(t, ok)

		job, err := st.GetJob(ctx, 3000100)
		require.NoError(t, err)
		assert.Equal(t, diary.StatusFinished, job.Status)
		assert.Equal(t, filepath.Join(f.subDir, "3000100"), job.JobDir)
		assert.Equal(t, "crash_front_40.key", job.MainName)
		assert.Equal(t, "doej", job.Username)
		assert.Equal(t, "dyn", job.Solver)
		assert.Equal(t, "Front crash with new foam", job.Info)
		assert.Equal(t, diary.AnalysisOpen, job.AnalysisStatus)
		assert.Equal(t, path, job.LogfilePath)
		assert.Equal(t, "README.crash_front_40.key.README", job.ReadmeFilename)

		user, err := st.GetUser(ctx, "doej")
		require.NoError(t, err)
		assert.Equal(t, "john.doe@example.com", user.Email)
		assert.Equal(t, "john", user.FirstName)
	})

	t.Run("base runs linked to known jobs", func(t *testing.T) {
		f.finishedJob(t, 3000101, fmt.Sprintf(readmeTmpl, "3000100, 2999999"))
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000101))
		require.NoError(t, err)
		assert.True(t, ok)

		job, err := st.GetJob(ctx, 3000101)
		require.NoError(t, err)
		assert.Equal(t, []int64{3000100}, job.BaseRuns)
	})

	t.Run("existing job skipped", func(t *testing.T) {
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000100))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pending job", func(t *testing.T) {
		dir := filepath.Join(f.subDir, "3000102.pending")
		require.NoError(t, os.MkdirAll(dir, 0o750))
		readme := fmt.Sprintf(readmeTmpl, "")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.x.README"), []byte(readme), 0o600))
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000102))
		require.NoError(t, err)
		assert.True(t, ok)

		job, err := st.GetJob(ctx, 3000102)
		require.NoError(t, err)
		assert.Equal(t, diary.StatusPending, job.Status)
	})

	t.Run("no status skipped", func(t *testing.T) {
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000103))
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = st.GetJob(ctx, 3000103)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("no readme skipped", func(t *testing.T) {
		f.finishedJob(t, 3000104, "")
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000104))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("incomplete readme skipped", func(t *testing.T) {
		f.finishedJob(t, 3000105, "FILE: crash_front_40.key\n")
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000105))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("job dir without permission skipped", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions not enforced for root")
		}
		dir := f.finishedJob(t, 3000106, fmt.Sprintf(readmeTmpl, ""))
		require.NoError(t, os.Chmod(dir, 0o000))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o750) })
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000106))
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = st.GetJob(ctx, 3000106)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("readme without permission skipped", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions not enforced for root")
		}
		dir := f.finishedJob(t, 3000107, fmt.Sprintf(readmeTmpl, ""))
		require.NoError(t, os.Chmod(filepath.Join(dir, "README.crash_front_40.key.README"), 0o000))
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 3000107))
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = st.GetJob(ctx, 3000107)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("job log without id skipped", func(t *testing.T) {
		path := filepath.Join(f.pollDir, "2018-06-07__17:21:21-1.log")
		require.NoError(t, os.WriteFile(path, []byte("owner: doej\n"), 0o600))
		ok, err := p.ProcessJobLog(ctx, path)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing job log skipped", func(t *testing.T) {
		ok, err := p.ProcessJobLog(ctx, filepath.Join(f.pollDir, "2018-06-07__17:21:21-2.log"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPoller_Poll(t *testing.T) {
	f := newFixture(t)
	p, st := newTestPoller(t, f.pollDir)
	ctx := context.Background()

	f.finishedJob(t, 3000200, fmt.Sprintf(readmeTmpl, ""))
	f.finishedJob(t, 3000201, fmt.Sprintf(readmeTmpl, "3000200"))
	f.jobLog(t, 3000200)
	f.jobLog(t, 3000201)
	require.NoError(t, os.WriteFile(filepath.Join(f.pollDir, "notes.txt"), []byte("x"), 0o600))

	require.NoError(t, p.Poll(ctx))
	job, err := st.GetJob(ctx, 3000201)
	require.NoError(t, err)
	assert.Equal(t, []int64{3000200}, job.BaseRuns, "processed in name order, base run already stored")

	// job log seen in previous pass is not processed again even if it could be now
	f.finishedJob(t, 3000202, "")
	f.jobLog(t, 3000202)
	require.NoError(t, p.Poll(ctx))
	_, err = st.GetJob(ctx, 3000202)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(f.subDir, "3000202", "README.a.README"), []byte(fmt.Sprintf(readmeTmpl, "")), 0o600))
	require.NoError(t, p.Poll(ctx))
	_, err = st.GetJob(ctx, 3000202)
	require.ErrorIs(t, err, store.ErrNotFound, "already seen")

	// removed and re-added file is new again
	path := filepath.Join(f.pollDir, fmt.Sprintf("2018-06-07__17:21:%02d-%d.log", 3000202%60, 3000202))
	require.NoError(t, os.Remove(path))
	require.NoError(t, p.Poll(ctx))
	f.jobLog(t, 3000202)
	require.NoError(t, p.Poll(ctx))
	_, err = st.GetJob(ctx, 3000202)
	require.NoError(t, err)
}

func TestPoller_PollErrors(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		p := New(Params{Dir: filepath.Join(t.TempDir(), "nope")})
		require.Error(t, p.Poll(context.Background()))
	})

	t.Run("canceled", func(t *testing.T) {
		f := newFixture(t)
		f.jobLog(t, 1)
		st := &mocks.StoreMock{JobExistsFunc: func(context.Context, int64) (bool, error) { return true, nil }}
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: &mocks.ResolverMock{}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, p.Poll(ctx))
		assert.Empty(t, st.JobExistsCalls())

		require.NoError(t, p.Poll(context.Background()))
		assert.Len(t, st.JobExistsCalls(), 1, "file left by interrupted pass processed by the next one")
	})

	t.Run("failed file retried on next pass", func(t *testing.T) {
		f := newFixture(t)
		f.jobLog(t, 1)
		f.jobLog(t, 2)
		locked := true
		st := &mocks.StoreMock{JobExistsFunc: func(_ context.Context, id int64) (bool, error) {
			if locked && id == 1 {
				return false, errors.New("database is locked")
			}
			return true, nil
		}}
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: &mocks.ResolverMock{}})
		require.NoError(t, p.Poll(context.Background()))
		require.Len(t, st.JobExistsCalls(), 2)

		locked = false
		require.NoError(t, p.Poll(context.Background()))
		require.Len(t, st.JobExistsCalls(), 3, "only the failed job log processed again")
		assert.Equal(t, int64(1), st.JobExistsCalls()[2].ID)

		require.NoError(t, p.Poll(context.Background()))
		assert.Len(t, st.JobExistsCalls(), 3, "nothing left to retry")
	})

	t.Run("store failure logged, pass continues", func(t *testing.T) {
		f := newFixture(t)
		f.jobLog(t, 1)
		f.jobLog(t, 2)
		st := &mocks.StoreMock{JobExistsFunc: func(context.Context, int64) (bool, error) {
			return false, errors.New("db down")
		}}
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: &mocks.ResolverMock{}})
		require.NoError(t, p.Poll(context.Background()))
		require.Len(t, st.JobExistsCalls(), 2)
		assert.Equal(t, int64(1), st.JobExistsCalls()[0].ID)
	})
}

func TestPoller_ProcessJobLogMocks(t *testing.T) {
	f := newFixture(t)
	jobDir := f.finishedJob(t, 7, fmt.Sprintf(readmeTmpl, "5, 6"))
	ctx := context.Background()

	newMocks := func() (*mocks.StoreMock, *mocks.ResolverMock) {
		st := &mocks.StoreMock{
			JobExistsFunc:   func(context.Context, int64) (bool, error) { return false, nil },
			EnsureUserFunc:  func(_ context.Context, u diary.User) (diary.User, error) { return u, nil },
			CreateJobFunc:   func(_ context.Context, j diary.Job) (diary.Job, error) { return j, nil },
			AddBaseRunsFunc: func(_ context.Context, _ int64, br []int64) (int, error) { return len(br), nil },
		}
		res := &mocks.ResolverMock{ResolveFunc: func(context.Context, int64, string, bool) (diary.Status, string) {
			return diary.StatusFinished, jobDir
		}}
		return st, res
	}

	t.Run("recent job resolved with rechecks", func(t *testing.T) {
		st, res := newMocks()
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: res,
			Now: func() time.Time { return time.Date(2018, 6, 7, 18, 0, 0, 0, time.Local) }})
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 7))
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, res.ResolveCalls(), 1)
		assert.True(t, res.ResolveCalls()[0].Recent)
		assert.Equal(t, f.subDir, res.ResolveCalls()[0].SubDir)
		require.Len(t, st.AddBaseRunsCalls(), 1)
		assert.Equal(t, []int64{5, 6}, st.AddBaseRunsCalls()[0].BaseRuns)
	})

	t.Run("create failure returned", func(t *testing.T) {
		st, res := newMocks()
		st.CreateJobFunc = func(context.Context, diary.Job) (diary.Job, error) { return diary.Job{}, errors.New("insert failed") }
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: res})
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 7))
		require.EqualError(t, err, "insert failed")
		assert.False(t, ok)
		assert.Empty(t, st.AddBaseRunsCalls())
	})

	t.Run("user failure returned", func(t *testing.T) {
		st, res := newMocks()
		st.EnsureUserFunc = func(context.Context, diary.User) (diary.User, error) { return diary.User{}, errors.New("no user") }
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: res})
		_, err := p.ProcessJobLog(ctx, f.jobLog(t, 7))
		require.Error(t, err)
		assert.Empty(t, st.CreateJobCalls())
	})

	t.Run("job dir keeps moving", func(t *testing.T) {
		st, _ := newMocks()
		res := &mocks.ResolverMock{ResolveFunc: func(context.Context, int64, string, bool) (diary.Status, string) {
			return diary.StatusRunning, filepath.Join(f.subDir, "gone")
		}}
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: res, MaxRechecks: 3})
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 7))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, res.ResolveCalls(), 3)
		assert.Empty(t, st.CreateJobCalls())
	})

	t.Run("no status", func(t *testing.T) {
		st, _ := newMocks()
		res := &mocks.ResolverMock{ResolveFunc: func(context.Context, int64, string, bool) (diary.Status, string) {
			return diary.StatusNone, ""
		}}
		p := New(Params{Dir: f.pollDir, Store: st, Resolver: res})
		ok, err := p.ProcessJobLog(ctx, f.jobLog(t, 7))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, res.ResolveCalls(), 1)
	})
}
