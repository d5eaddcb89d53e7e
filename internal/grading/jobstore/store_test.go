package jobstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"essaygrade/internal/grading/jobstore"
	"essaygrade/internal/grading/model"
	"essaygrade/internal/testutil"
	appErr "essaygrade/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*jobstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := jobstore.NewRedisStore(jobstore.RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func stores(t *testing.T) map[string]jobstore.Store {
	redisStore, _ := newRedisStore(t)
	return map[string]jobstore.Store{
		"file":  jobstore.NewFileStore(filepath.Join(t.TempDir(), "state", "jobs.json")),
		"redis": redisStore,
	}
}

func job(id string, status model.JobStatus, processed int, at time.Time) model.BatchJob {
	return model.BatchJob{
		ID:             id,
		Status:         status,
		TotalCount:     10,
		ProcessedCount: processed,
		SuccessCount:   processed,
		Errors:         []string{},
		UpdatedAt:      at,
	}
}

func TestStoreContract(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "upload_a")
			testutil.AssertCode(t, err, appErr.NotFound)
			testutil.AssertCode(t, store.Save(ctx, model.BatchJob{}), appErr.ValidationFailed)

			testutil.AssertNoError(t, store.Save(ctx, job("upload_a", model.JobProcessing, 2, base)))
			testutil.AssertNoError(t, store.Save(ctx, job("upload_b", model.JobProcessing, 1, base.Add(time.Minute))))
			testutil.AssertNoError(t, store.Save(ctx, job("upload_a", model.JobProcessing, 5, base.Add(2*time.Minute))))

			got, err := store.Get(ctx, "upload_a")
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got.ProcessedCount, 5)
			testutil.AssertTrue(t, got.UpdatedAt.Equal(base.Add(2*time.Minute)), "updated_at round-trips")

			list, err := store.List(ctx)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, len(list), 2)
			testutil.AssertEqual(t, list[0].ID, "upload_a")
			testutil.AssertEqual(t, list[1].ID, "upload_b")

			testutil.AssertNoError(t, store.Delete(ctx, "upload_b"))
			testutil.AssertNoError(t, store.Delete(ctx, "upload_missing"))
			list, err = store.List(ctx)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, len(list), 1)
		})
	}
}

func TestStoreTerminalSnapshotIsFinal(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			testutil.AssertNoError(t, store.Save(ctx, job("upload_t", model.JobCompleted, 10, at)))
			testutil.AssertNoError(t, store.Save(ctx, job("upload_t", model.JobProcessing, 3, at.Add(time.Hour))))

			got, err := store.Get(ctx, "upload_t")
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got.Status, model.JobCompleted)
			testutil.AssertEqual(t, got.ProcessedCount, 10)
		})
	}
}

func TestRedisStoreConcurrentWritersKeepTerminal(t *testing.T) {
	store, mr := newRedisStore(t)
	other, err := jobstore.NewRedisStore(jobstore.RedisConfig{Addr: mr.Addr()})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(processed int) {
			defer wg.Done()
			<-start
			_ = other.Save(ctx, job("upload_c", model.JobProcessing, processed, at))
		}(i)
	}
	var doneErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		doneErr = store.Save(ctx, job("upload_c", model.JobCompleted, 10, at))
	}()
	close(start)
	wg.Wait()

	testutil.AssertNoError(t, doneErr)
	got, err := store.Get(ctx, "upload_c")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Status, model.JobCompleted)
	testutil.AssertEqual(t, got.ProcessedCount, 10)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	ctx := context.Background()
	testutil.AssertNoError(t, jobstore.NewFileStore(path).Save(ctx, job("upload_r", model.JobProcessing, 4, time.Now())))

	got, err := jobstore.NewFileStore(path).Get(ctx, "upload_r")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ProcessedCount, 4)
}

func TestRedisStoreDropsExpiredFromIndex(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	testutil.AssertNoError(t, store.Save(ctx, job("upload_x", model.JobProcessing, 1, time.Now())))

	mr.FastForward(2 * time.Hour)
	list, err := store.List(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(list), 0)
	testutil.AssertFalse(t, mr.Exists("essaygrade:job:upload_x"), "snapshot should have expired")
}

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	_, err := jobstore.NewRedisStore(jobstore.RedisConfig{})
	testutil.AssertTrue(t, err != nil, "empty addr should fail")
}
