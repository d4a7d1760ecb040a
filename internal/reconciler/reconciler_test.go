package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/rosterapi"
)

var (
	june = domain.Month{Year: 2024, Month: 6}
	july = domain.Month{Year: 2024, Month: 7}
)

func key(employeeID int64, date domain.Date) domain.Key {
	return domain.Key{EmployeeID: employeeID, Date: date}
}

func newLoaded(t *testing.T, api *fakeAPI, opts ...Option) *Reconciler {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	r := New(api, rosterapi.Session{Token: "tok"}, opts...)
	require.NoError(t, r.Load(context.Background(), domain.ScopeAll(), june))
	return r
}

func TestLoadRoundTrip(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	api.set(2, "2024-06-15", 2)
	api.set(3, "2024-06-30", 3)
	api.set(1, "2024-07-01", 1) // 不在可见月份内

	r := newLoaded(t, api)

	confirmed := r.Confirmed()
	assert.Len(t, confirmed, 3)
	assert.Empty(t, r.Pending())
	for k, shiftID := range confirmed {
		got, ok := r.Effective(k.EmployeeID, k.Date)
		assert.True(t, ok)
		assert.Equal(t, shiftID, got)
	}

	_, ok := r.Effective(1, "2024-07-01")
	assert.False(t, ok)
}

func TestLoadFailureKeepsPreviousState(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)
	_, err := r.AssignCell(context.Background(), 2, "2024-06-02", AssignShift(2))
	require.NoError(t, err)

	api.failList = errServer
	err = r.Reload(context.Background())
	assert.ErrorIs(t, err, ErrFetch)

	assert.Equal(t, map[domain.Key]int64{key(1, "2024-06-01"): 1}, r.Confirmed())
	assert.Equal(t, map[domain.Key]int64{key(2, "2024-06-02"): 2}, r.Pending())
	assert.Equal(t, june, r.Month())
}

func TestLoadRejectsEntryWithoutShift(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 0)

	r := New(api, rosterapi.Session{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	err := r.Load(context.Background(), domain.ScopeAll(), june)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestPendingWinsOverConfirmed(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)

	changed, err := r.AssignCell(context.Background(), 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)
	assert.True(t, changed)

	got, ok := r.Effective(1, "2024-06-01")
	assert.True(t, ok)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, int64(1), r.Confirmed()[key(1, "2024-06-01")])

	view := r.View()
	assert.Equal(t, "E", view.Label(1, "2024-06-01"))
	assert.True(t, view.Pending[key(1, "2024-06-01")])
	assert.Equal(t, "-", view.Label(2, "2024-06-01"))
}

func TestAssignBackToConfirmedDropsPending(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)
	require.Len(t, r.Pending(), 1)

	changed, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(1))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, r.Pending())

	changed, err = r.AssignCell(ctx, 1, "2024-06-01", AssignShift(1))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestClearPendingOnlyKeyMakesNoRequest(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-03", AssignShift(2))
	require.NoError(t, err)

	changed, err := r.AssignCell(ctx, 1, "2024-06-03", Clear())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, r.Pending())

	_, _, deletes := api.counts()
	assert.Zero(t, deletes)
}

func TestClearConfirmedKeyDeletesOnce(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)

	changed, err := r.AssignCell(context.Background(), 1, "2024-06-01", Clear())
	require.NoError(t, err)
	assert.True(t, changed)

	_, _, deletes := api.counts()
	assert.Equal(t, 1, deletes)
	assert.Empty(t, r.Confirmed())
	_, ok := r.Effective(1, "2024-06-01")
	assert.False(t, ok)
}

func TestClearConfirmedKeyFailureKeepsConfirmed(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	api.failDelete[key(1, "2024-06-01")] = errServer
	r := newLoaded(t, api)

	changed, err := r.AssignCell(context.Background(), 1, "2024-06-01", Clear())
	assert.False(t, changed)

	var delErr *DeleteError
	require.True(t, errors.As(err, &delErr))
	assert.Equal(t, key(1, "2024-06-01"), delErr.Key)
	assert.ErrorIs(t, err, errServer)

	_, _, deletes := api.counts()
	assert.Equal(t, 1, deletes)
	assert.Equal(t, map[domain.Key]int64{key(1, "2024-06-01"): 1}, r.Confirmed())
}

func TestClearUnassignedIsNoop(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)

	changed, err := r.AssignCell(context.Background(), 1, "2024-06-01", Clear())
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, deletes := api.counts()
	assert.Zero(t, deletes)
}

func TestInvalidAssignmentRejected(t *testing.T) {
	r := newLoaded(t, newFakeAPI())

	_, err := r.AssignCell(context.Background(), 1, "2024-06-01", Assignment{})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
	_, err = r.AssignBulk(context.Background(), []int64{1}, []domain.Date{"2024-06-01"}, AssignShift(-1))
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestAssignBulkCartesianProduct(t *testing.T) {
	r := newLoaded(t, newFakeAPI())

	res, err := r.AssignBulk(context.Background(), []int64{1, 2}, []domain.Date{"2024-06-01", "2024-06-02"}, AssignShift(1))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Changed)

	assert.Equal(t, map[domain.Key]int64{
		key(1, "2024-06-01"): 1,
		key(1, "2024-06-02"): 1,
		key(2, "2024-06-01"): 1,
		key(2, "2024-06-02"): 1,
	}, r.Pending())
}

func TestAssignBulkDeduplicatesSelection(t *testing.T) {
	r := newLoaded(t, newFakeAPI())

	res, err := r.AssignBulk(context.Background(), []int64{1, 1}, []domain.Date{"2024-06-01", "2024-06-01"}, AssignShift(2))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Len(t, r.Pending(), 1)

	res, err = r.AssignBulk(context.Background(), nil, []domain.Date{"2024-06-01"}, AssignShift(2))
	require.NoError(t, err)
	assert.Zero(t, res.Changed)
}

func TestAssignBulkClearToleratesPartialFailure(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	api.set(1, "2024-06-02", 1)
	api.set(2, "2024-06-01", 2)
	api.set(2, "2024-06-02", 2)
	api.failDelete[key(2, "2024-06-01")] = errServer
	r := newLoaded(t, api)

	// 一个只在 pending 中的格子，清除时不需要请求
	_, err := r.AssignCell(context.Background(), 3, "2024-06-01", AssignShift(1))
	require.NoError(t, err)

	res, err := r.AssignBulk(context.Background(), []int64{1, 2, 3}, []domain.Date{"2024-06-01", "2024-06-02"}, Clear())
	require.Error(t, err)

	var delErr *DeleteError
	require.True(t, errors.As(err, &delErr))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, key(2, "2024-06-01"), res.Failed[0].Key)
	assert.Equal(t, 4, res.Changed) // 3 个删除成功 + 1 个 pending 移除

	assert.Equal(t, map[domain.Key]int64{key(2, "2024-06-01"): 2}, r.Confirmed())
	assert.Empty(t, r.Pending())

	_, _, deletes := api.counts()
	assert.Equal(t, 4, deletes)
}

func TestAssignBulkRespectsConcurrencyLimit(t *testing.T) {
	api := newFakeAPI()
	dates := june.Dates()[:10]
	for _, d := range dates {
		api.set(1, d, 1)
	}
	r := newLoaded(t, api, WithBulkConcurrency(2))

	api.deleteStarted = make(chan domain.Key)
	api.deleteRelease = make(chan struct{})

	done := make(chan BulkResult)
	go func() {
		res, _ := r.AssignBulk(context.Background(), []int64{1}, dates, Clear())
		done <- res
	}()

	for range dates {
		<-api.deleteStarted
		api.deleteRelease <- struct{}{}
	}
	res := <-done

	assert.Equal(t, 10, res.Changed)
	assert.LessOrEqual(t, api.maxInflight, 2)
	assert.Empty(t, r.Confirmed())
}

func TestSameKeyOperationsAreSerialized(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)
	ctx := context.Background()

	api.deleteStarted = make(chan domain.Key)
	api.deleteRelease = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.AssignCell(ctx, 1, "2024-06-01", Clear())
		assert.NoError(t, err)
	}()
	<-api.deleteStarted

	// 删除还在进行中，同一格子的赋值必须排在删除之后
	assigned := make(chan struct{})
	go func() {
		defer close(assigned)
		_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
		assert.NoError(t, err)
	}()

	// 其他格子不受影响
	_, err := r.AssignCell(ctx, 2, "2024-06-01", AssignShift(1))
	require.NoError(t, err)

	api.deleteRelease <- struct{}{}
	wg.Wait()
	<-assigned

	assert.Empty(t, r.Confirmed())
	assert.Equal(t, map[domain.Key]int64{
		key(1, "2024-06-01"): 2,
		key(2, "2024-06-01"): 1,
	}, r.Pending())
	assert.Zero(t, r.keys.size())
}

func TestLoadDropsKeysDeletedDuringFetch(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	api.set(2, "2024-06-01", 2)
	r := newLoaded(t, api)
	ctx := context.Background()

	api.mu.Lock()
	api.listStarted = make(chan struct{})
	api.listRelease = make(chan struct{})
	api.mu.Unlock()

	reloaded := make(chan error, 1)
	go func() {
		reloaded <- r.Reload(ctx)
	}()
	<-api.listStarted

	// 快照已经读出，删除在其之后被服务端确认
	changed, err := r.AssignCell(ctx, 1, "2024-06-01", Clear())
	require.NoError(t, err)
	assert.True(t, changed)

	api.listRelease <- struct{}{}
	require.NoError(t, <-reloaded)

	assert.Equal(t, map[domain.Key]int64{key(2, "2024-06-01"): 2}, r.Confirmed())
	_, ok := r.Effective(1, "2024-06-01")
	assert.False(t, ok)

	// 之后的加载不再受影响
	api.mu.Lock()
	api.listStarted = nil
	api.listRelease = nil
	api.mu.Unlock()
	api.set(1, "2024-06-01", 3)
	require.NoError(t, r.Reload(ctx))
	assert.Equal(t, map[domain.Key]int64{
		key(1, "2024-06-01"): 3,
		key(2, "2024-06-01"): 2,
	}, r.Confirmed())
}

func TestSubmitInvalidDateSendsNothing(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(1))
	require.NoError(t, err)
	_, err = r.AssignCell(ctx, 1, "2024-13-40", AssignShift(1))
	require.NoError(t, err)
	before := r.Pending()

	_, err = r.SubmitPending(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Len(t, vErr.Problems, 1)
	assert.Equal(t, key(1, "2024-13-40"), vErr.Problems[0].Key)

	lists, submits, deletes := api.counts()
	assert.Equal(t, 1, lists)
	assert.Zero(t, submits)
	assert.Zero(t, deletes)
	assert.Equal(t, before, r.Pending())
}

func TestSubmitUnknownEmployeeRejectsWholeBatch(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignBulk(ctx, []int64{1, 99}, []domain.Date{"2024-06-01"}, AssignShift(1))
	require.NoError(t, err)

	_, err = r.SubmitPending(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	_, submits, _ := api.counts()
	assert.Zero(t, submits)
	assert.Len(t, r.Pending(), 2)
}

func TestSubmitUnknownShiftRejected(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)

	_, err := r.AssignCell(context.Background(), 1, "2024-06-01", AssignShift(42))
	require.NoError(t, err)

	_, err = r.SubmitPending(context.Background())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitNothing(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)

	_, err := r.SubmitPending(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSubmit)

	_, submits, _ := api.counts()
	assert.Zero(t, submits)
}

func TestSubmitSuccessClearsPendingAndReloadsOnce(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)
	_, err = r.AssignCell(ctx, 2, "2024-06-05", AssignShift(3))
	require.NoError(t, err)

	res, err := r.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{Submitted: 2, Resynced: true}, res)
	assert.Empty(t, r.Pending())

	api.mu.Lock()
	require.Len(t, api.submitted, 1)
	assert.Equal(t, []domain.RosterEntry{
		{EmployeeID: 1, Date: "2024-06-01", ShiftID: 2},
		{EmployeeID: 2, Date: "2024-06-05", ShiftID: 3, IsOff: true},
	}, api.submitted[0])
	require.Len(t, api.listCalls, 2)
	assert.Equal(t, listCall{scope: domain.ScopeAll(), month: june}, api.listCalls[1])
	api.mu.Unlock()

	assert.Equal(t, map[domain.Key]int64{
		key(1, "2024-06-01"): 2,
		key(2, "2024-06-05"): 3,
	}, r.Confirmed())
}

func TestSubmitWriteFailureKeepsPending(t *testing.T) {
	api := newFakeAPI()
	api.failSubmit = errServer
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)

	_, err = r.SubmitPending(ctx)
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, errServer)
	assert.Equal(t, map[domain.Key]int64{key(1, "2024-06-01"): 2}, r.Pending())

	lists, _, _ := api.counts()
	assert.Equal(t, 1, lists)
}

func TestSubmitSucceedsButReloadFails(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)

	api.failList = errServer
	res, err := r.SubmitPending(ctx)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, SubmitResult{Submitted: 1, Resynced: false}, res)
	assert.Empty(t, r.Pending())
}

func TestChangeMonthClearsPending(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-07-01", 1)
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignBulk(ctx, []int64{1, 2}, []domain.Date{"2024-06-01", "2024-06-02"}, AssignShift(2))
	require.NoError(t, err)

	require.NoError(t, r.ChangeMonth(ctx, july))
	assert.Empty(t, r.Pending())
	assert.Equal(t, july, r.Month())
	assert.Equal(t, map[domain.Key]int64{key(1, "2024-07-01"): 1}, r.Confirmed())
}

func TestChangeMonthClearsPendingEvenWhenLoadFails(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)

	api.failList = errServer
	err = r.ChangeMonth(ctx, july)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Empty(t, r.Pending())
	assert.Equal(t, june, r.Month())
}

func TestClearPending(t *testing.T) {
	api := newFakeAPI()
	r := newLoaded(t, api)

	_, err := r.AssignBulk(context.Background(), []int64{1, 2, 3}, []domain.Date{"2024-06-01"}, AssignShift(1))
	require.NoError(t, err)

	r.ClearPending()
	assert.Empty(t, r.Pending())
	lists, submits, deletes := api.counts()
	assert.Equal(t, 1, lists)
	assert.Zero(t, submits+deletes)
}

func TestSelfScopeIsReadOnly(t *testing.T) {
	api := newFakeAPI()
	api.set(2, "2024-06-01", 1)
	api.set(1, "2024-06-01", 2)
	r := New(api, rosterapi.Session{Token: "tok"}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	require.NoError(t, r.Load(ctx, domain.ScopeSelf(2), june))
	assert.Equal(t, map[domain.Key]int64{key(2, "2024-06-01"): 1}, r.Confirmed())

	view := r.View()
	require.Len(t, view.Employees, 1)
	assert.Equal(t, int64(2), view.Employees[0].ID)

	_, err := r.AssignCell(ctx, 2, "2024-06-02", AssignShift(1))
	assert.ErrorIs(t, err, ErrReadOnlyScope)
	_, err = r.AssignBulk(ctx, []int64{2}, []domain.Date{"2024-06-02"}, Clear())
	assert.ErrorIs(t, err, ErrReadOnlyScope)
	_, err = r.SubmitPending(ctx)
	assert.ErrorIs(t, err, ErrReadOnlyScope)
}

func TestOperationsBeforeLoad(t *testing.T) {
	r := New(newFakeAPI(), rosterapi.Session{})

	_, err := r.AssignCell(context.Background(), 1, "2024-06-01", AssignShift(1))
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, r.Reload(context.Background()), ErrNotLoaded)
	assert.ErrorIs(t, r.ChangeMonth(context.Background(), june), ErrNotLoaded)
}

func TestAssignThenSubmitScenario(t *testing.T) {
	api := newFakeAPI()
	api.set(1, "2024-06-01", 1)
	r := newLoaded(t, api)
	ctx := context.Background()

	_, err := r.AssignCell(ctx, 1, "2024-06-01", AssignShift(2))
	require.NoError(t, err)
	assert.Equal(t, map[domain.Key]int64{key(1, "2024-06-01"): 2}, r.Pending())
	got, _ := r.Effective(1, "2024-06-01")
	assert.Equal(t, int64(2), got)

	_, err = r.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Pending())
	assert.Equal(t, map[domain.Key]int64{key(1, "2024-06-01"): 2}, r.Confirmed())
}
