package reconciler

import (
	"context"
	"errors"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/rosterapi"
)

var errServer = errors.New("服务器内部错误")

type listCall struct {
	scope domain.Scope
	month domain.Month
}

// fakeAPI 在内存中模拟排班服务端，并记录所有调用
type fakeAPI struct {
	mu sync.Mutex

	roster    map[domain.Key]int64
	employees []domain.Employee
	shifts    []domain.Shift

	listCalls   []listCall
	submitted   [][]domain.RosterEntry
	deleteCalls []domain.Key

	failList   error
	failSubmit error
	failDelete map[domain.Key]error

	// 不为 nil 时，删除请求会在 started 上通知并等待 release
	deleteStarted chan domain.Key
	deleteRelease chan struct{}

	// 不为 nil 时，ListRoster 读取完数据后在 started 上通知并等待 release
	listStarted chan struct{}
	listRelease chan struct{}

	inflight    int
	maxInflight int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		roster: map[domain.Key]int64{},
		employees: []domain.Employee{
			{ID: 1, EmployeeCode: "E00001", FullName: "王伟"},
			{ID: 2, EmployeeCode: "E00002", FullName: "李静"},
			{ID: 3, EmployeeCode: "E00003", FullName: "张敏"},
		},
		shifts: []domain.Shift{
			{ID: 1, Name: "早班", ShiftCode: "D"},
			{ID: 2, Name: "中班", ShiftCode: "E"},
			{ID: 3, Name: "休息", ShiftCode: "OFF", IsOff: true},
		},
		failDelete: map[domain.Key]error{},
	}
}

func (f *fakeAPI) ListRoster(ctx context.Context, sess rosterapi.Session, scope domain.Scope, month domain.Month) ([]domain.RosterEntry, error) {
	entries, err := f.readRoster(scope, month)

	f.mu.Lock()
	started, release := f.listStarted, f.listRelease
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}

	return entries, err
}

func (f *fakeAPI) readRoster(scope domain.Scope, month domain.Month) ([]domain.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, listCall{scope: scope, month: month})
	if f.failList != nil {
		return nil, f.failList
	}

	entries := make([]domain.RosterEntry, 0)
	for k, shiftID := range f.roster {
		if !month.Contains(k.Date) {
			continue
		}
		if !scope.All && k.EmployeeID != scope.EmployeeID {
			continue
		}
		entries = append(entries, domain.RosterEntry{EmployeeID: k.EmployeeID, Date: k.Date, ShiftID: shiftID})
	}
	return entries, nil
}

func (f *fakeAPI) SubmitRoster(ctx context.Context, sess rosterapi.Session, entries []domain.RosterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, entries)
	if f.failSubmit != nil {
		return f.failSubmit
	}
	for _, e := range entries {
		f.roster[e.Key()] = e.ShiftID
	}
	return nil
}

func (f *fakeAPI) DeleteRosterEntry(ctx context.Context, sess rosterapi.Session, employeeID int64, date domain.Date) error {
	k := domain.Key{EmployeeID: employeeID, Date: date}

	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, k)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	started, release := f.deleteStarted, f.deleteRelease
	f.mu.Unlock()

	if started != nil {
		started <- k
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--

	if err := f.failDelete[k]; err != nil {
		return err
	}
	delete(f.roster, k)
	return nil
}

func (f *fakeAPI) ListShifts(ctx context.Context, sess rosterapi.Session) ([]domain.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Shift(nil), f.shifts...), nil
}

func (f *fakeAPI) ListEmployees(ctx context.Context, sess rosterapi.Session, department string) ([]domain.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Employee(nil), f.employees...), nil
}

func (f *fakeAPI) set(employeeID int64, date domain.Date, shiftID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster[domain.Key{EmployeeID: employeeID, Date: date}] = shiftID
}

func (f *fakeAPI) counts() (lists, submits, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls), len(f.submitted), len(f.deleteCalls)
}
