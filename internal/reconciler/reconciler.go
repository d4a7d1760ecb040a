package reconciler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/rosterapi"
	"golang.org/x/sync/errgroup"
)

// API 是排班服务端接口，rosterapi.Client 实现了它
type API interface {
	ListRoster(ctx context.Context, sess rosterapi.Session, scope domain.Scope, month domain.Month) ([]domain.RosterEntry, error)
	SubmitRoster(ctx context.Context, sess rosterapi.Session, entries []domain.RosterEntry) error
	DeleteRosterEntry(ctx context.Context, sess rosterapi.Session, employeeID int64, date domain.Date) error
	ListShifts(ctx context.Context, sess rosterapi.Session) ([]domain.Shift, error)
	ListEmployees(ctx context.Context, sess rosterapi.Session, department string) ([]domain.Employee, error)
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithBulkConcurrency 限制批量删除时同时进行的请求数，n <= 0 表示不限制
func WithBulkConcurrency(n int) Option {
	return func(r *Reconciler) {
		r.concurrency = n
	}
}

// WithDepartment 只把该部门的员工作为排班表的行
func WithDepartment(department string) Option {
	return func(r *Reconciler) {
		r.department = department
	}
}

// Reconciler 维护可见月份内的排班：confirmed 是服务端已确认的排班，pending 是本地尚未提交的修改。
// 所有对两个 map 的读写都在 mu 下完成；网络请求期间不持有 mu，同一格子上的操作由 keys 串行化。
type Reconciler struct {
	api         API
	sess        rosterapi.Session
	logger      *slog.Logger
	concurrency int
	department  string

	mu        sync.Mutex
	loaded    bool
	scope     domain.Scope
	month     domain.Month
	confirmed map[domain.Key]int64
	pending   map[domain.Key]int64
	employees []domain.Employee
	known     map[int64]struct{}
	shifts    map[int64]domain.Shift

	// 加载期间被删除的格子及删除时的序号，加载完成后从快照中剔除
	deleteSeq uint64
	deleted   map[domain.Key]uint64
	loading   int

	keys keyLocks
}

func New(api API, sess rosterapi.Session, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:       api,
		sess:      sess,
		logger:    slog.Default(),
		confirmed: make(map[domain.Key]int64),
		pending:   make(map[domain.Key]int64),
		known:     make(map[int64]struct{}),
		shifts:    make(map[int64]domain.Shift),
		deleted:   make(map[domain.Key]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type snapshot struct {
	confirmed map[domain.Key]int64
	employees []domain.Employee
	known     map[int64]struct{}
	shifts    map[int64]domain.Shift
}

func (r *Reconciler) fetch(ctx context.Context, scope domain.Scope, month domain.Month) (*snapshot, error) {
	var (
		entries   []domain.RosterEntry
		employees []domain.Employee
		shifts    []domain.Shift
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = r.api.ListRoster(gctx, r.sess, scope, month)
		return err
	})
	g.Go(func() error {
		var err error
		employees, err = r.api.ListEmployees(gctx, r.sess, r.department)
		return err
	})
	g.Go(func() error {
		var err error
		shifts, err = r.api.ListShifts(gctx, r.sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &snapshot{
		confirmed: make(map[domain.Key]int64, len(entries)),
		known:     make(map[int64]struct{}),
		shifts:    make(map[int64]domain.Shift, len(shifts)),
	}

	for _, entry := range entries {
		if entry.ShiftID <= 0 {
			return nil, fmt.Errorf("员工 %d 在 %s 的排班缺少班次", entry.EmployeeID, entry.Date)
		}
		s.confirmed[entry.Key()] = entry.ShiftID
	}

	for _, shift := range shifts {
		s.shifts[shift.ID] = shift
	}

	if scope.All {
		s.employees = employees
	} else {
		// 普通员工只能看到自己这一行
		for _, e := range employees {
			if e.ID == scope.EmployeeID {
				s.employees = append(s.employees, e)
			}
		}
		if len(s.employees) == 0 {
			s.employees = []domain.Employee{{ID: scope.EmployeeID}}
		}
	}
	for _, e := range s.employees {
		s.known[e.ID] = struct{}{}
	}

	return s, nil
}

// Load 加载 (scope, month) 的已确认排班。失败时保留之前的状态不变；
// 范围或月份发生变化时丢弃所有未提交的修改。
func (r *Reconciler) Load(ctx context.Context, scope domain.Scope, month domain.Month) error {
	r.mu.Lock()
	r.loading++
	since := r.deleteSeq
	r.mu.Unlock()

	s, err := r.fetch(ctx, scope, month)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.finishLoadLocked()

	if err != nil {
		r.logger.Error("加载排班失败", "scope", scope.String(), "month", month.String(), "error", err)
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	// 快照可能早于服务端确认的删除
	for k, seq := range r.deleted {
		if seq > since {
			delete(s.confirmed, k)
		}
	}

	if !r.loaded || r.scope != scope || r.month != month {
		r.pending = make(map[domain.Key]int64)
	}
	r.loaded = true
	r.scope = scope
	r.month = month
	r.confirmed = s.confirmed
	r.employees = s.employees
	r.known = s.known
	r.shifts = s.shifts

	return nil
}

func (r *Reconciler) finishLoadLocked() {
	r.loading--
	if r.loading == 0 && len(r.deleted) > 0 {
		r.deleted = make(map[domain.Key]uint64)
	}
}

// removeConfirmedLocked 在服务端确认删除后移除格子
func (r *Reconciler) removeConfirmedLocked(k domain.Key) {
	delete(r.confirmed, k)
	delete(r.pending, k)
	if r.loading > 0 {
		r.deleteSeq++
		r.deleted[k] = r.deleteSeq
	}
}

// Reload 以当前的范围和月份重新加载已确认排班，不影响未提交的修改
func (r *Reconciler) Reload(ctx context.Context) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	scope, month := r.scope, r.month
	r.mu.Unlock()

	return r.Load(ctx, scope, month)
}

// ChangeMonth 切换可见月份。无论加载是否成功，未提交的修改都会被丢弃
func (r *Reconciler) ChangeMonth(ctx context.Context, month domain.Month) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	r.pending = make(map[domain.Key]int64)
	scope := r.scope
	r.mu.Unlock()

	return r.Load(ctx, scope, month)
}

func (r *Reconciler) ClearPending() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = make(map[domain.Key]int64)
}

// Effective 返回格子上实际显示的班次：pending 优先，其次 confirmed
func (r *Reconciler) Effective(employeeID int64, date domain.Date) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.effectiveLocked(domain.Key{EmployeeID: employeeID, Date: date})
}

func (r *Reconciler) effectiveLocked(k domain.Key) (int64, bool) {
	if shiftID, exists := r.pending[k]; exists {
		return shiftID, true
	}
	shiftID, exists := r.confirmed[k]
	return shiftID, exists
}

func (r *Reconciler) Pending() map[domain.Key]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return copyMap(r.pending)
}

func (r *Reconciler) Confirmed() map[domain.Key]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return copyMap(r.confirmed)
}

func (r *Reconciler) Scope() domain.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scope
}

func (r *Reconciler) Month() domain.Month {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.month
}

// Shifts 返回已加载的班次目录
func (r *Reconciler) Shifts() []domain.Shift {
	r.mu.Lock()
	defer r.mu.Unlock()

	shifts := make([]domain.Shift, 0, len(r.shifts))
	for _, s := range r.shifts {
		shifts = append(shifts, s)
	}
	slices.SortFunc(shifts, func(a, b domain.Shift) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return shifts
}

func copyMap(m map[domain.Key]int64) map[domain.Key]int64 {
	out := make(map[domain.Key]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *Reconciler) checkEditable(a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return ErrNotLoaded
	}
	if !r.scope.All {
		return ErrReadOnlyScope
	}
	if a != nil && !a.valid() {
		return ErrInvalidAssignment
	}
	return nil
}

// setPendingLocked 记录一次本地修改，返回格子显示的班次是否发生了变化。
// 改回已确认的班次时直接移除 pending，避免提交无意义的写入。
func (r *Reconciler) setPendingLocked(k domain.Key, shiftID int64) bool {
	if confirmed, exists := r.confirmed[k]; exists && confirmed == shiftID {
		_, had := r.pending[k]
		delete(r.pending, k)
		return had
	}
	if current, exists := r.pending[k]; exists && current == shiftID {
		return false
	}
	r.pending[k] = shiftID
	return true
}

// AssignCell 修改单个格子，返回格子显示的班次是否发生了变化。
// 指定班次只修改本地的 pending；清除一个已确认的格子会立即请求服务端删除，成功后才从 confirmed 中移除。
func (r *Reconciler) AssignCell(ctx context.Context, employeeID int64, date domain.Date, a Assignment) (bool, error) {
	if err := r.checkEditable(&a); err != nil {
		return false, err
	}

	k := domain.Key{EmployeeID: employeeID, Date: date}
	unlock := r.keys.lock(k)
	defer unlock()

	if !a.IsClear() {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.setPendingLocked(k, a.ShiftID()), nil
	}

	r.mu.Lock()
	_, inConfirmed := r.confirmed[k]
	_, inPending := r.pending[k]
	if !inConfirmed {
		delete(r.pending, k)
		r.mu.Unlock()
		return inPending, nil
	}
	r.mu.Unlock()

	if err := r.api.DeleteRosterEntry(ctx, r.sess, k.EmployeeID, k.Date); err != nil {
		r.logger.Warn("删除排班失败", "employeeID", k.EmployeeID, "date", k.Date.String(), "error", err)
		return false, &DeleteError{Key: k, Err: err}
	}

	r.mu.Lock()
	r.removeConfirmedLocked(k)
	r.mu.Unlock()

	return true, nil
}

type BulkResult struct {
	Changed int            // 显示的班次发生变化的格子数
	Failed  []*DeleteError // 删除失败的格子，按 (员工, 日期) 排序
}

// AssignBulk 对 employeeIDs × dates 中的每个格子执行与 AssignCell 相同的规则。
// 需要删除的格子并发请求服务端，等待全部完成；单个失败不会影响其他格子。
// 有失败时 error 不为 nil，但 BulkResult 仍然有效。
func (r *Reconciler) AssignBulk(ctx context.Context, employeeIDs []int64, dates []domain.Date, a Assignment) (BulkResult, error) {
	if err := r.checkEditable(&a); err != nil {
		return BulkResult{}, err
	}

	keys := cartesianKeys(employeeIDs, dates)
	if len(keys) == 0 {
		return BulkResult{}, nil
	}

	unlock := r.keys.lockAll(keys)
	defer unlock()

	result := BulkResult{}

	if !a.IsClear() {
		r.mu.Lock()
		for _, k := range keys {
			if r.setPendingLocked(k, a.ShiftID()) {
				result.Changed++
			}
		}
		r.mu.Unlock()
		return result, nil
	}

	toDelete := make([]domain.Key, 0, len(keys))
	r.mu.Lock()
	for _, k := range keys {
		if _, exists := r.confirmed[k]; exists {
			toDelete = append(toDelete, k)
			continue
		}
		if _, exists := r.pending[k]; exists {
			delete(r.pending, k)
			result.Changed++
		}
	}
	r.mu.Unlock()

	if len(toDelete) == 0 {
		return result, nil
	}

	var (
		collectMu sync.Mutex
		deleted   = make([]domain.Key, 0, len(toDelete))
		failed    = make([]*DeleteError, 0)
	)

	// 不使用 errgroup.WithContext：一个删除失败不能取消其他删除
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for _, k := range toDelete {
		g.Go(func() error {
			err := r.api.DeleteRosterEntry(ctx, r.sess, k.EmployeeID, k.Date)

			collectMu.Lock()
			defer collectMu.Unlock()
			if err != nil {
				failed = append(failed, &DeleteError{Key: k, Err: err})
				return nil
			}
			deleted = append(deleted, k)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	for _, k := range deleted {
		r.removeConfirmedLocked(k)
	}
	r.mu.Unlock()
	result.Changed += len(deleted)

	if len(failed) == 0 {
		return result, nil
	}

	sortDeleteErrors(failed)
	result.Failed = failed

	errs := make([]error, len(failed))
	for i, f := range failed {
		r.logger.Warn("批量删除排班失败", "employeeID", f.Key.EmployeeID, "date", f.Key.Date.String(), "error", f.Err)
		errs[i] = f
	}
	r.logger.Info("批量修改排班完成", "changed", result.Changed, "failed", len(failed))

	return result, errors.Join(errs...)
}

func sortDeleteErrors(errs []*DeleteError) {
	keys := make([]domain.Key, len(errs))
	byKey := make(map[domain.Key]*DeleteError, len(errs))
	for i, e := range errs {
		keys[i] = e.Key
		byKey[e.Key] = e
	}
	sortKeys(keys)
	for i, k := range keys {
		errs[i] = byKey[k]
	}
}

type SubmitResult struct {
	Submitted int
	// Resynced 为 false 表示提交成功但重新加载失败，此时显示的已确认排班可能已过期
	Resynced bool
}

// SubmitPending 校验并一次性提交所有 pending。校验失败时不发出任何请求；
// 提交失败时 pending 保持不变；提交成功后清除已提交的 pending 并重新加载一次。
func (r *Reconciler) SubmitPending(ctx context.Context) (SubmitResult, error) {
	if err := r.checkEditable(nil); err != nil {
		return SubmitResult{}, err
	}

	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return SubmitResult{}, ErrNothingToSubmit
	}
	batch := copyMap(r.pending)
	known := r.known
	shifts := r.shifts
	scope, month := r.scope, r.month
	r.mu.Unlock()

	entries, err := buildBatch(batch, known, shifts)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := r.api.SubmitRoster(ctx, r.sess, entries); err != nil {
		r.logger.Error("提交排班失败", "count", len(entries), "error", err)
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	// 只移除已提交且在提交期间没有再被修改的格子
	r.mu.Lock()
	for k, shiftID := range batch {
		if current, exists := r.pending[k]; exists && current == shiftID {
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()

	result := SubmitResult{Submitted: len(entries)}
	r.logger.Info("提交排班成功", "count", len(entries), "scope", scope.String(), "month", month.String())

	if err := r.Load(ctx, scope, month); err != nil {
		return result, err
	}
	result.Resynced = true

	return result, nil
}

func buildBatch(batch map[domain.Key]int64, known map[int64]struct{}, shifts map[int64]domain.Shift) ([]domain.RosterEntry, error) {
	keys := make([]domain.Key, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sortKeys(keys)

	var problems []Problem
	entries := make([]domain.RosterEntry, 0, len(keys))
	for _, k := range keys {
		if err := k.Date.Validate(); err != nil {
			problems = append(problems, Problem{Key: k, Reason: "日期格式错误"})
			continue
		}
		if _, exists := known[k.EmployeeID]; !exists {
			problems = append(problems, Problem{Key: k, Reason: "员工不在当前排班范围内"})
			continue
		}
		shift, exists := shifts[batch[k]]
		if !exists {
			problems = append(problems, Problem{Key: k, Reason: fmt.Sprintf("班次 %d 不存在", batch[k])})
			continue
		}

		entries = append(entries, domain.RosterEntry{
			EmployeeID: k.EmployeeID,
			Date:       k.Date,
			ShiftID:    shift.ID,
			IsOff:      shift.IsOff,
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return entries, nil
}
