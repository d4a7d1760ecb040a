package reconciler

import (
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// View 是某一时刻排班表的只读投影，用于展示和导出
type View struct {
	Scope     domain.Scope
	Month     domain.Month
	Employees []domain.Employee
	Dates     []domain.Date
	Shifts    map[int64]domain.Shift
	Cells     map[domain.Key]int64 // 实际显示的班次
	Pending   map[domain.Key]bool  // 尚未提交的格子
}

func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		Scope:     r.scope,
		Month:     r.month,
		Employees: append([]domain.Employee(nil), r.employees...),
		Shifts:    make(map[int64]domain.Shift, len(r.shifts)),
		Cells:     make(map[domain.Key]int64, len(r.confirmed)+len(r.pending)),
		Pending:   make(map[domain.Key]bool, len(r.pending)),
	}
	if !r.month.IsZero() {
		v.Dates = r.month.Dates()
	}

	for id, s := range r.shifts {
		v.Shifts[id] = s
	}
	for k, shiftID := range r.confirmed {
		v.Cells[k] = shiftID
	}
	for k, shiftID := range r.pending {
		v.Cells[k] = shiftID
		v.Pending[k] = true
	}

	return v
}

// Cell 返回格子上显示的班次
func (v View) Cell(employeeID int64, date domain.Date) (domain.Shift, bool) {
	shiftID, exists := v.Cells[domain.Key{EmployeeID: employeeID, Date: date}]
	if !exists {
		return domain.Shift{}, false
	}
	shift, exists := v.Shifts[shiftID]
	if !exists {
		// 班次目录中没有的班次仍然要显示出来
		return domain.Shift{ID: shiftID}, true
	}
	return shift, true
}

const (
	EmptyLabel   = "-" // 没有排班
	UnknownLabel = "?" // 班次目录中没有的班次
)

// Label 返回格子上显示的班次代码，没有排班时为 EmptyLabel
func (v View) Label(employeeID int64, date domain.Date) string {
	shift, exists := v.Cell(employeeID, date)
	if !exists {
		return EmptyLabel
	}
	if shift.ShiftCode == "" {
		return UnknownLabel
	}
	return shift.ShiftCode
}
