package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/export"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/reconciler"
)

// Editor 是 planner 需要的排班编辑操作，*reconciler.Reconciler 实现了它
type Editor interface {
	Month() domain.Month
	Shifts() []domain.Shift
	Effective(employeeID int64, date domain.Date) (int64, bool)
	AssignCell(ctx context.Context, employeeID int64, date domain.Date, a reconciler.Assignment) (bool, error)
	AssignBulk(ctx context.Context, employeeIDs []int64, dates []domain.Date, a reconciler.Assignment) (reconciler.BulkResult, error)
}

type Report struct {
	Changed int
	Failed  []*reconciler.DeleteError
}

// Apply 按顺序执行计划中的每一条修改。删除失败会记录在 Report.Failed 中并继续执行后面的修改。
func Apply(ctx context.Context, ed Editor, plan *Plan) (Report, error) {
	if plan.ParsedMonth() != ed.Month() {
		return Report{}, fmt.Errorf("%w: 计划为 %s，当前为 %s", ErrMonthMismatch, plan.ParsedMonth(), ed.Month())
	}

	shifts := ed.Shifts()
	report := Report{}
	for _, edit := range plan.Edits {
		a, err := ResolveShift(edit.Shift, shifts)
		if err != nil {
			return report, err
		}

		res, err := ed.AssignBulk(ctx, edit.Employees, edit.Dates, a)
		report.Changed += res.Changed
		report.Failed = append(report.Failed, res.Failed...)
		if err != nil && len(res.Failed) == 0 {
			return report, err
		}
	}

	return report, report.err()
}

// ApplyCells 执行从表格导入的逐格修改。清除操作按日期合并成批量删除。
func ApplyCells(ctx context.Context, ed Editor, edits []export.CellEdit) (Report, error) {
	report := Report{}

	clears := make(map[domain.Date][]int64)
	dates := make([]domain.Date, 0)
	for _, edit := range edits {
		if edit.Assignment.IsClear() {
			if _, exists := clears[edit.Key.Date]; !exists {
				dates = append(dates, edit.Key.Date)
			}
			clears[edit.Key.Date] = append(clears[edit.Key.Date], edit.Key.EmployeeID)
			continue
		}

		changed, err := ed.AssignCell(ctx, edit.Key.EmployeeID, edit.Key.Date, edit.Assignment)
		if err != nil {
			return report, err
		}
		if changed {
			report.Changed++
		}
	}

	for _, d := range dates {
		res, err := ed.AssignBulk(ctx, clears[d], []domain.Date{d}, reconciler.Clear())
		report.Changed += res.Changed
		report.Failed = append(report.Failed, res.Failed...)
		if err != nil && len(res.Failed) == 0 {
			return report, err
		}
	}

	return report, report.err()
}

func (r Report) err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type Preview struct {
	Assigned int // 将会指定或改变班次的格子数
	Cleared  int // 将会被清除的格子数
}

// PreviewPlan 计算执行计划后会发生变化的格子，不修改任何状态，也不发出请求
func PreviewPlan(ed Editor, plan *Plan) (Preview, error) {
	if plan.ParsedMonth() != ed.Month() {
		return Preview{}, fmt.Errorf("%w: 计划为 %s，当前为 %s", ErrMonthMismatch, plan.ParsedMonth(), ed.Month())
	}
	cells, err := plan.cells(ed.Shifts())
	if err != nil {
		return Preview{}, err
	}
	return PreviewCells(ed, cells), nil
}

func PreviewCells(ed Editor, edits []export.CellEdit) Preview {
	// 同一格子以最后一次修改为准，0 表示空
	overlay := make(map[domain.Key]int64)
	for _, edit := range edits {
		next := edit.Assignment.ShiftID()
		if edit.Assignment.IsClear() {
			next = 0
		}
		overlay[edit.Key] = next
	}

	p := Preview{}
	for k, next := range overlay {
		before, _ := ed.Effective(k.EmployeeID, k.Date)
		if before == next {
			continue
		}
		if next == 0 {
			p.Cleared++
		} else {
			p.Assigned++
		}
	}
	return p
}
