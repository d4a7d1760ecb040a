package planner

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/export"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/reconciler"
	"gopkg.in/yaml.v3"
)

// ClearCode 在计划文件中表示清除排班
const ClearCode = "-"

var (
	ErrInvalidPlan   = errors.New("排班计划不合法")
	ErrMonthMismatch = errors.New("排班计划的月份与当前月份不一致")
	ErrUnknownShift  = errors.New("班次代码不存在")
)

type PlanEdit struct {
	Employees []int64       `yaml:"employees"`
	Dates     []domain.Date `yaml:"dates"`
	Shift     string        `yaml:"shift"`
}

// Plan 是一个月的批量排班计划，按顺序执行，后面的修改覆盖前面的修改
type Plan struct {
	Month string     `yaml:"month"`
	Edits []PlanEdit `yaml:"edits"`

	month domain.Month
}

func (p *Plan) ParsedMonth() domain.Month {
	return p.month
}

func LoadPlan(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	plan := &Plan{}
	if err := dec.Decode(plan); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: 文件为空", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	if err := plan.validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Plan) validate() error {
	month, err := domain.ParseMonth(p.Month)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	p.month = month

	if len(p.Edits) == 0 {
		return fmt.Errorf("%w: 没有任何修改", ErrInvalidPlan)
	}

	for i, edit := range p.Edits {
		if len(edit.Employees) == 0 || len(edit.Dates) == 0 {
			return fmt.Errorf("%w: 第 %d 条修改缺少员工或日期", ErrInvalidPlan, i+1)
		}
		for _, id := range edit.Employees {
			if id <= 0 {
				return fmt.Errorf("%w: 第 %d 条修改的员工 ID %d 不合法", ErrInvalidPlan, i+1, id)
			}
		}
		for _, d := range edit.Dates {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("%w: 第 %d 条修改: %w", ErrInvalidPlan, i+1, err)
			}
			if !month.Contains(d) {
				return fmt.Errorf("%w: 第 %d 条修改的日期 %s 不在 %s 内", ErrInvalidPlan, i+1, d, month)
			}
		}
		if strings.TrimSpace(edit.Shift) == "" {
			return fmt.Errorf("%w: 第 %d 条修改缺少班次", ErrInvalidPlan, i+1)
		}
	}

	return nil
}

// cells 把计划展开为逐格的修改，顺序与执行顺序一致
func (p *Plan) cells(shifts []domain.Shift) ([]export.CellEdit, error) {
	out := make([]export.CellEdit, 0)
	for _, edit := range p.Edits {
		a, err := ResolveShift(edit.Shift, shifts)
		if err != nil {
			return nil, err
		}
		for _, id := range edit.Employees {
			for _, d := range edit.Dates {
				out = append(out, export.CellEdit{Key: domain.Key{EmployeeID: id, Date: d}, Assignment: a})
			}
		}
	}
	return out, nil
}

// ResolveShift 把班次代码转换为对格子的操作，代码不区分大小写
func ResolveShift(code string, shifts []domain.Shift) (reconciler.Assignment, error) {
	code = strings.TrimSpace(code)
	if code == ClearCode {
		return reconciler.Clear(), nil
	}
	for _, s := range shifts {
		if strings.EqualFold(s.ShiftCode, code) {
			return reconciler.AssignShift(s.ID), nil
		}
	}
	return reconciler.Assignment{}, fmt.Errorf("%w: %s", ErrUnknownShift, code)
}
