package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/reconciler"
	"github.com/xuri/excelize/v2"
)

const (
	headerEmployeeCode = "工号"
	headerFullName     = "姓名"
	emptyCell          = reconciler.EmptyLabel
)

// WriteRoster 将排班表写成 xlsx：每个员工一行，每天一列，格子为班次代码，没有排班时为 "-"
func WriteRoster(w io.Writer, view reconciler.View) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := view.Month.String()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := make([]any, 0, len(view.Dates)+2)
	header = append(header, headerEmployeeCode, headerFullName)
	for _, d := range view.Dates {
		header = append(header, d.String())
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, employee := range view.Employees {
		row := make([]any, 0, len(view.Dates)+2)
		row = append(row, employee.EmployeeCode, employee.FullName)
		for _, d := range view.Dates {
			row = append(row, view.Label(employee.ID, d))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      1,
		TopLeftCell: "C2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

type CellEdit struct {
	Key        domain.Key
	Assignment reconciler.Assignment
}

// ReadRoster 读取 WriteRoster 格式的表格，返回每个格子的修改。
// 班次代码表示指定该班次，"-" 表示清除，空白和 "?" 表示不修改。
func ReadRoster(r io.Reader, employees []domain.Employee, shifts []domain.Shift) ([]CellEdit, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("表格中没有工作表")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("工作表为空")
	}

	header := rows[0]
	if cellValue(header, 0) != headerEmployeeCode || cellValue(header, 1) != headerFullName {
		return nil, fmt.Errorf("表头格式错误，前两列应为 %s 和 %s", headerEmployeeCode, headerFullName)
	}

	dates := make([]domain.Date, 0, len(header)-2)
	for i := 2; i < len(header); i++ {
		d := domain.Date(cellValue(header, i))
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("第 %d 列的日期不合法: %w", i+1, err)
		}
		dates = append(dates, d)
	}

	employeeByCode := make(map[string]int64, len(employees))
	for _, e := range employees {
		employeeByCode[e.EmployeeCode] = e.ID
	}
	shiftByCode := make(map[string]int64, len(shifts))
	for _, s := range shifts {
		shiftByCode[strings.ToUpper(s.ShiftCode)] = s.ID
	}

	edits := make([]CellEdit, 0)
	for rowIdx, row := range rows[1:] {
		code := cellValue(row, 0)
		if code == "" {
			continue
		}
		employeeID, exists := employeeByCode[code]
		if !exists {
			return nil, fmt.Errorf("第 %d 行的工号 %s 不存在", rowIdx+2, code)
		}

		for i, d := range dates {
			value := cellValue(row, i+2)
			switch value {
			case "", reconciler.UnknownLabel:
				// 未知班次无法对应到班次代码，与空白一样保持不变
				continue
			case emptyCell:
				edits = append(edits, CellEdit{Key: domain.Key{EmployeeID: employeeID, Date: d}, Assignment: reconciler.Clear()})
			default:
				shiftID, exists := shiftByCode[strings.ToUpper(value)]
				if !exists {
					return nil, fmt.Errorf("第 %d 行 %s 的班次代码 %s 不存在", rowIdx+2, d, value)
				}
				edits = append(edits, CellEdit{Key: domain.Key{EmployeeID: employeeID, Date: d}, Assignment: reconciler.AssignShift(shiftID)})
			}
		}
	}

	return edits, nil
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
