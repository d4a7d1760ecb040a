package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

func ValidateShiftTime(shift *domain.Shift) error {
	startTime, err := time.Parse("15:04:05", shift.StartTime)
	if err != nil {
		return fmt.Errorf("班次 %s 的开始时间格式错误", shift.ShiftCode)
	}
	if _, err := time.Parse("15:04:05", shift.EndTime); err != nil {
		return fmt.Errorf("班次 %s 的结束时间格式错误", shift.ShiftCode)
	}

	// 休息班不需要检查时间区间
	if shift.IsOff {
		return nil
	}

	endTime, _ := time.Parse("15:04:05", shift.EndTime)
	if endTime.Equal(startTime) {
		return fmt.Errorf("班次 %s 的开始时间和结束时间不能相同", shift.ShiftCode)
	}

	return nil
}

// ValidateRosterBatch 检查整批排班：日期合法、同一批次中没有重复的 (员工, 日期)、员工和班次都存在、isOff 与班次一致
func ValidateRosterBatch(entries []domain.RosterEntry, employees map[int64]*domain.Employee, shifts map[int64]*domain.Shift) error {
	if len(entries) == 0 {
		return errors.New("排班记录不能为空")
	}

	seen := make(map[domain.Key]struct{}, len(entries))
	for i, entry := range entries {
		if err := entry.Date.Validate(); err != nil {
			return fmt.Errorf("第 %d 条记录的日期 %q 不合法", i+1, entry.Date)
		}

		if _, exists := seen[entry.Key()]; exists {
			return fmt.Errorf("员工 %d 在 %s 存在重复的排班记录", entry.EmployeeID, entry.Date)
		}
		seen[entry.Key()] = struct{}{}

		employee, exists := employees[entry.EmployeeID]
		if !exists {
			return fmt.Errorf("员工 %d 不存在", entry.EmployeeID)
		}
		if !employee.IsActive {
			return fmt.Errorf("员工 %s 已离职", employee.FullName)
		}

		shift, exists := shifts[entry.ShiftID]
		if !exists {
			return fmt.Errorf("班次 %d 不存在", entry.ShiftID)
		}
		if shift.IsOff != entry.IsOff {
			return fmt.Errorf("第 %d 条记录的休息标记与班次 %s 不一致", i+1, shift.ShiftCode)
		}
	}

	return nil
}
