package reconciler

import (
	"slices"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// Assignment 是对一个格子的操作：指定某个班次，或者清除已有的排班。零值是无效的
type Assignment struct {
	shiftID int64
	clear   bool
}

func AssignShift(shiftID int64) Assignment {
	return Assignment{shiftID: shiftID}
}

func Clear() Assignment {
	return Assignment{clear: true}
}

func (a Assignment) IsClear() bool {
	return a.clear
}

func (a Assignment) ShiftID() int64 {
	return a.shiftID
}

func (a Assignment) valid() bool {
	return a.clear || a.shiftID > 0
}

// cartesianKeys 生成 employeeIDs × dates 的所有组合，去重并排序
func cartesianKeys(employeeIDs []int64, dates []domain.Date) []domain.Key {
	seen := make(map[domain.Key]struct{}, len(employeeIDs)*len(dates))
	keys := make([]domain.Key, 0, len(employeeIDs)*len(dates))

	for _, id := range employeeIDs {
		for _, date := range dates {
			k := domain.Key{EmployeeID: id, Date: date}
			if _, exists := seen[k]; exists {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	sortKeys(keys)
	return keys
}

func sortKeys(keys []domain.Key) {
	slices.SortFunc(keys, func(a, b domain.Key) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}
