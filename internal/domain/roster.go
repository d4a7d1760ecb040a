package domain

// Key 是排班记录的组合键 (员工, 日期)，可直接作为 map 的键使用
type Key struct {
	EmployeeID int64
	Date       Date
}

// Less 先按员工再按日期排序
func (k Key) Less(o Key) bool {
	if k.EmployeeID != o.EmployeeID {
		return k.EmployeeID < o.EmployeeID
	}
	return k.Date < o.Date
}

type RosterEntry struct {
	EmployeeID int64 `json:"employeeId"`
	Date       Date  `json:"date"`
	ShiftID    int64 `json:"shiftId"`
	IsOff      bool  `json:"isOff"`
}

func (e RosterEntry) Key() Key {
	return Key{EmployeeID: e.EmployeeID, Date: e.Date}
}

type Shift struct {
	ID        int64  `json:"shiftId"`
	Name      string `json:"name"`
	ShiftCode string `json:"shiftCode"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsOff     bool   `json:"isOff"` // 休息班，例如 "休"
	Version   int32  `json:"-"`
}
