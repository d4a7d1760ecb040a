package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var (
	ErrInvalidDate  = errors.New("日期格式错误")
	ErrInvalidMonth = errors.New("月份格式错误")
)

// Date 表示一个不带时间的日历日，格式为 YYYY-MM-DD
type Date string

// DateOf 按 t 所在时区的日历日生成 Date，不能先转成 UTC，否则跨时区时会差一天
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

func (d Date) String() string {
	return string(d)
}

// Validate 检查格式并且检查这一天在日历上确实存在（例如 2024-13-40 不合法）
func (d Date) Validate() error {
	if !datePattern.MatchString(string(d)) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, string(d))
	}
	if _, err := time.ParseInLocation(DateLayout, string(d), time.Local); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, string(d))
	}
	return nil
}

func (d Date) Time() (time.Time, error) {
	if err := d.Validate(); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(DateLayout, string(d), time.Local)
}

// Month 表示一个自然月
type Month struct {
	Year  int
	Month time.Month
}

func ParseMonth(s string) (Month, error) {
	t, err := time.ParseInLocation(MonthLayout, s, time.Local)
	if err != nil || len(s) != len(MonthLayout) {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) first() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.Local)
}

// Dates 返回该月的每一天，按时间顺序
func (m Month) Dates() []Date {
	start := m.first()
	end := start.AddDate(0, 1, 0)

	dates := make([]Date, 0, 31)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, DateOf(d))
	}
	return dates
}

func (m Month) Contains(d Date) bool {
	t, err := d.Time()
	if err != nil {
		return false
	}
	return t.Year() == m.Year && t.Month() == m.Month
}

// Range 返回 [该月第一天, 下个月第一天)
func (m Month) Range() (time.Time, time.Time) {
	start := m.first()
	return start, start.AddDate(0, 1, 0)
}

func (m Month) Next() Month {
	return MonthOf(m.first().AddDate(0, 1, 0))
}

func (m Month) Prev() Month {
	return MonthOf(m.first().AddDate(0, -1, 0))
}

// ScopeAll 的序列化形式
const scopeAllValue = "all"

// Scope 表示可见排班的范围：所有员工，或者仅当前登录的员工本人
type Scope struct {
	All        bool
	EmployeeID int64
}

func ScopeAll() Scope {
	return Scope{All: true}
}

func ScopeSelf(employeeID int64) Scope {
	return Scope{EmployeeID: employeeID}
}

func ParseScope(s string) (Scope, error) {
	if s == scopeAllValue {
		return ScopeAll(), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, fmt.Errorf("无效的范围: %q", s)
	}
	return ScopeSelf(id), nil
}

func (s Scope) String() string {
	if s.All {
		return scopeAllValue
	}
	return strconv.FormatInt(s.EmployeeID, 10)
}
