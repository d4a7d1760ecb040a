package reconciler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

var (
	ErrFetch             = errors.New("获取排班失败")
	ErrWrite             = errors.New("提交排班失败")
	ErrValidation        = errors.New("排班校验失败")
	ErrNothingToSubmit   = errors.New("没有需要提交的排班")
	ErrReadOnlyScope     = errors.New("当前范围只读，无法编辑排班")
	ErrNotLoaded         = errors.New("尚未加载排班")
	ErrInvalidAssignment = errors.New("无效的班次")
)

type Problem struct {
	Key    domain.Key
	Reason string
}

// ValidationError 列出所有不合法的待提交记录，出现时整批都不会发送
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		reasons[i] = fmt.Sprintf("员工 %d %s: %s", p.Key.EmployeeID, p.Key.Date, p.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(reasons, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DeleteError 表示某一个格子的服务端删除失败，该格子仍保留在已确认的排班中
type DeleteError struct {
	Key domain.Key
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("删除员工 %d 在 %s 的排班失败: %v", e.Key.EmployeeID, e.Key.Date, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
