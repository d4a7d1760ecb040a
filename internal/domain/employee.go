package domain

import (
	"slices"
	"time"
)

type Role string

const (
	RoleEmployee Role = "员工"
	RoleManager  Role = "主管"
	RoleAdmin    Role = "管理员"
)

// 可以查看和编辑所有员工排班的角色
var RosterEditorRoles = []Role{RoleManager, RoleAdmin}

func (r Role) CanEditRoster() bool {
	return slices.Contains(RosterEditorRoles, r)
}

type Employee struct {
	ID           int64     `json:"employeeId"`
	EmployeeCode string    `json:"employeeCode"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}
