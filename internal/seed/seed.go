package seed

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// 员工名单 CSV 必须包含的列，部门和用户名可以省略
var requiredHeaders = []string{"工号", "姓名", "邮箱", "角色"}

var validRoles = []domain.Role{domain.RoleEmployee, domain.RoleManager, domain.RoleAdmin}

// ParseEmployeesCSV 读取员工名单，没有用户名时由姓名的拼音生成
func ParseEmployeesCSV(r io.Reader) ([]*domain.Employee, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("文件为空")
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}
	for _, h := range requiredHeaders {
		if !slices.Contains(headers, h) {
			return nil, fmt.Errorf("没有找到 %s 列", h)
		}
	}

	employees := make([]*domain.Employee, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("读取第 %d 行失败: %w", line, err)
		}

		record := make(map[string]string, len(headers))
		for i, value := range row {
			if i < len(headers) {
				record[headers[i]] = strings.TrimSpace(value)
			}
		}

		if record["工号"] == "" || record["姓名"] == "" || record["邮箱"] == "" {
			return nil, fmt.Errorf("第 %d 行缺少工号、姓名或邮箱", line)
		}
		role := domain.Role(record["角色"])
		if !slices.Contains(validRoles, role) {
			return nil, fmt.Errorf("第 %d 行的角色 %q 不合法", line, record["角色"])
		}

		username := record["用户名"]
		if username == "" {
			username = utils.GenerateUsernameFromChineseName(record["姓名"])
		}

		employees = append(employees, &domain.Employee{
			EmployeeCode: record["工号"],
			Username:     username,
			FullName:     record["姓名"],
			Email:        record["邮箱"],
			Department:   record["部门"],
			Role:         role,
		})
	}

	return employees, nil
}

// ImportEmployees 插入名单中尚不存在的员工，已存在的用户名会被跳过，返回新插入的人数
func ImportEmployees(repo *repository.Repository, employees []*domain.Employee, password string) (int, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	cnt := 0
	for _, employee := range employees {
		if _, err := repo.GetEmployeeByUsername(employee.Username); err == nil {
			slog.Info("员工已存在，跳过", "username", employee.Username)
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return cnt, err
		}

		employee.PasswordHash = string(passwordHash)
		if err := repo.CreateEmployee(employee); err != nil {
			slog.Error("插入员工失败", "employeeCode", employee.EmployeeCode, "error", err)
			continue
		}
		cnt++
	}

	return cnt, nil
}
