package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

const employeeColumns = `id, employee_code, username, password_hash, full_name, email, department, role, is_active, created_at, version`

func employeeDst(e *domain.Employee) []any {
	return []any{&e.ID, &e.EmployeeCode, &e.Username, &e.PasswordHash, &e.FullName, &e.Email, &e.Department, &e.Role, &e.IsActive, &e.CreatedAt, &e.Version}
}

func (r *Repository) GetEmployeeByID(id int64) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	employee := &domain.Employee{}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(employeeDst(employee)...); err != nil {
		return nil, err
	}

	return employee, nil
}

func (r *Repository) GetEmployeeByUsername(username string) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE username = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	employee := &domain.Employee{}
	if err := r.dbpool.QueryRowContext(ctx, query, username).Scan(employeeDst(employee)...); err != nil {
		return nil, err
	}

	return employee, nil
}

// GetAllEmployees 当 department 为空时返回所有员工
func (r *Repository) GetAllEmployees(department string) ([]*domain.Employee, error) {
	query := `
		SELECT ` + employeeColumns + ` FROM employees
		WHERE ($1 = '' OR department = $1)
		ORDER BY id
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]*domain.Employee, 0)
	for rows.Next() {
		employee := &domain.Employee{}
		if err := rows.Scan(employeeDst(employee)...); err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

// GetEmployeesByIDs 返回存在的员工，不存在的 ID 会被忽略，由调用方自行比对
func (r *Repository) GetEmployeesByIDs(ids []int64) (map[int64]*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = ANY($1)`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make(map[int64]*domain.Employee, len(ids))
	for rows.Next() {
		employee := &domain.Employee{}
		if err := rows.Scan(employeeDst(employee)...); err != nil {
			return nil, err
		}
		employees[employee.ID] = employee
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

func (r *Repository) CreateEmployee(employee *domain.Employee) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		INSERT INTO employees (employee_code, username, password_hash, full_name, email, department, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_active, created_at, version
	`

	args := []any{employee.EmployeeCode, employee.Username, employee.PasswordHash, employee.FullName, employee.Email, employee.Department, employee.Role}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&employee.ID, &employee.IsActive, &employee.CreatedAt, &employee.Version); err != nil {
		return err
	}

	return nil
}
