package utils

import (
	"fmt"
	"math/rand"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

var departments = []string{"前台", "客服", "运维", "仓储", "安保"}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var roles = []domain.Role{
	domain.RoleEmployee,
	domain.RoleEmployee,
	domain.RoleEmployee,
	domain.RoleManager,
}

// GenerateRandomRole 普通员工的概率更高
func GenerateRandomRole() domain.Role {
	return roles[rand.Intn(len(roles))]
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, pinyin := range pinyinArray {
		length := rand.Intn(len(pinyin)) + 1
		username += pinyin[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

// GenerateEmployeeCode 工号为 E 加上 5 位数字
func GenerateEmployeeCode() string {
	return fmt.Sprintf("E%05d", rand.Intn(100000))
}

func GenerateRandomEmployee(password string, emailDomainName string) (*domain.Employee, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	employee := &domain.Employee{
		EmployeeCode: GenerateEmployeeCode(),
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Department:   departments[rand.Intn(len(departments))],
		Role:         GenerateRandomRole(),
	}

	return employee, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	random_password := make([]rune, length)
	for i := range random_password {
		random_password[i] = letters[rand.Intn(len(letters))]
	}
	return string(random_password)
}

// DefaultShifts 是初始化时写入的班次
func DefaultShifts() []*domain.Shift {
	return []*domain.Shift{
		{Name: "早班", ShiftCode: "D", StartTime: "08:00:00", EndTime: "16:00:00"},
		{Name: "中班", ShiftCode: "E", StartTime: "16:00:00", EndTime: "23:59:00"},
		{Name: "夜班", ShiftCode: "N", StartTime: "00:00:00", EndTime: "08:00:00"},
		{Name: "休息", ShiftCode: "OFF", StartTime: "00:00:00", EndTime: "00:00:00", IsOff: true},
	}
}

// GenerateRandomRoster 为每个员工的每一天随机挑选一个班次，约 10% 的格子留空
func GenerateRandomRoster(month domain.Month, employees []*domain.Employee, shifts []*domain.Shift) []domain.RosterEntry {
	if len(shifts) == 0 {
		return nil
	}

	entries := make([]domain.RosterEntry, 0, len(employees)*31)
	for _, employee := range employees {
		for _, date := range month.Dates() {
			if rand.Intn(10) == 0 {
				continue
			}

			shift := shifts[rand.Intn(len(shifts))]
			entries = append(entries, domain.RosterEntry{
				EmployeeID: employee.ID,
				Date:       date,
				ShiftID:    shift.ID,
				IsOff:      shift.IsOff,
			})
		}
	}

	return entries
}
