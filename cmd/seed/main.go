package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/seed"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var month string
	var file string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 插入默认班次, 3: 为指定月份生成随机排班, 4: 从 CSV 导入员工)")
	flag.IntVar(&n, "n", 5, "要插入的员工数量")
	flag.StringVar(&month, "month", domain.MonthOf(time.Now()).String(), "生成随机排班的月份 (YYYY-MM)")
	flag.StringVar(&file, "file", "", "员工名单 CSV 文件路径")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	repo := repository.NewRepository(cfg, dbpool)

	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		seedRandomEmployees(cfg, repo, n)
	case 2:
		seedDefaultShifts(repo)
	case 3:
		seedRandomRoster(repo, month)
	case 4:
		seedEmployeesFromCSV(cfg, repo, file)
	default:
		slog.Error("指定的操作非法")
	}
}

func seedRandomEmployees(cfg *config.Config, repo *repository.Repository, n int) {
	if n <= 0 {
		slog.Error("请输入合法的员工数量")
		return
	}

	cnt := 0
	for i := 0; i < n; i++ {
		employee, err := utils.GenerateRandomEmployee(cfg.Seed.Employee.Password, cfg.Email.UserDomain)
		if err != nil {
			slog.Error("无法生成随机员工", slog.String("error", err.Error()))
			continue
		}

		if err := repo.CreateEmployee(employee); err != nil {
			slog.Error("无法插入员工", slog.String("error", err.Error()))
			continue
		}

		cnt++
	}

	slog.Info("插入员工成功", slog.Int("count", cnt))
}

func seedDefaultShifts(repo *repository.Repository) {
	cnt := 0
	for _, shift := range utils.DefaultShifts() {
		if err := repo.CreateShift(shift); err != nil {
			slog.Error("无法插入班次", slog.String("shiftCode", shift.ShiftCode), slog.String("error", err.Error()))
			continue
		}
		cnt++
	}

	slog.Info("插入班次成功", slog.Int("count", cnt))
}

func seedRandomRoster(repo *repository.Repository, monthString string) {
	month, err := domain.ParseMonth(monthString)
	if err != nil {
		slog.Error("月份格式错误", slog.String("month", monthString))
		return
	}

	employees, err := repo.GetAllEmployees("")
	if err != nil {
		slog.Error("无法获取员工列表", slog.String("error", err.Error()))
		return
	}
	shifts, err := repo.GetAllShifts()
	if err != nil {
		slog.Error("无法获取班次列表", slog.String("error", err.Error()))
		return
	}
	if len(shifts) == 0 {
		slog.Error("没有任何班次，请先插入默认班次")
		return
	}

	active := make([]*domain.Employee, 0, len(employees))
	for _, e := range employees {
		if e.IsActive {
			active = append(active, e)
		}
	}

	entries := utils.GenerateRandomRoster(month, active, shifts)
	if len(entries) == 0 {
		slog.Info("没有需要插入的排班")
		return
	}
	if err := repo.UpsertRosterEntries(entries); err != nil {
		slog.Error("无法插入排班", slog.String("error", err.Error()))
		return
	}

	slog.Info("插入排班成功", slog.String("month", month.String()), slog.Int("count", len(entries)))
}

func seedEmployeesFromCSV(cfg *config.Config, repo *repository.Repository, path string) {
	if path == "" {
		slog.Error("请指定员工名单文件")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("打开文件失败", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	employees, err := seed.ParseEmployeesCSV(f)
	if err != nil {
		slog.Error("解析员工名单失败", slog.String("error", err.Error()))
		return
	}

	cnt, err := seed.ImportEmployees(repo, employees, cfg.Seed.Employee.Password)
	if err != nil {
		slog.Error("导入员工失败", slog.String("error", err.Error()))
		return
	}

	slog.Info("导入员工成功", slog.Int("count", cnt), slog.Int("total", len(employees)))
}
