package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/export"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/planner"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/reconciler"
)

func (a *app) loginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "登录并输出令牌",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, employee, err := a.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			a.printf("登录成功: %s (%s)\n", employee.FullName, employee.Role)
			a.printf("export PLANNER_TOKEN=%s\n", sess.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "用户名")
	cmd.Flags().StringVarP(&password, "password", "p", "", "密码")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var month, scope string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "显示一个月的排班",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.load(cmd.Context(), scope, month)
			if err != nil {
				return err
			}
			return a.printView(rec.View())
		},
	}
	monthFlag(cmd, &month)
	cmd.Flags().StringVar(&scope, "scope", "all", "all、self 或员工 ID")
	return cmd
}

// printView 每行一个员工，尚未提交的格子后面加 *
func (a *app) printView(v reconciler.View) error {
	w := tabwriter.NewWriter(a.out, 0, 0, 1, ' ', 0)

	header := []string{"工号", "姓名"}
	for _, d := range v.Dates {
		header = append(header, d.String()[8:])
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, e := range v.Employees {
		row := []string{e.EmployeeCode, e.FullName}
		for _, d := range v.Dates {
			label := v.Label(e.ID, d)
			if v.Pending[domain.Key{EmployeeID: e.ID, Date: d}] {
				label += "*"
			}
			row = append(row, label)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return w.Flush()
}

func (a *app) applyCmd() *cobra.Command {
	var planPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "执行 YAML 排班计划并提交",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(planPath)
			if err != nil {
				return err
			}
			defer f.Close()

			plan, err := planner.LoadPlan(f)
			if err != nil {
				return err
			}

			rec, err := a.load(cmd.Context(), "all", plan.Month)
			if err != nil {
				return err
			}

			if dryRun {
				p, err := planner.PreviewPlan(rec, plan)
				if err != nil {
					return err
				}
				a.printf("将指定 %d 个格子，清除 %d 个格子\n", p.Assigned, p.Cleared)
				return nil
			}

			report, err := planner.Apply(cmd.Context(), rec, plan)
			a.printReport(report)
			if err != nil && len(report.Failed) == 0 {
				return err
			}
			if err := a.submit(cmd.Context(), rec); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d 个格子删除失败", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "排班计划文件")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只显示将要发生的修改")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var month, scope, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "把一个月的排班导出为 xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.load(cmd.Context(), scope, month)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.WriteRoster(f, rec.View()); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			a.printf("已导出到 %s\n", out)
			return nil
		},
	}
	monthFlag(cmd, &month)
	cmd.Flags().StringVar(&scope, "scope", "all", "all、self 或员工 ID")
	cmd.Flags().StringVar(&out, "out", "roster.xlsx", "输出文件")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var month, in string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "从 xlsx 导入排班并提交",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.load(cmd.Context(), "all", month)
			if err != nil {
				return err
			}

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()

			edits, err := export.ReadRoster(f, rec.View().Employees, rec.Shifts())
			if err != nil {
				return err
			}
			for _, e := range edits {
				if !rec.Month().Contains(e.Key.Date) {
					return fmt.Errorf("表格中的日期 %s 不在 %s 内", e.Key.Date, rec.Month())
				}
			}

			if dryRun {
				p := planner.PreviewCells(rec, edits)
				a.printf("将指定 %d 个格子，清除 %d 个格子\n", p.Assigned, p.Cleared)
				return nil
			}

			report, err := planner.ApplyCells(cmd.Context(), rec, edits)
			a.printReport(report)
			if err != nil && len(report.Failed) == 0 {
				return err
			}
			if err := a.submit(cmd.Context(), rec); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d 个格子删除失败", len(report.Failed))
			}
			return nil
		},
	}
	monthFlag(cmd, &month)
	cmd.Flags().StringVar(&in, "in", "", "输入文件")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只显示将要发生的修改")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (a *app) printReport(r planner.Report) {
	a.printf("修改了 %d 个格子\n", r.Changed)
	for _, f := range r.Failed {
		a.printf("删除失败: 员工 %d %s: %v\n", f.Key.EmployeeID, f.Key.Date, f.Err)
	}
}
