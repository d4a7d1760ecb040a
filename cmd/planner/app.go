package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/reconciler"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/rosterapi"
)

const selfScope = "self"

// app 保存所有子命令共用的配置和服务端客户端
type app struct {
	cfg    *config.PlannerConfig
	client *rosterapi.Client
	out    io.Writer
	token  string
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:          "planner",
		Short:        "在命令行中查看和编辑月度排班",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPlannerConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.client = rosterapi.NewClient(cfg.BaseURL, time.Duration(cfg.RequestTimeout)*time.Second)
			if a.token == "" {
				a.token = cfg.Token
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.token, "token", "", "登录令牌，默认读取 PLANNER_TOKEN")

	root.AddCommand(
		a.loginCmd(),
		a.showCmd(),
		a.applyCmd(),
		a.exportCmd(),
		a.importCmd(),
	)
	return root
}

func (a *app) session() (rosterapi.Session, error) {
	if a.token == "" {
		return rosterapi.Session{}, errors.New("未登录，请先执行 planner login 并设置 PLANNER_TOKEN")
	}
	return rosterapi.Session{Token: a.token}, nil
}

// resolveScope 把 --scope 转换为 domain.Scope，self 表示当前登录的员工
func (a *app) resolveScope(ctx context.Context, sess rosterapi.Session, s string) (domain.Scope, error) {
	if s != selfScope {
		return domain.ParseScope(s)
	}

	me, err := a.client.GetMyInfo(ctx, sess)
	if err != nil {
		return domain.Scope{}, err
	}
	return domain.ScopeSelf(me.ID), nil
}

// load 创建 reconciler 并加载指定月份的排班
func (a *app) load(ctx context.Context, scopeFlag, monthFlag string) (*reconciler.Reconciler, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}

	month, err := domain.ParseMonth(monthFlag)
	if err != nil {
		return nil, err
	}
	scope, err := a.resolveScope(ctx, sess, scopeFlag)
	if err != nil {
		return nil, err
	}

	rec := reconciler.New(a.client, sess,
		reconciler.WithLogger(slog.Default()),
		reconciler.WithBulkConcurrency(a.cfg.BulkConcurrency),
		reconciler.WithDepartment(a.cfg.Department),
	)
	if err := rec.Load(ctx, scope, month); err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func monthFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "month", domain.MonthOf(time.Now()).String(), "月份 (YYYY-MM)")
}

// submit 提交 reconciler 中所有的 pending，没有 pending 时什么也不做
func (a *app) submit(ctx context.Context, rec *reconciler.Reconciler) error {
	res, err := rec.SubmitPending(ctx)
	switch {
	case errors.Is(err, reconciler.ErrNothingToSubmit):
		a.printf("没有需要提交的修改\n")
		return nil
	case err != nil && res.Submitted == 0:
		return err
	}

	a.printf("已提交 %d 条排班\n", res.Submitted)
	if !res.Resynced {
		a.printf("提交成功但重新加载失败，显示的排班可能已过期: %v\n", err)
	}
	return nil
}
