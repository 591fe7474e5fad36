package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/tubeflow/internal/app/run"
	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
	"github.com/John-Robertt/tubeflow/internal/infra/logx"
	"github.com/John-Robertt/tubeflow/internal/provider"
	"github.com/John-Robertt/tubeflow/internal/provider/mixkit"
	"github.com/John-Robertt/tubeflow/internal/provider/pexels"
	"github.com/John-Robertt/tubeflow/internal/provider/pixabay"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带进程退出码；其余（cobra 参数解析）错误统一映射为 2。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tubeflow",
		Short: "为脚本里的每个镜头找到一段合适的素材",
		Long: `tubeflow 读取 scenes.json，为每个镜头的英文关键词在多个素材站之间检索素材：
关键词逐级缩短（breadcrumb），并要求素材元数据包含关键词首词（锚点）。`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newRunCmd(), newResolveCmd(), newScriptCmd())
	return root
}

// selectionFlags 是 run / resolve 共用的检索参数。
type selectionFlags struct {
	orientation string
	providers   []string
	tieBreak    string
}

func (f *selectionFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.orientation, "orientation", "", "画幅：portrait|landscape（未指定则读配置文件；最终默认 portrait）")
	fl.StringSliceVar(&f.providers, "providers", nil, "provider 调用顺序，例如 pexels,pixabay,mixkit")
	fl.StringVar(&f.tieBreak, "tie-break", "", "同一级多个候选时的决胜策略：random|priority")
}

func (f *selectionFlags) apply(cmd *cobra.Command, cli *config.CLIArgs) {
	fl := cmd.Flags()
	cli.Orientation, cli.OrientationSet = f.orientation, fl.Changed("orientation")
	cli.Providers, cli.ProvidersSet = f.providers, fl.Changed("providers")
	cli.TieBreak, cli.TieBreakSet = f.tieBreak, fl.Changed("tie-break")
}

func newRunCmd() *cobra.Command {
	var (
		sel   selectionFlags
		apply bool
	)
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "为 scenes.json 的每个镜头解析素材（默认 dry-run）",
		Long: `为 <path>/scenes.json 的每个镜头解析素材。

默认 dry-run：只检索、不写入任何文件。--apply 时下载片段到 <path>/out/NN_Clip.mp4，
并写入 <path>/cache/report.json。stdout 不是终端时只输出一个 RunReport JSON。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{Apply: apply, ApplySet: cmd.Flags().Changed("apply")}
			if len(args) > 0 {
				cli.Path = args[0]
			}
			sel.apply(cmd, &cli)
			return runCmd(cmd, cli)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "下载片段并写入 report（支持 --apply=false 覆盖配置中的 apply=true）")
	sel.bind(cmd)
	return cmd
}

func runCmd(cmd *cobra.Command, cli config.CLIArgs) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return &exitError{code: 1}
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, log, err := loadProject(cwd, cli, stderr)
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cwdAbs, cli, err))
		return &exitError{code: 1}
	}
	defer func() { _ = log.Sync() }()

	reg, err := buildRegistry(eff)
	if err != nil {
		fmt.Fprintf(stderr, "初始化 provider registry 失败：%v\n", err)
		return &exitError{code: 1}
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(cmd.Context(), eff, reg, log, obs)

	// apply：必须写入 <path>/cache/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReport(eff.Path, rr); err != nil {
			fmt.Fprintf(stderr, "写入 report.json 失败：%v\n", err)
			emitReport(stdout, stderr, rr)
			return &exitError{code: 1}
		}
	}

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return nil
	}
	return &exitError{code: 1}
}

// loadProject 读取生效配置、校验 provider 并构造 logger。
func loadProject(cwd string, cli config.CLIArgs, stderr io.Writer) (config.EffectiveConfig, *zap.Logger, error) {
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return config.EffectiveConfig{}, nil, err
	}
	if err := eff.RequireProviders(); err != nil {
		return config.EffectiveConfig{}, nil, err
	}
	log, err := newLogger(eff, stderr)
	if err != nil {
		return config.EffectiveConfig{}, nil, err
	}
	for _, p := range eff.Dropped {
		log.Warn("provider 缺少 API key，已跳过", zap.String("provider", p))
	}
	return eff, log, nil
}

func newLogger(eff config.EffectiveConfig, stderr io.Writer) (*zap.Logger, error) {
	log, err := logx.New(logx.Config{Level: eff.LogLevel, File: eff.LogFile}, stderr)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: filepath.Join(eff.Path, config.FileName), Err: err}
	}
	return log, nil
}

// buildRegistry 按 providers 的顺序构造注册表；顺序同时决定 priority 决胜。
func buildRegistry(eff config.EffectiveConfig) (provider.Registry, error) {
	ps := make([]provider.Provider, 0, len(eff.Providers))
	for _, name := range eff.Providers {
		switch name {
		case "pexels":
			ps = append(ps, pexels.Provider{APIKey: eff.Keys.Pexels, PerPage: eff.PerPage, MinWidth: eff.MinWidth})
		case "pixabay":
			ps = append(ps, pixabay.Provider{APIKey: eff.Keys.Pixabay, PerPage: eff.PerPage, MinWidth: eff.MinWidth})
		case "mixkit":
			ps = append(ps, mixkit.Provider{BaseURL: eff.MixkitBaseURL})
		default:
			return provider.Registry{}, fmt.Errorf("未知 provider：%q", name)
		}
	}
	return provider.NewRegistry(ps...)
}

// projectPath 在未显式给出 path 且 cwd 下没有配置文件时，把 cwd 当作项目目录。
func projectPath(cwd, arg string) string {
	if strings.TrimSpace(arg) != "" {
		return arg
	}
	if _, err := os.Stat(filepath.Join(cwd, config.FileName)); err == nil {
		return ""
	}
	return cwd
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：resolved=%d skipped=%d not_found=%d failed=%d",
		rr.Summary.Resolved, rr.Summary.Skipped, rr.Summary.NotFound, rr.Summary.Failed,
	)

	if isTTY(stdout) {
		fmt.Fprintln(stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusNotFound {
				continue
			}
			key := "<config>"
			if it.SceneNumber > 0 {
				key = fmt.Sprintf("scene %d", it.SceneNumber)
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summary)
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.SceneResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReport(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return cache.New(root, false).WriteReport(b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", cache.New(eff.Path, true).ReportPath())
	}
	fmt.Fprintf(w, "out: %s\n", filepath.Join(eff.Path, "out"))
}
