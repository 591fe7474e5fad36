package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tubeflow/internal/app/run"
	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/domain"
	"github.com/John-Robertt/tubeflow/internal/infra/cache"
	"github.com/John-Robertt/tubeflow/internal/keyword"
)

func newResolveCmd() *cobra.Command {
	var (
		sel   selectionFlags
		path  string
		trace bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <keyword>",
		Short: "为单个关键词解析一段素材，输出 JSON（找不到时输出 null）",
		Example: `  tubeflow resolve "Penguin chick hatching"
  tubeflow resolve "Samurai walking in rain" --orientation landscape --trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
				return &exitError{code: 1}
			}
			cli := config.CLIArgs{Path: projectPath(cwd, path)}
			sel.apply(cmd, &cli)

			eff, log, err := loadProject(cwd, cli, stderr)
			if err != nil {
				fmt.Fprintln(stderr, err)
				return &exitError{code: 1}
			}
			defer func() { _ = log.Sync() }()

			reg, err := buildRegistry(eff)
			if err != nil {
				fmt.Fprintf(stderr, "初始化 provider registry 失败：%v\n", err)
				return &exitError{code: 1}
			}

			// 单次检索只读缓存，不产生任何落盘。
			store := cache.New(eff.Path, true)
			engine, err := run.NewEngine(eff, reg, &store, log)
			if err != nil {
				fmt.Fprintf(stderr, "%s：%v\n", domain.ErrCodeConfigInvalid, err)
				return &exitError{code: 1}
			}

			asset, attempts := engine.ResolveTrace(cmd.Context(), args[0], eff.Orientation, domain.NewExclusionSet())
			if trace {
				for _, a := range attempts {
					line := fmt.Sprintf("%s %q %s", a.Provider, a.Query, a.Stage)
					if a.Cached {
						line += " (cache)"
					}
					if a.Err != nil {
						line += ": " + truncate(a.Err.Error(), 160)
					}
					fmt.Fprintln(stderr, line)
				}
			}

			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(asset); err != nil {
				return err
			}
			if asset == nil {
				fmt.Fprintf(stderr, "%s：所有查询都没有找到包含 %q 的素材\n", domain.ErrCodeNoVisualFound, keyword.Anchor(args[0]))
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "项目目录（读取其中的 tubeflow.json 与 .env）")
	cmd.Flags().BoolVar(&trace, "trace", false, "把每次 provider 调用打印到 stderr")
	sel.bind(cmd)
	return cmd
}
