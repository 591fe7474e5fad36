package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tubeflow/internal/config"
	"github.com/John-Robertt/tubeflow/internal/script"
)

// newTextModel 在测试里替换为桩实现。
var newTextModel = func(ctx context.Context, apiKey, model string) (script.TextModel, error) {
	return script.NewGemini(ctx, apiKey, model)
}

func newScriptCmd() *cobra.Command {
	var (
		vibe  string
		model string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "script <topic> [path]",
		Short: "用 Gemini 为主题生成 scenes.json",
		Long: `用 Gemini 为主题生成镜头脚本，写入 <path>/scenes.json（文件名可由 scenes_file 配置）。
需要 GOOGLE_API_KEY（环境变量或 .env）。`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stderr := cmd.ErrOrStderr()

			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
				return &exitError{code: 1}
			}
			var arg string
			if len(args) > 1 {
				arg = args[1]
			}

			eff, err := config.LoadEffective(cwd, config.CLIArgs{Path: projectPath(cwd, arg)})
			if err != nil {
				fmt.Fprintln(stderr, err)
				return &exitError{code: 1}
			}

			target := filepath.Join(eff.Path, eff.ScenesFile)
			if _, err := os.Stat(target); err == nil && !force {
				fmt.Fprintf(stderr, "%s 已存在；使用 --force 覆盖\n", target)
				return &exitError{code: 1}
			}

			m, err := newTextModel(cmd.Context(), eff.Keys.Google, model)
			if err != nil {
				fmt.Fprintf(stderr, "%s：%v\n", config.ErrCodeInvalid, err)
				return &exitError{code: 1}
			}

			s, err := script.Generate(cmd.Context(), m, args[0], vibe)
			if err != nil {
				fmt.Fprintln(stderr, err)
				return &exitError{code: 1}
			}
			if err := script.Save(eff.Path, eff.ScenesFile, s); err != nil {
				fmt.Fprintf(stderr, "写入 %s 失败：%v\n", target, err)
				return &exitError{code: 1}
			}

			fmt.Fprintf(stderr, "已写入 %s（%d 个镜头）\n", target, len(s.Scenes))
			return nil
		},
	}
	cmd.Flags().StringVar(&vibe, "vibe", "", "语气/风格提示，例如 \"calm documentary\"")
	cmd.Flags().StringVar(&model, "model", script.DefaultModel, "Gemini 模型名")
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已有的 scenes 文件")
	return cmd
}
