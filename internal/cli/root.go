// 包 cli 定义命令行：ingest（订阅→翻译→Notion 草稿）、publish（approved→X）、schema（查看属性映射）。
// 每个子命令在发起任何网络请求前完成配置校验，缺项直接以非零状态退出。
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions 为全局参数。
type RootOptions struct {
	ConfigPath string
	EnvFiles   []string
	DryRun     bool
	LogLevel   string
}

// NewRootCommand 创建根命令。
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "newsrelay",
		Short:         "RSS → Notion → X relay",
		Long:          "Ingest a feed into a Notion database as translated drafts, then post approved pages to X.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "settings.yaml", "path to settings.yaml (optional)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env", []string{".env"}, ".env files to load; process environment wins")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "do not write to Notion or X (overrides DRY_RUN)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error|none (overrides LOG_LEVEL)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	return cmd
}
