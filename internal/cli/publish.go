package cli

import (
	"context"
	"fmt"
	"time"

	"newsrelay/internal/config"
	"newsrelay/internal/dedup"
	"newsrelay/internal/export"
	"newsrelay/internal/logx"
	"newsrelay/internal/oauth1"
	"newsrelay/internal/publish"
	"newsrelay/internal/social"

	"github.com/spf13/cobra"
)

// reportLines 为通知中附带的明细条数上限。
const reportLines = 10

// NewPublishCommand 创建 publish 子命令。
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	var exportPath string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Post approved Notion pages to X",
		Long: `Query pages whose status is approved and whose posted checkbox is unchecked,
compose a post for each (links count as 23 characters, 280 max), sign and send it,
then mark the page posted in Notion and record its URL in the local dedup log.

With --dry-run nothing is sent or written; previews can be exported with --export.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), rootOpts, exportPath)
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write dry-run previews to this JSON file")
	return cmd
}

func runPublish(ctx context.Context, opts *RootOptions, exportPath string) error {
	rt, err := setup(opts, (*config.Config).ValidatePublish)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	var poster social.Poster
	if !cfg.DryRun {
		signer, err := oauth1.New(oauth1.Credentials{
			ConsumerKey:    cfg.Secrets.XAPIKey,
			ConsumerSecret: cfg.Secrets.XAPISecret,
			Token:          cfg.Secrets.XAccessToken,
			TokenSecret:    cfg.Secrets.XAccessSecret,
		})
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		poster = social.New(rt.http.WithRetry(cfg.X.MaxRetries), signer, cfg.X.Endpoint)
	}

	store, err := dedup.Open(cfg.Dedup.Type, cfg.Dedup.Path)
	if err != nil {
		return fmt.Errorf("open dedup store: %w", err)
	}
	defer store.Close()

	_, pm, err := rt.properties(ctx)
	if err != nil {
		rt.notifier.Notify(ctx, "publish failed: "+err.Error())
		return err
	}
	if err := pm.RequirePublish(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logx.Infof("开始发布：DRY_RUN=%v 去重存储=%s", cfg.DryRun, cfg.Dedup.Type)
	p := publish.New(rt.notion.Records(pm, cfg.Notion.StatusApproved), poster, store, publish.Options{DryRun: cfg.DryRun})
	sum, runErr := p.Run(ctx)

	if cfg.DryRun && exportPath != "" {
		if err := export.ToJSON(sum.Previews, exportPath, time.Now()); err != nil {
			logx.Errorf("导出预览失败：%v", err)
		} else {
			logx.Infof("已导出 %s", exportPath)
		}
	}

	report := sum.Report(reportLines)
	if runErr != nil {
		report += "\nerror: " + runErr.Error()
	}
	rt.notifier.Notify(context.WithoutCancel(ctx), report)
	if runErr != nil {
		return runErr
	}
	logx.Infof("%s", sum.String())
	return nil
}
