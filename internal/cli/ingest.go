package cli

import (
	"context"
	"fmt"

	"newsrelay/internal/config"
	"newsrelay/internal/dedup"
	"newsrelay/internal/ingest"
	"newsrelay/internal/logx"
	"newsrelay/internal/translate"

	"github.com/spf13/cobra"
)

// NewIngestCommand 创建 ingest 子命令。
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Store new feed entries in Notion as translated drafts",
		Long: `Fetch RSS_URL, skip entries whose link already exists in the Notion database,
translate title and summary with DeepL (falling back to the source text) and
create one draft page per new entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), rootOpts)
		},
	}
}

func runIngest(ctx context.Context, opts *RootOptions) error {
	rt, err := setup(opts, (*config.Config).ValidateIngest)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	_, pm, err := rt.properties(ctx)
	if err != nil {
		return err
	}
	if err := pm.RequireIngest(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var tr translate.Translator = translate.Noop{}
	if cfg.TranslationEnabled() {
		tr = translate.NewDeepL(rt.http, cfg.Translate.Endpoint, cfg.Secrets.DeepLAPIKey, cfg.Translate.TargetLang)
	}
	store := dedup.NewNotionIndex(rt.notion.URLLookup(pm.URL))
	defer store.Close()

	r := ingest.New(ingest.Options{
		FeedURL:     cfg.FeedURL,
		MaxEntries:  cfg.MaxEntries,
		Concurrency: cfg.Translate.Concurrency,
		DryRun:      cfg.DryRun,
	}, rt.http, tr, store, rt.notion.Drafts(pm, cfg.Notion.StatusDraft))

	logx.Infof("开始入库：订阅=%s 最多=%d DRY_RUN=%v", cfg.FeedURL, cfg.MaxEntries, cfg.DryRun)
	st, err := r.Run(ctx)
	if err != nil {
		rt.notifier.Notify(context.WithoutCancel(ctx), "ingest failed: "+err.Error())
		return err
	}
	logx.Infof("入库完成：%s", st.String())
	if st.Created > 0 || st.Failed > 0 {
		rt.notifier.Notify(ctx, "ingest: "+st.String())
	}
	return nil
}
