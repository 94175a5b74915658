// 命令行入口：
// - ingest：订阅 → 翻译 → Notion 草稿
// - publish：Notion approved → X，回写发布结果
// - schema：查看 Notion 属性与字段映射
// 收到 SIGINT/SIGTERM 时取消 ctx，已发出的帖子仍会完成回写。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"newsrelay/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "newsrelay: %v\n", err)
		stop()
		os.Exit(1)
	}
}
