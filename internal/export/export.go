// 包 export 负责 DRY_RUN 预览导出：将组装好的待发文本写为 JSON 文件，便于人工检查。
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"newsrelay/internal/model"
)

// ToJSON 将预览写入 JSON 文件（带缩进格式）；previews 为空时写入空数组。
func ToJSON(previews []model.Preview, path string, now time.Time) error {
	if previews == nil {
		previews = []model.Preview{}
	}
	out := model.Export{GeneratedAt: now.UTC(), Total: len(previews), Previews: previews}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	// 保留 & < > 原样，方便直接阅读链接
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
