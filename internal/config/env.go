package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv 依次加载存在的 .env 文件；已存在的进程环境变量优先，不会被覆盖。
// 返回实际加载的文件列表。
func LoadEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, err
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}
