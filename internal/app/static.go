package app

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// PrepareStatic копирует вшитую статику в dir. Файлы с тем же содержимым не трогаем,
// поэтому повторный запуск ничего не меняет. Возвращает число записанных файлов.
func PrepareStatic(src fs.FS, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("static dir: %w", err)
	}

	written := 0
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}

		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		if cur, err := os.ReadFile(dst); err == nil && bytes.Equal(cur, data) {
			return nil
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("copy static: %w", err)
	}
	return written, nil
}
