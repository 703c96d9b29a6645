package main

import (
	"fmt"
	"syscall"
)

// getDiskUsage - ёмкость файловой системы, на которой лежит каталог
// содержимого (блок capacity в /status). used считается от свободного
// для непривилегированного процесса места (Bavail).
func getDiskUsage(dataDir string) (int64, int64, int64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dataDir, &fs); err != nil {
		return 0, 0, 0, fmt.Errorf("statfs %s: %w", dataDir, err)
	}

	blockSize := int64(fs.Bsize)
	total := int64(fs.Blocks) * blockSize
	free := int64(fs.Bavail) * blockSize
	return total, total - free, free, nil
}
