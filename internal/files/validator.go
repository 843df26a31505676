// Package files validates local paths selected for sending and exposes a
// random-access source handle for the transfer engine's chunked reads.
package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes a local file queued for send.
type FileInfo struct {
	Path string
	Name string
	Size int64
	Type string
}

// ValidateFiles checks every path exists, is a regular non-empty file, and
// is readable. It returns FileInfo for each valid path or an aggregate error
// naming every invalid one.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files specified")
	}

	var infos []FileInfo
	var errs []string

	for _, path := range paths {
		info, err := validateSingleFile(path)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return infos, nil
}

func validateSingleFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory (directories not supported)", path)
	}
	if stat.Size() == 0 {
		return FileInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}

// TotalSize sums the size of every FileInfo.
func TotalSize(infos []FileInfo) int64 {
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total
}

// FormatSize renders a byte count as a human-readable string.
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
