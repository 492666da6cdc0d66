package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const filePrefix = "adms-"

// dailyFile is an io.Writer over logDir/adms-YYYY-MM-DD.log. It switches
// files when the day changes, moves a file aside once it grows past maxSize
// and removes files older than maxAge days.
type dailyFile struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	maxAge  int
	day     string
	file    *os.File
	size    int64
	now     func() time.Time
}

func openDailyFile(dir string, maxSize int64, maxAge int) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f := &dailyFile{dir: dir, maxSize: maxSize, maxAge: maxAge, now: time.Now}
	if err := f.open(f.now().Format("2006-01-02")); err != nil {
		return nil, err
	}
	f.prune()
	return f, nil
}

func (f *dailyFile) path(day string) string {
	return filepath.Join(f.dir, filePrefix+day+".log")
}

func (f *dailyFile) open(day string) error {
	file, err := os.OpenFile(f.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	if f.file != nil {
		f.file.Close()
	}
	f.file, f.day, f.size = file, day, info.Size()
	return nil
}

func (f *dailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	day := f.now().Format("2006-01-02")
	switch {
	case day != f.day:
		if err := f.open(day); err != nil {
			return 0, err
		}
		go f.prune()
	case f.maxSize > 0 && f.size+int64(len(p)) > f.maxSize:
		f.file.Close()
		f.file = nil
		archived := filepath.Join(f.dir, fmt.Sprintf("%s%s-%d.log", filePrefix, day, f.now().Unix()))
		os.Rename(f.path(day), archived)
		if err := f.open(day); err != nil {
			return 0, err
		}
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *dailyFile) prune() {
	if f.maxAge <= 0 {
		return
	}
	files, _ := filepath.Glob(filepath.Join(f.dir, filePrefix+"*.log"))
	cutoff := f.now().Add(-time.Duration(f.maxAge) * 24 * time.Hour)
	for _, file := range files {
		info, err := os.Stat(file)
		if err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
}
