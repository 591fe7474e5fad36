package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename 失败。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层可把它映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// TooSmallError 表示写入的内容小于下限（通常是被拦截后返回的错误页，而不是真正的视频）。
type TooSmallError struct {
	Name string
	Got  int64
	Min  int64
}

func (e *TooSmallError) Error() string {
	return fmt.Sprintf("%s 内容过小：%d 字节（下限 %d）", e.Name, e.Got, e.Min)
}

// EnsureDir 确保 dir 是目录；同名文件存在时返回 PathTypeConflictError。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileAtomicReplace 写入并覆盖同名文件（临时文件 + rename；Windows 上为 best-effort）。
// cache/report 等内部状态使用该函数。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	_, err := writeAtomic(dir, name, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	}, 0)
	return err
}

// WriteFileAtomicNoOverwrite 与 WriteFileAtomicReplace 相同，但目标已存在时返回 os.ErrExist。
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	if err := checkTarget(filepath.Join(filepath.Clean(dir), name)); err != nil {
		return err
	}
	return WriteFileAtomicReplace(dir, name, data)
}

// WriteStreamAtomicNoOverwrite 把 r 流式写入 dir/name（不整体读入内存，片段可能有几十 MB）。
//
// - 目标已存在：返回 os.ErrExist（片段按契约不覆盖）
// - 写入字节数 < minSize：返回 *TooSmallError，且不留下任何文件
func WriteStreamAtomicNoOverwrite(dir, name string, r io.Reader, minSize int64) (int64, error) {
	if err := checkTarget(filepath.Join(filepath.Clean(dir), name)); err != nil {
		return 0, err
	}
	return writeAtomic(dir, name, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	}, minSize)
}

func checkTarget(dst string) error {
	fi, err := os.Lstat(dst)
	if err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
		return os.ErrExist
	}
	if !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeAtomic(dir, name string, fill func(w io.Writer) (int64, error), minSize int64) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	dst := filepath.Join(dir, name)

	// 同目录临时文件（前缀带 '.'），保证 rename 原子。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := fill(tmp)
	if err != nil {
		return n, err
	}
	if n < minSize {
		return n, &TooSmallError{Name: name, Got: n, Min: minSize}
	}
	if err := tmp.Chmod(0o644); err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := renameFunc(tmpName, dst); err != nil {
		return n, err
	}

	_ = syncDirBestEffort(dir)
	return n, nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
