package app

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// archiveDir zips the regular files directly inside dir, stored by basename.
// No archive is created when dir has no files. onStart is called with the file
// count before writing begins.
func archiveDir(dir, archivePath string, onStart func(files int)) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)
	if onStart != nil {
		onStart(len(files))
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = out.Close()
	}()

	zw := zip.NewWriter(out)
	for _, name := range files {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			_ = zw.Close()
			return 0, fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	return len(files), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
