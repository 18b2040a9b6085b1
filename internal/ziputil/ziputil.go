// Package ziputil wraps archive handling for the intake pipeline: integrity
// checking, flat extraction and repackaging of quarantined batches.
package ziputil

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// Check verifies that every entry of the archive can be read end to end.
// A corrupt archive is detected here, before any extraction work starts.
func Check(fsys afero.Fs, zipPath string) error {
	r, closeFn, err := open(fsys, zipPath)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
		// Reading to EOF validates the stored CRC.
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
	}
	return nil
}

// Extract unpacks every regular file of the archive flat into destDir, using
// base names only. Returns the extracted paths.
func Extract(fsys afero.Fs, zipPath, destDir string) ([]string, error) {
	r, closeFn, err := open(fsys, zipPath)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if err := fsys.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		dest := filepath.Join(destDir, name)

		if err := extractOne(fsys, f, dest); err != nil {
			return extracted, fmt.Errorf("entry %s: %w", f.Name, err)
		}
		extracted = append(extracted, dest)
	}
	return extracted, nil
}

// Create writes a new archive at zipPath containing the given files under
// their base names.
func Create(fsys afero.Fs, zipPath string, files []string) error {
	out, err := fsys.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range files {
		if err := addOne(fsys, zw, file); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", file, err)
		}
	}
	return zw.Close()
}

func open(fsys afero.Fs, zipPath string) (*zip.Reader, func(), error) {
	f, err := fsys.Open(zipPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, func() { f.Close() }, nil
}

func extractOne(fsys afero.Fs, f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := fsys.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func addOne(fsys afero.Fs, zw *zip.Writer, file string) error {
	in, err := fsys.Open(file)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(filepath.Base(file))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
