package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk keeps project files under a data directory:
// projects/{id}/assets, thumbs, trash/assets, trash/thumbs and preview.webp.
type Disk struct {
	root string
}

func NewDisk(dataDir string) (*Disk, error) {
	root, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "projects"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Disk{root: root}, nil
}

func (d *Disk) Root() string {
	return d.root
}

func (d *Disk) projectDir(projectID string) string {
	return filepath.Join(d.root, "projects", projectID)
}

func (d *Disk) Save(ctx context.Context, kind Kind, projectID, fileName string, r io.Reader, size int64, contentType string) (Object, error) {
	name, err := CleanName(fileName)
	if err != nil {
		return Object{}, err
	}
	if _, err := CleanName(projectID); err != nil || !kind.Valid() {
		return Object{}, ErrInvalidName
	}
	dir := filepath.Join(d.projectDir(projectID), string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, fmt.Errorf("create %s dir: %w", kind, err)
	}
	target := filepath.Join(dir, name)
	if err := writeFileAtomic(target, r); err != nil {
		return Object{}, err
	}
	return Object{Path: target, URL: AssetURL(projectID, kind, name)}, nil
}

func (d *Disk) TrashPath(projectID string, kind Kind, activePath string) string {
	return filepath.Join(d.projectDir(projectID), "trash", string(kind), filepath.Base(activePath))
}

func (d *Disk) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Move renames src to dst, copying across devices when rename fails. An
// existing dst is never overwritten.
func (d *Disk) Move(_ context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return ErrDestinationExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	if err := writeFileAtomic(dst, in); err != nil {
		in.Close()
		return err
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

func (d *Disk) Remove(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Disk) RemoveProject(_ context.Context, projectID string) error {
	if _, err := CleanName(projectID); err != nil {
		return err
	}
	return os.RemoveAll(d.projectDir(projectID))
}

func (d *Disk) WritePreview(_ context.Context, projectID string, data []byte, _ string) error {
	if _, err := CleanName(projectID); err != nil {
		return err
	}
	dir := d.projectDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	tmp := filepath.Join(dir, "preview.webp.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, "preview.webp"))
}

func (d *Disk) OpenPreview(_ context.Context, projectID string) (io.ReadCloser, error) {
	if _, err := CleanName(projectID); err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(d.projectDir(projectID), "preview.webp"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (d *Disk) Open(_ context.Context, projectID string, kind Kind, fileName string) (io.ReadCloser, Info, error) {
	name, err := CleanName(fileName)
	if err != nil || !kind.Valid() {
		return nil, Info{}, ErrNotFound
	}
	if _, err := CleanName(projectID); err != nil {
		return nil, Info{}, ErrNotFound
	}
	f, err := os.Open(filepath.Join(d.projectDir(projectID), string(kind), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, ErrNotFound
	}
	if err != nil {
		return nil, Info{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Info{}, err
	}
	return f, Info{Size: st.Size(), ContentType: ContentTypeFor(name)}, nil
}

func writeFileAtomic(target string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
