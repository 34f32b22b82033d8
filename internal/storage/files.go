package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound          = errors.New("file not found")
	ErrDestinationExists = errors.New("destination already exists")
	ErrInvalidName       = errors.New("invalid file name")
)

// Kind selects the asset or thumbnail area of a project.
type Kind string

const (
	KindAssets Kind = "assets"
	KindThumbs Kind = "thumbs"
)

func (k Kind) Valid() bool {
	return k == KindAssets || k == KindThumbs
}

// Object is a stored file: Path is what the database records, URL is what
// clients fetch.
type Object struct {
	Path string
	URL  string
}

type Info struct {
	Size        int64
	ContentType string
}

// Files is the file side of a backend. Paths passed in are the values
// previously returned by Save or TrashPath.
type Files interface {
	Save(ctx context.Context, kind Kind, projectID, fileName string, r io.Reader, size int64, contentType string) (Object, error)
	TrashPath(projectID string, kind Kind, activePath string) string
	Exists(ctx context.Context, path string) (bool, error)
	Move(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, path string) error
	RemoveProject(ctx context.Context, projectID string) error
	WritePreview(ctx context.Context, projectID string, data []byte, contentType string) error
	OpenPreview(ctx context.Context, projectID string) (io.ReadCloser, error)
	Open(ctx context.Context, projectID string, kind Kind, fileName string) (io.ReadCloser, Info, error)
}

// AssetURL is the API route that serves a project file.
func AssetURL(projectID string, kind Kind, fileName string) string {
	return "/files/projects/" + projectID + "/" + string(kind) + "/" + fileName
}

func PreviewURL(projectID string) string {
	return "/files/projects/" + projectID + "/preview"
}

// CleanName rejects names that would escape their directory.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return "", ErrInvalidName
	}
	return name, nil
}

// ContentTypeFor guesses a MIME type from the file extension.
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".svg":
		return "image/svg+xml"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// ExtensionFor returns the canonical extension for an upload MIME type.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	case "image/svg+xml":
		return ".svg"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ""
	}
}

var (
	_ Files = (*Disk)(nil)
	_ Files = (*Bucket)(nil)
)
