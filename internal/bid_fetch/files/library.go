package files

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileType names one of the three fixed download directories.
type FileType string

const (
	TypeAttachment FileType = "attachment"
	TypeJSON       FileType = "json"
	TypeReport     FileType = "report"
)

// AllTypes lists the fixed directories in a stable order.
var AllTypes = []FileType{TypeAttachment, TypeJSON, TypeReport}

// ParseFileType validates a file type from a URL segment.
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case TypeAttachment, TypeJSON, TypeReport:
		return FileType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFileType, s)
}

var mimeTypes = map[string]string{
	".hwp":  "application/haansofthwp",
	".hwpx": "application/haansofthwpx",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".json": "application/json",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// ContentType picks a MIME type from the extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Library is the downloads tree rooted at Root.
type Library struct {
	Root        string
	MaxFileSize int64 // bytes, 0 = unlimited
	MaxZipBytes int64 // attachment bytes per archive, 0 = unlimited

	now func() time.Time
}

// NewLibrary creates the library and its fixed directories.
func NewLibrary(root string, maxFileSize, maxZipBytes int64) (*Library, error) {
	l := &Library{Root: root, MaxFileSize: maxFileSize, MaxZipBytes: maxZipBytes, now: time.Now}
	if err := l.EnsureDirs(); err != nil {
		return nil, err
	}
	return l, nil
}

// EnsureDirs creates Root and the attachments, json and reports directories.
func (l *Library) EnsureDirs() error {
	for _, t := range AllTypes {
		if err := os.MkdirAll(l.Dir(t), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", t, err)
		}
	}
	return nil
}

// Dir is the directory of a file type.
func (l *Library) Dir(t FileType) string {
	switch t {
	case TypeAttachment:
		return filepath.Join(l.Root, "attachments")
	case TypeJSON:
		return filepath.Join(l.Root, "json")
	case TypeReport:
		return filepath.Join(l.Root, "reports")
	}
	return ""
}

// SearchDir is the per-search directory.
func (l *Library) SearchDir(searchID string) string {
	return filepath.Join(l.Root, searchID)
}

// CreateSearchDir creates the per-search directory. The id must be a plain name.
func (l *Library) CreateSearchDir(searchID string) (string, error) {
	if err := checkSearchID(searchID); err != nil {
		return "", err
	}
	dir := l.SearchDir(searchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir search dir: %w", err)
	}
	return dir, nil
}

// Resolve returns the path of an existing regular file of the given type.
func (l *Library) Resolve(t FileType, name string) (string, os.FileInfo, error) {
	p, err := SafePath(l.Dir(t), name)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, ErrNotFound
	}
	return p, info, nil
}

// ResolveAttachment is Resolve for attachments with the single-file size limit applied.
func (l *Library) ResolveAttachment(name string) (string, os.FileInfo, error) {
	p, info, err := l.Resolve(TypeAttachment, name)
	if err != nil {
		return "", nil, err
	}
	if l.MaxFileSize > 0 && info.Size() > l.MaxFileSize {
		return "", nil, ErrTooLarge
	}
	return p, info, nil
}

// FileInfo describes one listed file.
type FileInfo struct {
	Filename    string  `json:"filename"`
	Size        int64   `json:"size"`
	Modified    float64 `json:"modified"`
	Type        string  `json:"type"`
	DownloadURL string  `json:"download_url"`
}

// List returns the files of a type, newest first. A non-empty searchID keeps only names that
// contain it.
func (l *Library) List(t FileType, searchID string) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.Dir(t))
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if searchID != "" && !strings.Contains(e.Name(), searchID) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Filename:    e.Name(),
			Size:        info.Size(),
			Modified:    float64(info.ModTime().UnixNano()) / 1e9,
			Type:        strings.ToLower(filepath.Ext(e.Name())),
			DownloadURL: fmt.Sprintf("/api/download/%s/%s", t, e.Name()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Modified > out[j].Modified })
	return out, nil
}

// Delete removes one file of a type.
func (l *Library) Delete(t FileType, name string) error {
	p, _, err := l.Resolve(t, name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// DirUsage is the size and file count of one directory.
type DirUsage struct {
	SizeBytes int64 `json:"size_bytes"`
	FileCount int   `json:"file_count"`
}

// Usage is the disk usage report.
type Usage struct {
	Attachments DirUsage `json:"attachments"`
	JSON        DirUsage `json:"json"`
	Reports     DirUsage `json:"reports"`
	Total       struct {
		SizeBytes int64   `json:"size_bytes"`
		SizeMB    float64 `json:"size_mb"`
		FileCount int     `json:"file_count"`
	} `json:"total"`
}

// DiskUsage sums file sizes recursively per directory.
func (l *Library) DiskUsage() (Usage, error) {
	var u Usage
	targets := []*DirUsage{&u.Attachments, &u.JSON, &u.Reports}
	for i, t := range AllTypes {
		du, err := dirUsage(l.Dir(t))
		if err != nil {
			return u, err
		}
		*targets[i] = du
		u.Total.SizeBytes += du.SizeBytes
		u.Total.FileCount += du.FileCount
	}
	u.Total.SizeMB = float64(u.Total.SizeBytes*100/(1024*1024)) / 100
	return u, nil
}

func dirUsage(dir string) (DirUsage, error) {
	var du DirUsage
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			du.SizeBytes += info.Size()
			du.FileCount++
		}
		return nil
	})
	return du, err
}

// CleanupResult lists what a cleanup removed.
type CleanupResult struct {
	DeletedFiles []string `json:"deleted_files"`
	CutoffDays   int      `json:"cutoff_days"`
	Failed       []string `json:"failed,omitempty"`
}

// Cleanup deletes files last modified more than olderThanDays ago. With t empty all three
// directories are swept and stale per-search directories are removed as well. Only
// directories named by a search uuid count as per-search directories.
func (l *Library) Cleanup(t FileType, olderThanDays int) (CleanupResult, error) {
	if olderThanDays < 1 {
		return CleanupResult{}, fmt.Errorf("older_than_days must be >= 1, got %d", olderThanDays)
	}
	cutoff := l.clock()().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	res := CleanupResult{DeletedFiles: []string{}, CutoffDays: olderThanDays}

	types := AllTypes
	if t != "" {
		types = []FileType{t}
	}
	for _, ft := range types {
		entries, err := os.ReadDir(l.Dir(ft))
		if err != nil {
			return res, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(l.Dir(ft), e.Name())); err != nil {
				res.Failed = append(res.Failed, e.Name())
				continue
			}
			res.DeletedFiles = append(res.DeletedFiles, e.Name())
		}
	}

	if t == "" {
		l.cleanupSearchDirs(cutoff, &res)
	}
	return res, nil
}

func (l *Library) cleanupSearchDirs(cutoff time.Time, res *CleanupResult) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || uuid.Validate(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.Root, e.Name())); err != nil {
			res.Failed = append(res.Failed, e.Name()+"/")
			continue
		}
		res.DeletedFiles = append(res.DeletedFiles, e.Name()+"/")
	}
}

func (l *Library) clock() func() time.Time {
	if l.now == nil {
		return time.Now
	}
	return l.now
}
