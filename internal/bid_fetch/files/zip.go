package files

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ZipEntry is one file scheduled for an archive.
type ZipEntry struct {
	Path string // on disk
	Name string // inside the archive
	Size int64
}

// PlanSearchArchive collects every file belonging to searchID: names containing the id in the
// json, reports and attachments directories, plus the content of the per-search directory.
// Attachment bytes are capped at MaxZipBytes; files that would cross the cap are skipped.
// No files at all is ErrNothingToDownload.
func (l *Library) PlanSearchArchive(searchID string) ([]ZipEntry, error) {
	if err := checkSearchID(searchID); err != nil {
		return nil, err
	}

	var entries []ZipEntry
	for _, spec := range []struct {
		t      FileType
		prefix string
	}{{TypeJSON, "json"}, {TypeReport, "reports"}} {
		matched, err := l.matching(spec.t, searchID)
		if err != nil {
			return nil, err
		}
		for _, m := range matched {
			m.Name = path.Join(spec.prefix, m.Name)
			entries = append(entries, m)
		}
	}

	var total int64
	admit := func(e ZipEntry) bool {
		if l.MaxZipBytes > 0 && total+e.Size > l.MaxZipBytes {
			return false
		}
		total += e.Size
		return true
	}

	attachments, err := l.matching(TypeAttachment, searchID)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if admit(a) {
			a.Name = path.Join("attachments", a.Name)
			entries = append(entries, a)
		}
	}

	searchFiles, err := l.walkDir(l.SearchDir(searchID))
	if err != nil {
		return nil, err
	}
	for _, f := range searchFiles {
		if strings.HasSuffix(f.Name, ".json") || admit(f) {
			f.Name = path.Join("search", f.Name)
			entries = append(entries, f)
		}
	}

	if len(entries) == 0 {
		return nil, ErrNothingToDownload
	}
	return entries, nil
}

// PlanDirArchive collects the per-search directory only.
func (l *Library) PlanDirArchive(searchID string) ([]ZipEntry, error) {
	if err := checkSearchID(searchID); err != nil {
		return nil, err
	}
	entries, err := l.walkDir(l.SearchDir(searchID))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNothingToDownload
	}
	return entries, nil
}

// WriteZip streams the entries as a deflated archive.
func WriteZip(w io.Writer, entries []ZipEntry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := addFile(zw, e); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, e ZipEntry) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = e.Name
	hdr.Method = zip.Deflate
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

func (l *Library) matching(t FileType, searchID string) ([]ZipEntry, error) {
	dir := l.Dir(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []ZipEntry
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.Contains(e.Name(), searchID) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ZipEntry{Path: filepath.Join(dir, e.Name()), Name: e.Name(), Size: info.Size()})
	}
	return out, nil
}

func (l *Library) walkDir(dir string) ([]ZipEntry, error) {
	var out []ZipEntry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || strings.HasSuffix(d.Name(), ".part") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, ZipEntry{Path: p, Name: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	return out, err
}

func checkSearchID(searchID string) error {
	if searchID == "" || SanitizeFilename(searchID) != searchID || strings.Trim(searchID, ".") == "" {
		return fmt.Errorf("%w: search id %q", ErrInvalidPath, searchID)
	}
	return nil
}
