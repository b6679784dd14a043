package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Staged is a dump placed in the upload directory, ready for a collector.
type Staged struct {
	// Path is the file the collector should read.
	Path string

	created []string
}

// Remove deletes every file the stager created for this dump. Files the
// caller passed in by local path are left alone.
func (s *Staged) Remove() {
	for _, p := range s.created {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("fetcher: remove staged file", zap.String("path", p), zap.Error(err))
		}
	}
	s.created = nil
}

// Stager writes dumps into a directory under uuid-prefixed names.
type Stager struct {
	dir      string
	maxBytes int64
	http     Fetcher
	ftp      Fetcher
}

// NewStager creates a stager writing into dir. Either fetcher may be nil,
// which disables that scheme.
func NewStager(dir string, maxBytes int64, httpFetcher, ftpFetcher Fetcher) *Stager {
	return &Stager{dir: dir, maxBytes: maxBytes, http: httpFetcher, ftp: ftpFetcher}
}

// Dir returns the upload directory.
func (s *Stager) Dir() string { return s.dir }

// Save copies r into the upload directory. name is the client-supplied
// file name; only its base is kept.
func (s *Stager) Save(r io.Reader, name string) (*Staged, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, eris.Wrap(err, "fetcher: create upload dir")
	}
	prefix := uuid.NewString() + "_"
	dest := filepath.Join(s.dir, prefix+safeName(name))

	out, err := os.Create(dest)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create staged file")
	}
	staged := &Staged{Path: dest, created: []string{dest}}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(out, src)
	closeErr := out.Close()
	switch {
	case err != nil:
		staged.Remove()
		return nil, eris.Wrap(err, "fetcher: write staged file")
	case closeErr != nil:
		staged.Remove()
		return nil, eris.Wrap(closeErr, "fetcher: close staged file")
	case s.maxBytes > 0 && n > s.maxBytes:
		staged.Remove()
		return nil, eris.Errorf("fetcher: upload is larger than %d bytes", s.maxBytes)
	}

	return s.unzip(staged, prefix)
}

// Stage makes src available as a local file. Remote URLs are downloaded,
// local paths are used in place, and single-file zips are extracted.
func (s *Stager) Stage(ctx context.Context, src string) (*Staged, error) {
	if !IsRemote(src) {
		if _, err := os.Stat(src); err != nil {
			return nil, eris.Wrap(err, "fetcher: stat input")
		}
		return s.unzip(&Staged{Path: src}, uuid.NewString()+"_")
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		f = s.ftp
	default:
		f = s.http
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: %s downloads are not enabled", u.Scheme)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, eris.Wrap(err, "fetcher: create upload dir")
	}
	prefix := uuid.NewString() + "_"
	dest := filepath.Join(s.dir, prefix+safeName(path.Base(u.Path)))
	staged := &Staged{Path: dest, created: []string{dest}}

	zap.L().Info("fetcher: downloading", zap.String("url", u.Redacted()), zap.String("dest", dest))
	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		staged.Remove()
		return nil, err
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		staged.Remove()
		return nil, eris.Errorf("fetcher: download is larger than %d bytes", s.maxBytes)
	}
	return s.unzip(staged, prefix)
}

func (s *Stager) unzip(staged *Staged, prefix string) (*Staged, error) {
	if !strings.EqualFold(filepath.Ext(staged.Path), ".zip") {
		return staged, nil
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		staged.Remove()
		return nil, eris.Wrap(err, "fetcher: create upload dir")
	}
	extracted, err := ExtractZIPSingle(staged.Path, s.dir, prefix, s.maxBytes)
	if err != nil {
		staged.Remove()
		return nil, err
	}
	staged.created = append(staged.created, extracted)
	staged.Path = extracted
	return staged, nil
}

// safeName reduces a client-supplied name to a plain base name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}
