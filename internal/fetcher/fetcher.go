// Package fetcher stages leak dumps into the upload directory. Dumps arrive
// as uploaded bytes, local paths or remote http(s) and ftp URLs; a zip
// holding a single file is unpacked so the collectors see a plain file.
package fetcher

import (
	"context"
	"net/url"
	"strings"
)

// Fetcher downloads a remote file to a local path.
type Fetcher interface {
	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// IsRemote reports whether src is a URL the stager can download.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return u.Host != ""
	default:
		return false
	}
}
