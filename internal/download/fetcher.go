package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher transfers one artifact from a source URI to a local destination,
// reporting progress as a 0-100 percentage when the total size is known.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURI, dest string, progress func(pct int)) error
}

// HTTPFetcher downloads over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 0}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURI, dest string, progress func(pct int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURI, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, sourceURI)
	}
	return writeAll(ctx, resp.Body, resp.ContentLength, dest, progress)
}

// FileFetcher copies a local file; useful for pre-staged artifacts and tests.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, sourceURI, dest string, progress func(pct int)) error {
	src := strings.TrimPrefix(sourceURI, "file://")
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	return writeAll(ctx, in, fi.Size(), dest, progress)
}

// writeAll streams r to a temp file next to dest and renames on success so a
// partially-fetched artifact is never visible under its final name.
func writeAll(ctx context.Context, r io.Reader, total int64, dest string, progress func(pct int)) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	var written int64
	buf := make([]byte, 256*1024)
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(tmp)
				return werr
			}
			written += int64(n)
			if progress != nil && total > 0 && time.Since(lastReport) > 100*time.Millisecond {
				progress(int(written * 100 / total))
				lastReport = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(tmp)
			return rerr
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if progress != nil {
		progress(100)
	}
	return os.Rename(tmp, dest)
}
