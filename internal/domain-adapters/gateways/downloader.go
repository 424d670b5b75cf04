package gateways

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ochairo/prgate/internal/domain/interfaces"
)

// maxBinarySize caps extracted binaries to guard against decompression bombs
const maxBinarySize = 1 << 30

// maxListingSize caps checksum files and signatures
const maxListingSize = 1 << 20

// releaseDownloader fetches release assets over the retrying HTTP client
type releaseDownloader struct {
	client    *retryablehttp.Client
	userAgent string
	logger    interfaces.Logger
}

func newReleaseDownloader(client *retryablehttp.Client, logger interfaces.Logger) *releaseDownloader {
	logger = interfaces.OrNoOp(logger)
	if client == nil {
		client = newRetryClient(logger)
	}
	return &releaseDownloader{client: client, userAgent: "prgate/1.0", logger: logger}
}

// fetch downloads a small document (checksum listing, signature) into memory
func (d *releaseDownloader) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.get(ctx, url)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}

// downloadFile streams url into dest
func (d *releaseDownloader) downloadFile(ctx context.Context, url, dest string) error {
	resp, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	//nolint:gosec // G304: dest is inside the installer's temp directory
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	d.logger.Debug("Downloaded release asset", interfaces.F("url", url), interfaces.F("bytes", written))
	return nil
}

func (d *releaseDownloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return resp, nil
}

// extractBinary copies the archive entry whose base name is binary to dest
// with mode 0755. Archives are .tar.gz/.tgz or .zip.
func extractBinary(archivePath, binary, dest string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractFromTarGz(archivePath, binary, dest)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractFromZip(archivePath, binary, dest)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

func extractFromTarGz(archivePath, binary, dest string) error {
	//nolint:gosec // G304: archivePath is a verified download
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open tar.gz: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	//nolint:errcheck // Defer close on gzip reader
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}
		if header.Typeflag != tar.TypeReg || path.Base(header.Name) != binary {
			continue
		}
		return writeExecutable(tr, dest)
	}
	return fmt.Errorf("%s not found in %s", binary, filepath.Base(archivePath))
}

func extractFromZip(archivePath, binary, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	//nolint:errcheck // Defer close on zip reader
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != binary {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		err = writeExecutable(rc, dest)
		_ = rc.Close()
		return err
	}
	return fmt.Errorf("%s not found in %s", binary, filepath.Base(archivePath))
}

// writeExecutable writes r to dest through a temp file so a half-written
// binary is never left on PATH.
func writeExecutable(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := io.Copy(tmp, io.LimitReader(r, maxBinarySize)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	//nolint:gosec // G302: scanner binaries must be executable
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", filepath.Base(dest), err)
	}
	return os.Rename(tmp.Name(), dest)
}
