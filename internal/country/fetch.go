package country

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/resilience"
)

// maxDataFileBytes bounds the size of a downloaded countries data file.
const maxDataFileBytes = 32 << 20

// Fetch downloads a countries data file from an http(s) or ftp url and
// atomically replaces dest with it. The payload must parse as a country data
// array; it is not written otherwise.
func Fetch(ctx context.Context, client *http.Client, url, dest string) (int, error) {
	if client == nil {
		client = http.DefaultClient
	}

	log := zap.L().With(zap.String("component", "country.fetch"), zap.String("url", url))
	log.Info("downloading countries data file")

	data, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) ([]byte, error) {
		return download(ctx, client, url)
	})
	if err != nil {
		return 0, eris.Wrap(err, "country: download data file")
	}

	t, err := Parse(data)
	if err != nil {
		return 0, err
	}
	if t.Len() == 0 {
		return 0, eris.New("country: downloaded data file has no usable records")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, eris.Wrap(err, "country: create data dir")
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return 0, eris.Wrap(err, "country: write data file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, eris.Wrap(err, "country: replace data file")
	}

	log.Info("countries data file saved", zap.String("dest", dest), zap.Int("countries", t.Len()))
	return t.Len(), nil
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if isFTPURL(url) {
		return downloadFTP(ctx, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("download returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDataFileBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	return data, nil
}
