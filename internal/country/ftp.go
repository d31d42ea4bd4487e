package country

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
)

const ftpTimeout = 30 * time.Second

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL splits an ftp:// URL into dial address, remote path and
// credentials. Missing credentials fall back to anonymous login.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return ftpTarget{}, eris.New("empty host in ftp url")
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

func isFTPURL(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "ftp://")
}

func downloadFTP(ctx context.Context, rawURL string) ([]byte, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp dial %s", t.host)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(t.user, t.password); err != nil {
		return nil, eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp retrieve %s", t.path)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp, maxDataFileBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read ftp body")
	}
	return data, nil
}
