package store

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig describes how to reach the remote store. With TLS set, the
// connection is upgraded via explicit FTPS before login.
type FTPConfig struct {
	Addr     string
	User     string
	Password string
	TLS      bool
	Timeout  time.Duration
}

// FTPStore talks to a remote FTP(S) server. Every operation opens a
// fresh connection, authenticates, runs, and quits. Some servers kill
// idle control connections without notice, so nothing is reused.
type FTPStore struct {
	config FTPConfig
}

func NewFTPStore(config FTPConfig) *FTPStore {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &FTPStore{config: config}
}

func (s *FTPStore) connect() (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithTimeout(s.config.Timeout)}
	if s.config.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: hostOnly(s.config.Addr),
		}))
	}

	conn, err := ftp.Dial(s.config.Addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(s.config.User, s.config.Password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func hostOnly(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// notFound reports whether the server answered 550 (file unavailable).
func notFound(err error) bool {
	var proto *textproto.Error
	return errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable
}

func (s *FTPStore) Put(p string, data []byte) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	defer conn.Quit()

	// Create ancestors one segment at a time; 550 on an existing
	// directory is expected and ignored.
	dir := path.Dir(p)
	if dir != "." && dir != "/" {
		partial := ""
		for _, seg := range strings.Split(dir, "/") {
			if seg == "" {
				continue
			}
			partial = path.Join(partial, seg)
			conn.MakeDir(partial)
		}
	}

	tmp := p + ".tmp"
	if err := conn.Stor(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	// Rename over the final path so readers never see a partial file.
	conn.Delete(p)
	if err := conn.Rename(tmp, p); err != nil {
		conn.Delete(tmp)
		return err
	}
	return nil
}

func (s *FTPStore) Get(p string) ([]byte, error) {
	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(p)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

func (s *FTPStore) Exists(p string) (bool, error) {
	conn, err := s.connect()
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	if _, err := conn.FileSize(p); err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FTPStore) Delete(p string) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(p); err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *FTPStore) Close() error {
	// Nothing held open between operations.
	return nil
}
