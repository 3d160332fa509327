package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// maxStatsFileSize ограничивает чтение файла статистики
const maxStatsFileSize = 8 << 20

// fileStore remote file store session; one per Fetch.
type fileStore interface {
	Retrieve(path string) ([]byte, error)
	Close() error
}

// FTPConfig параметры доступа к файлу статистики
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	FilePath string
	// PlayersField путь (gjson) к объекту с игроками внутри документа
	PlayersField string
	// MaxPlayers в документе нет максимума слотов, берётся из конфигурации
	MaxPlayers int
	Timeout    time.Duration
}

// FileFetcher читает JSON-статистику сервера с FTP.
type FileFetcher struct {
	cfg  FTPConfig
	dial func(ctx context.Context, cfg FTPConfig) (fileStore, error)
}

func NewFileFetcher(cfg FTPConfig) (*FileFetcher, error) {
	if cfg.Host == "" {
		return nil, errors.New("ftp: host required")
	}
	if cfg.FilePath == "" {
		return nil, errors.New("ftp: file path required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 21
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
	if cfg.PlayersField == "" {
		cfg.PlayersField = DefaultPlayersField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &FileFetcher{cfg: cfg, dial: dialFTP}, nil
}

func (f *FileFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	store, err := f.dial(ctx, f.cfg)
	if err != nil {
		return Snapshot{}, &FetchError{Source: "ftp", Op: "connect", Err: err}
	}
	defer store.Close()

	data, err := store.Retrieve(f.cfg.FilePath)
	if err != nil {
		return Snapshot{}, &FetchError{Source: "ftp", Op: "retrieve " + f.cfg.FilePath, Err: err}
	}

	players, err := ParseRoster(data, f.cfg.PlayersField)
	if err != nil {
		return Snapshot{}, &FetchError{Source: "ftp", Op: "parse", Err: err}
	}

	return newSnapshot(len(players), f.cfg.MaxPlayers, players), nil
}

type ftpStore struct {
	conn *ftp.ServerConn
}

func dialFTP(ctx context.Context, cfg FTPConfig) (fileStore, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login as %s: %w", cfg.User, err)
	}

	return &ftpStore{conn: conn}, nil
}

func (s *ftpStore) Retrieve(path string) ([]byte, error) {
	resp, err := s.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	data, err := io.ReadAll(io.LimitReader(resp, maxStatsFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxStatsFileSize {
		return nil, fmt.Errorf("file larger than %d bytes", maxStatsFileSize)
	}
	return data, nil
}

func (s *ftpStore) Close() error {
	return s.conn.Quit()
}
