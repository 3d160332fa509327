package stats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rumblefrog/go-a2s"
)

// a2sClient subset of *a2s.Client used by the fetcher.
type a2sClient interface {
	QueryInfo() (*a2s.ServerInfo, error)
	QueryPlayer() (*a2s.PlayerInfo, error)
	Close() error
}

// A2SConfig адрес query-порта сервера
type A2SConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// A2SFetcher опрашивает сервер по Source Query (A2S_INFO + A2S_PLAYER).
// Клиент создаётся на каждый Fetch: UDP без состояния, переподключать нечего.
type A2SFetcher struct {
	addr    string
	timeout time.Duration
	dial    func(addr string, timeout time.Duration) (a2sClient, error)
}

func NewA2SFetcher(cfg A2SConfig) (*A2SFetcher, error) {
	if cfg.Host == "" {
		return nil, errors.New("a2s: host required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("a2s: invalid port %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &A2SFetcher{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		timeout: cfg.Timeout,
		dial:    dialA2S,
	}, nil
}

func dialA2S(addr string, timeout time.Duration) (a2sClient, error) {
	return a2s.NewClient(addr, a2s.TimeoutOption(timeout))
}

// Fetch all-or-nothing: ошибка любого из двух запросов - ошибка всего снимка.
func (f *A2SFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	type result struct {
		snap Snapshot
		err  error
	}

	// go-a2s не принимает context: запрос идёт в горутине, ctx лишь прерывает ожидание
	done := make(chan result, 1)
	go func() {
		snap, err := f.query()
		done <- result{snap, err}
	}()

	select {
	case <-ctx.Done():
		return Snapshot{}, &FetchError{Source: "a2s", Op: "query", Err: ctx.Err()}
	case r := <-done:
		return r.snap, r.err
	}
}

func (f *A2SFetcher) query() (Snapshot, error) {
	client, err := f.dial(f.addr, f.timeout)
	if err != nil {
		return Snapshot{}, &FetchError{Source: "a2s", Op: "dial " + f.addr, Err: err}
	}
	defer client.Close()

	info, err := client.QueryInfo()
	if err != nil {
		return Snapshot{}, &FetchError{Source: "a2s", Op: "info", Err: err}
	}
	if info == nil {
		return Snapshot{}, &FetchError{Source: "a2s", Op: "info", Err: errors.New("empty response")}
	}

	pi, err := client.QueryPlayer()
	if err != nil {
		return Snapshot{}, &FetchError{Source: "a2s", Op: "players", Err: err}
	}

	var names []string
	if pi != nil {
		names = make([]string, 0, len(pi.Players))
		for _, p := range pi.Players {
			if p == nil {
				continue
			}
			// подключающиеся игроки приходят с пустым ником
			name := strings.TrimSpace(p.Name)
			if name == "" {
				continue
			}
			names = append(names, name)
		}
	}

	return newSnapshot(int(info.Players), int(info.MaxPlayers), names), nil
}
