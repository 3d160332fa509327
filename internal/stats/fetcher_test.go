package stats

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rumblefrog/go-a2s"
)

type fakeA2S struct {
	info       *a2s.ServerInfo
	players    *a2s.PlayerInfo
	infoErr    error
	playersErr error
	closed     bool
}

func (f *fakeA2S) QueryInfo() (*a2s.ServerInfo, error)   { return f.info, f.infoErr }
func (f *fakeA2S) QueryPlayer() (*a2s.PlayerInfo, error) { return f.players, f.playersErr }
func (f *fakeA2S) Close() error {
	f.closed = true
	return nil
}

func newTestA2SFetcher(t *testing.T, c *fakeA2S, dialErr error) *A2SFetcher {
	t.Helper()

	f, err := NewA2SFetcher(A2SConfig{Host: "127.0.0.1", Port: 2005, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewA2SFetcher() err=%v", err)
	}
	f.dial = func(addr string, timeout time.Duration) (a2sClient, error) {
		if addr != "127.0.0.1:2005" {
			t.Errorf("dial addr = %q, want 127.0.0.1:2005", addr)
		}
		if dialErr != nil {
			return nil, dialErr
		}
		return c, nil
	}
	return f
}

func TestA2SFetcher_Success(t *testing.T) {
	c := &fakeA2S{
		info: &a2s.ServerInfo{Players: 3, MaxPlayers: 64},
		players: &a2s.PlayerInfo{Count: 3, Players: []*a2s.Player{
			{Name: "Zulu"}, {Name: ""}, {Name: "Alpha"},
		}},
	}
	f := newTestA2SFetcher(t, c, nil)

	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if snap.PlayerCount != 3 || snap.MaxPlayers != 64 {
		t.Errorf("count/max = %d/%d, want 3/64", snap.PlayerCount, snap.MaxPlayers)
	}
	if want := []string{"Zulu", "Alpha"}; !reflect.DeepEqual(snap.Players, want) {
		t.Errorf("players = %v, want %v", snap.Players, want)
	}
	if !c.closed {
		t.Error("client was not closed")
	}
}

func TestA2SFetcher_NoPartialSnapshot(t *testing.T) {
	cause := errors.New("i/o timeout")

	tests := []struct {
		name    string
		client  *fakeA2S
		dialErr error
		wantOp  string
	}{
		{
			name:    "dial fails",
			dialErr: cause,
			wantOp:  "dial 127.0.0.1:2005",
		},
		{
			name:   "info fails",
			client: &fakeA2S{infoErr: cause},
			wantOp: "info",
		},
		{
			name: "players fails",
			client: &fakeA2S{
				info:       &a2s.ServerInfo{Players: 1, MaxPlayers: 10},
				playersErr: cause,
			},
			wantOp: "players",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestA2SFetcher(t, tt.client, tt.dialErr)

			snap, err := f.Fetch(context.Background())
			if err == nil {
				t.Fatalf("expected error, got snapshot %+v", snap)
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fe.Op != tt.wantOp {
				t.Errorf("op = %q, want %q", fe.Op, tt.wantOp)
			}
			if !errors.Is(err, cause) {
				t.Errorf("error does not wrap cause: %v", err)
			}
			if !reflect.DeepEqual(snap, Snapshot{}) {
				t.Errorf("expected zero snapshot, got %+v", snap)
			}
		})
	}
}

func TestA2SFetcher_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	f, err := NewA2SFetcher(A2SConfig{Host: "127.0.0.1", Port: 2005})
	if err != nil {
		t.Fatalf("NewA2SFetcher() err=%v", err)
	}
	f.dial = func(string, time.Duration) (a2sClient, error) {
		<-block
		return nil, errors.New("unreachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewA2SFetcher_Validation(t *testing.T) {
	if _, err := NewA2SFetcher(A2SConfig{Port: 2005}); err == nil {
		t.Error("expected error for empty host")
	}
	if _, err := NewA2SFetcher(A2SConfig{Host: "h", Port: 70000}); err == nil {
		t.Error("expected error for invalid port")
	}
}

type fakeStore struct {
	files  map[string][]byte
	err    error
	closed bool
}

func (s *fakeStore) Retrieve(path string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("550 file not found")
	}
	return data, nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

func newTestFileFetcher(t *testing.T, store *fakeStore, dialErr error) *FileFetcher {
	t.Helper()

	f, err := NewFileFetcher(FTPConfig{
		Host:       "ftp.example",
		FilePath:   "/profile/stats.json",
		MaxPlayers: 128,
	})
	if err != nil {
		t.Fatalf("NewFileFetcher() err=%v", err)
	}
	f.dial = func(ctx context.Context, cfg FTPConfig) (fileStore, error) {
		if cfg.Port != 21 || cfg.User != "anonymous" {
			t.Errorf("defaults not applied: port=%d user=%q", cfg.Port, cfg.User)
		}
		if dialErr != nil {
			return nil, dialErr
		}
		return store, nil
	}
	return f
}

func TestFileFetcher_Success(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{
		"/profile/stats.json": []byte(`{"connected_players": {"1": "Bravo", "2": "Alpha"}}`),
	}}
	f := newTestFileFetcher(t, store, nil)

	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if snap.PlayerCount != 2 || snap.MaxPlayers != 128 {
		t.Errorf("count/max = %d/%d, want 2/128", snap.PlayerCount, snap.MaxPlayers)
	}
	if want := []string{"Bravo", "Alpha"}; !reflect.DeepEqual(snap.Players, want) {
		t.Errorf("players = %v, want %v", snap.Players, want)
	}
	if !store.closed {
		t.Error("store session was not closed")
	}
}

func TestFileFetcher_ZeroPlayersIsNotFailure(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{
		"/profile/stats.json": []byte(`{"connected_players": {}}`),
	}}
	f := newTestFileFetcher(t, store, nil)

	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if snap.PlayerCount != 0 || len(snap.Players) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestFileFetcher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakeStore
		dialErr error
		wantOp  string
	}{
		{
			name:    "connect",
			dialErr: errors.New("530 login incorrect"),
			wantOp:  "connect",
		},
		{
			name:   "missing file",
			store:  &fakeStore{files: map[string][]byte{}},
			wantOp: "retrieve /profile/stats.json",
		},
		{
			name: "parse",
			store: &fakeStore{files: map[string][]byte{
				"/profile/stats.json": []byte(`{"uptime": 5}`),
			}},
			wantOp: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFileFetcher(t, tt.store, tt.dialErr)

			_, err := f.Fetch(context.Background())
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fe.Source != "ftp" || fe.Op != tt.wantOp {
				t.Errorf("got %s/%s, want ftp/%s", fe.Source, fe.Op, tt.wantOp)
			}
		})
	}
}
