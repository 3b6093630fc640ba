package gecko

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/danmuck/geckoctl/internal/testutil/testlog"
	"github.com/danmuck/geckoctl/internal/transport"
)

func TestBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.Delay(i+1, nil); got != w {
			t.Fatalf("attempt %d got=%v want=%v", i+1, got, w)
		}
	}

	cfg.Jitter = true
	if got := cfg.Delay(1, nil); got != 125*time.Millisecond {
		t.Fatalf("jitter without rng must halve: %v", got)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		got := cfg.Delay(2, rng)
		if got < 250*time.Millisecond || got >= 750*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
	if got := (BackoffConfig{}).Delay(3, nil); got != 0 {
		t.Fatalf("zero config must not wait: %v", got)
	}
}

func TestConnectMarksConnectedAndReconnectsWhenCalledTwice(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	if !s.Connected() {
		t.Fatalf("expected connected")
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if !s.Connected() {
		t.Fatalf("expected connected after second connect")
	}
	if tr.connects != 2 {
		t.Fatalf("unexpected connect count: %d", tr.connects)
	}
	if tr.closes < 1 {
		t.Fatalf("expected first connection to be closed")
	}
}

func TestConnectFailureIsNotFound(t *testing.T) {
	testlog.Start(t)
	tr := &scriptTransport{connectErr: errors.New("connection refused")}
	s := New(testConfig(), WithTransport(tr))
	err := s.Connect(context.Background())
	if !errors.Is(err, KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	if s.Connected() {
		t.Fatalf("session must stay disconnected")
	}
	if s.Reconnect(context.Background()) {
		t.Fatalf("reconnect should report failure")
	}
}

func TestConnectSettleDelayHonorsContext(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.SettleDelay = time.Hour
	s := New(cfg, WithTransport(&scriptTransport{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Connect(ctx); !errors.Is(err, KindConnect) {
		t.Fatalf("expected KindConnect, got %v", err)
	}
	if s.Connected() {
		t.Fatalf("session must stay disconnected")
	}
}

func TestConnectAgainstRealListener(t *testing.T) {
	testlog.Start(t)
	s := New(Config{Host: "127.0.0.1", Port: 1, ConnectTimeout: 200 * time.Millisecond})
	if err := s.Connect(context.Background()); !errors.Is(err, KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestConnectWithRetryBacksOff(t *testing.T) {
	testlog.Start(t)
	attempts := 0
	factory := func(Config) transport.Transport {
		attempts++
		tr := &scriptTransport{}
		if attempts < 3 {
			tr.connectErr = errors.New("not yet")
		}
		return tr
	}
	s := New(testConfig(), WithTransportFactory(factory))
	if err := s.ConnectWithRetry(context.Background(), 5); err != nil {
		t.Fatalf("connect with retry: %v", err)
	}
	if attempts != 3 || !s.Connected() {
		t.Fatalf("unexpected attempts=%d connected=%v", attempts, s.Connected())
	}

	s2 := New(testConfig(), WithTransport(&scriptTransport{connectErr: errors.New("down")}))
	if err := s2.ConnectWithRetry(context.Background(), 2); !errors.Is(err, KindNotFound) {
		t.Fatalf("expected KindNotFound after attempts, got %v", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	testlog.Start(t)
	s, _ := connectedScript(t)
	s.Disconnect()
	s.Disconnect()
	if s.Connected() {
		t.Fatalf("expected disconnected")
	}
	if !s.Reconnect(context.Background()) {
		t.Fatalf("expected reconnect to succeed")
	}
}

func TestEnsureConnectedReconnectsOnce(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	if err := s.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("ensure connected: %v", err)
	}
	s.Disconnect()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureConnected(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure connected: %v", err)
		}
	}
	tr.mu.Lock()
	connects, closes := tr.connects, tr.closes
	tr.mu.Unlock()
	if !s.Connected() || connects != 2 || closes != 1 {
		t.Fatalf("expected one reconnect: connected=%v connects=%d closes=%d", s.Connected(), connects, closes)
	}
}

func TestEnsureConnectedReportsNotFound(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	s.Disconnect()
	tr.mu.Lock()
	tr.connectErr = errInjected
	tr.mu.Unlock()
	if err := s.EnsureConnected(context.Background()); !errors.Is(err, KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestEndpointOnlyChangesWhileDisconnected(t *testing.T) {
	testlog.Start(t)
	s, _ := connectedScript(t)
	if err := s.SetHost("10.0.0.2"); !errors.Is(err, ErrConnected) {
		t.Fatalf("expected ErrConnected, got %v", err)
	}
	s.Disconnect()
	if err := s.SetHost("10.0.0.2"); err != nil {
		t.Fatalf("set host: %v", err)
	}
	if err := s.SetPort(7332); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if s.Host() != "10.0.0.2" || s.Port() != 7332 {
		t.Fatalf("unexpected endpoint %s:%d", s.Host(), s.Port())
	}
}

func TestOperationWhileDisconnectedIsFatal(t *testing.T) {
	testlog.Start(t)
	tr := &scriptTransport{}
	s := New(testConfig(), WithTransport(tr))
	_, err := s.VersionRequest(context.Background())
	if !IsFatal(err) || !errors.Is(err, KindCommandSend) || !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected fatal command send failure, got %v", err)
	}
	if tr.writes != 0 {
		t.Fatalf("no bytes may reach the transport")
	}
}

func TestShortReadIsNonFatal(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	tr.feed(le(0x82))
	tr.shortReadAt = 1
	_, err := s.VersionRequest(context.Background())
	if !errors.Is(err, KindReadData) || !errors.Is(err, ErrShortTransfer) {
		t.Fatalf("expected short read data failure, got %v", err)
	}
	if IsFatal(err) {
		t.Fatalf("short read must not be fatal")
	}
	if !s.Connected() {
		t.Fatalf("short read must not disconnect")
	}
}

func TestRawCommandAndSendFail(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	if err := s.RawCommand(context.Background(), protocol.CmdListCheats); err != nil {
		t.Fatalf("raw command: %v", err)
	}
	if err := s.SendFail(context.Background()); err != nil {
		t.Fatalf("send fail: %v", err)
	}
	if got := tr.written(); !bytes.Equal(got, []byte{0x60, 0xCC}) {
		t.Fatalf("unexpected wire bytes: % x", got)
	}
}

func TestWriteFaultDisconnects(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	tr.failWriteAt = 1
	err := s.RawCommand(context.Background(), protocol.CmdPatchWireless)
	if !IsFatal(err) || !errors.Is(err, KindCommandSend) || !errors.Is(err, errInjected) {
		t.Fatalf("expected fatal failure, got %v", err)
	}
	if s.Connected() {
		t.Fatalf("fault must disconnect")
	}
}

func TestLockWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	s, _ := connectedScript(t)
	if err := s.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.VersionRequest(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestErrorFormattingAndKind(t *testing.T) {
	testlog.Start(t)
	err := &Error{Kind: KindInvalidReply, Op: "upload", Msg: "final reply 0xCC"}
	if err.Error() != "gecko: upload: invalid reply: final reply 0xCC" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if KindOf(err) != KindInvalidReply || KindOf(errors.New("x")) != 0 {
		t.Fatalf("unexpected KindOf")
	}
	if errors.Is(err, KindReadData) {
		t.Fatalf("kind mismatch must not match")
	}
}

func TestDefaultRegistry(t *testing.T) {
	testlog.Start(t)
	defer SetDefault(nil)
	if Default() != nil {
		t.Fatalf("expected empty slot")
	}
	s := New(testConfig())
	SetDefault(s)
	if Default() != s {
		t.Fatalf("expected installed session")
	}
	if s.ID() == "" {
		t.Fatalf("expected session id")
	}
}
