package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestServeShutsDownAndRunsHooks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	srv := New(0, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var order []string
	srv.OnShutdown(func(context.Context) error {
		order = append(order, "dispatcher")
		return nil
	})
	hookErr := errors.New("close failed")
	srv.OnShutdown(func(context.Context) error {
		order = append(order, "cache")
		return hookErr
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("expected pong got %q", body)
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, hookErr) {
			t.Fatalf("expected hook error to be reported, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if len(order) != 2 || order[0] != "dispatcher" || order[1] != "cache" {
		t.Fatalf("expected hooks in registration order, got %v", order)
	}
}
