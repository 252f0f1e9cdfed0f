package ptyadapter

import (
	"strings"
	"testing"
	"time"
)

func TestSpawnWriteEcho(t *testing.T) {
	a, err := Spawn(Opts{Shell: "/bin/sh", Cols: 80, Rows: 24, SessionID: "s1"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer a.Kill()

	got := make(chan []byte, 16)
	a.OnData(func(data []byte) { got <- data })

	a.Write([]byte("echo hi\n"))

	deadline := time.After(5 * time.Second)
	var all strings.Builder
	for {
		select {
		case chunk := <-got:
			all.Write(chunk)
			if strings.Contains(all.String(), "hi") {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for echo, got %q", all.String())
		}
	}
}

func TestKillClosesDone(t *testing.T) {
	a, err := Spawn(Opts{Shell: "/bin/sh"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	a.Kill()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Done() never closed after Kill")
	}
}

func TestSessionIdentityEnvVarSet(t *testing.T) {
	a, err := Spawn(Opts{Shell: "/bin/sh", SessionID: "abc-123"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer a.Kill()

	got := make(chan []byte, 16)
	a.OnData(func(data []byte) { got <- data })
	a.Write([]byte("echo $" + SessionIdentityEnvVar + "\n"))

	deadline := time.After(5 * time.Second)
	var all strings.Builder
	for {
		select {
		case chunk := <-got:
			all.Write(chunk)
			if strings.Contains(all.String(), "abc-123") {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for env var echo, got %q", all.String())
		}
	}
}
