package process

import (
	"io"
	"testing"
	"time"
)

func TestFeeder_DeliversInOrderThenCloses(t *testing.T) {
	pr, pw := io.Pipe()
	f := NewFeeder([]string{"Product", "name", "yes\n"})

	if f.State() != AwaitingReadiness {
		t.Fatalf("State() = %s, want %s", f.State(), AwaitingReadiness)
	}

	f.Start(pw, nil)

	data, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "Product\nname\nyes\n" {
		t.Errorf("stdin = %q, want each line once, in order, newline-terminated", data)
	}

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feeder did not finish")
	}

	if f.State() != Closed {
		t.Errorf("State() = %s, want %s", f.State(), Closed)
	}
	if f.Sent() != 3 {
		t.Errorf("Sent() = %d, want 3", f.Sent())
	}
	if f.Err() != nil {
		t.Errorf("Err() = %v, want nil", f.Err())
	}
}

func TestFeeder_WaitsForDrain(t *testing.T) {
	pr, pw := io.Pipe()
	f := NewFeeder([]string{"one", "two"})
	f.Start(pw, nil)

	buf := make([]byte, 16)
	n, _ := pr.Read(buf)
	if string(buf[:n]) != "one\n" {
		t.Fatalf("first read = %q, want %q", buf[:n], "one\n")
	}

	// The second line is not accepted until someone reads it
	time.Sleep(50 * time.Millisecond)
	if f.State() != Writing {
		t.Errorf("State() = %s, want %s while a write is pending", f.State(), Writing)
	}

	n, _ = pr.Read(buf)
	if string(buf[:n]) != "two\n" {
		t.Errorf("second read = %q, want %q", buf[:n], "two\n")
	}
	if _, err := pr.Read(buf); err != io.EOF {
		t.Errorf("read after last line = %v, want EOF", err)
	}
}

func TestFeeder_NoInputsClosesImmediately(t *testing.T) {
	pr, pw := io.Pipe()
	f := NewFeeder(nil)
	f.Start(pw, nil)

	if _, err := pr.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read() = %v, want EOF", err)
	}
	<-f.Done()
	if f.State() != Closed {
		t.Errorf("State() = %s, want %s", f.State(), Closed)
	}
}

func TestFeeder_ReaderGone(t *testing.T) {
	pr, pw := io.Pipe()
	pr.Close()

	f := NewFeeder([]string{"a", "b"})
	f.Start(pw, nil)
	<-f.Done()

	if f.Err() == nil {
		t.Error("Err() should report the failed write")
	}
	if f.Sent() != 0 {
		t.Errorf("Sent() = %d, want 0", f.Sent())
	}
}

func TestFeeder_CustomClose(t *testing.T) {
	pr, pw := io.Pipe()
	closed := make(chan struct{})
	f := NewFeeder([]string{"x"})
	f.Start(pw, func() error {
		close(closed)
		return pw.Close()
	})

	io.ReadAll(pr)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("custom close was not called")
	}
}
