package splice

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestSpliceCopiesBothDirections(t *testing.T) {
	aLocal, aRemote := net.Pipe()
	bLocal, bRemote := net.Pipe()

	done := make(chan Result, 1)
	go func() { done <- Splice(aLocal, bLocal, nil, nil) }()

	go func() {
		aRemote.Write([]byte("to-b"))
		buf := make([]byte, 4)
		io.ReadFull(aRemote, buf)
		aRemote.Close()
	}()
	go func() {
		buf := make([]byte, 4)
		io.ReadFull(bRemote, buf)
		bRemote.Write([]byte("to-a"))
		bRemote.Close()
	}()

	select {
	case res := <-done:
		if res.FirstClosed != AToB && res.FirstClosed != BToA {
			t.Fatalf("unexpected FirstClosed: %v", res.FirstClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Splice did not complete")
	}
}

func TestSpliceAppliesRewriteOnBToA(t *testing.T) {
	aLocal, aRemote := net.Pipe()
	bLocal, bRemote := net.Pipe()

	var rewriteCalled bool
	rewrite := func(dst io.Writer, src io.Reader) error {
		rewriteCalled = true
		_, err := io.Copy(dst, src)
		return err
	}

	done := make(chan Result, 1)
	go func() { done <- Splice(aLocal, bLocal, nil, rewrite) }()

	go func() {
		bRemote.Write([]byte("hi"))
		bRemote.Close()
	}()
	go func() {
		buf := make([]byte, 2)
		io.ReadFull(aRemote, buf)
		aRemote.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Splice did not complete")
	}
	if !rewriteCalled {
		t.Fatal("expected rewrite function to be invoked")
	}
}
