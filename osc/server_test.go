package osc

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestServerMessageReceiving(t *testing.T) {
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	client, err := Dial(c.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	msg := NewMessage("/address/test")
	msg.Append(int32(1122))
	msg.Append(int32(3344))
	for i := 0; i < 3; i++ {
		if err := client.Send(msg); err != nil {
			t.Fatal(err)
		}
	}

	server := &Server{ReadTimeout: 5 * time.Second}
	for i := 0; i < 3; i++ {
		packet, _, err := server.ReceivePacket(c)
		if err != nil {
			t.Fatalf("Server error: %v", err)
		}
		got := packet.(*Message)
		if len(got.Arguments) != 2 {
			t.Fatalf("Argument length should be 2 and is: %d", len(got.Arguments))
		}
		if got.Arguments[0].(int32) != 1122 || got.Arguments[1].(int32) != 3344 {
			t.Errorf("Arguments = %v, want [1122 3344]", got.Arguments)
		}
	}
}

func TestReadTimeout(t *testing.T) {
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	server := &Server{ReadTimeout: 100 * time.Millisecond}
	_, _, err = server.ReceivePacket(c)
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestServer_ServeSequentialAndMalformed(t *testing.T) {
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 3)
	server := &Server{
		Handler: HandlerFunc(func(p Packet, _ net.Addr) {
			if m, ok := p.(*Message); ok {
				mu.Lock()
				got = append(got, m.Address)
				mu.Unlock()
				if m.Address == "/panic" {
					panic("boom")
				}
			}
			received <- struct{}{}
		}),
		ReadTimeout: 50 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve(c) }()

	client, err := Dial(c.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	client.Send(NewMessage("/first"))
	if _, err := client.conn.WriteTo([]byte("junk"), c.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	client.Send(NewMessage("/panic"))
	client.Send(NewMessage("/second"))

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for packets")
		}
	}

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after close")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "/first" || got[1] != "/panic" || got[2] != "/second" {
		t.Errorf("handled %v, want [/first /panic /second]", got)
	}
}
