package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestUDPEcho(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	go func() {
		buf := make([]byte, 1024)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		server.WriteToUDP(buf[:n], addr)
	}()

	tr := NewUDP()
	ctx := context.Background()
	if err := tr.Connect(ctx, server.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	if !tr.IsConnected() {
		t.Error("expected IsConnected after Connect")
	}
	if tr.LocalAddr() == nil {
		t.Error("expected a bound local address")
	}

	payload := []byte{0x06, 0x10, 0x02, 0x03, 0x00, 0x0E}
	if err := tr.Send(ctx, payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got, err := tr.Receive(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("echo = % X, want % X", got, payload)
	}
}

func TestUDPRequest(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	go func() {
		buf := make([]byte, 1024)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		server.WriteToUDP(buf[:n], addr)
	}()

	tr := NewUDP()
	ctx := context.Background()
	if err := tr.Connect(ctx, server.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	payload := []byte{0x06, 0x10, 0x02, 0x01, 0x00, 0x0E}
	got, err := tr.Request(ctx, payload, 2*time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("reply = % X, want % X", got, payload)
	}
}

func TestUDPConnectTwice(t *testing.T) {
	tr := NewUDP()
	ctx := context.Background()
	if err := tr.Connect(ctx, "127.0.0.1:3671"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.Connect(ctx, "127.0.0.1:3671"); err == nil {
		t.Error("expected second Connect to fail")
	}
}

func TestUDPNotConnected(t *testing.T) {
	tr := NewUDP()
	if err := tr.Send(context.Background(), []byte{0x00}); err == nil {
		t.Error("expected Send on closed transport to fail")
	}
	if _, err := tr.Receive(context.Background(), time.Second); err == nil {
		t.Error("expected Receive on closed transport to fail")
	}
	if err := tr.Disconnect(); err != nil {
		t.Errorf("Disconnect on closed transport: %v", err)
	}
}

func TestUDPReceiveTimeout(t *testing.T) {
	tr := NewUDP()
	ctx := context.Background()
	if err := tr.Connect(ctx, "127.0.0.1:3671"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	start := time.Now()
	_, err := tr.Receive(ctx, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestTCPEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	tr := NewTCP()
	ctx := context.Background()
	if err := tr.Connect(ctx, ln.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	payload := []byte("knock knock")
	if err := tr.Send(ctx, payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got, err := tr.Receive(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("echo = %q, want %q", got, payload)
	}
}

func TestNewByKind(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		wantErr bool
	}{
		{"udp", KindUDP, false},
		{"tcp", KindTCP, false},
		{"bogus", Kind("carrier pigeon"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if !tt.wantErr && tr == nil {
				t.Error("expected a transport")
			}
		})
	}
}
