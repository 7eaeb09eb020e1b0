package rpcclient

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeServer answers server.version, then echoes back whatever the
// test wants for the next request's method, to exercise the Call
// round trip without depending on a real indexer.
func fakeServer(t *testing.T, ln net.Listener, nextResult string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for i := 0; i < 2; i++ {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		var resultJSON string
		if req.Method == "server.version" {
			resultJSON = `["test-server","1.4"]`
		} else {
			resultJSON = nextResult
		}
		resp := []byte(`{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"result":` + resultJSON + "}\n")
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func itoa(id uint32) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestDialHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go fakeServer(t, ln, `"ignored"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, ln.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if client.ServerName != "test-server" || client.ServerVersion != "1.4" {
		t.Fatalf("unexpected negotiated server info: %q %q", client.ServerName, client.ServerVersion)
	}
}

func TestCallRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go fakeServer(t, ln, `"deadbeef"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, ln.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	var result string
	if err := client.Call(ctx, "blockchain.transaction.get_output", []interface{}{"x"}, &result); err != nil {
		t.Fatal(err)
	}
	if result != "deadbeef" {
		t.Fatalf("expected deadbeef, got %q", result)
	}
}

func TestHeaderHash(t *testing.T) {
	// 80 zero bytes is a syntactically valid (if meaningless) header.
	headerHex := ""
	for i := 0; i < 160; i++ {
		headerHex += "0"
	}
	hash, err := HeaderHash(headerHex)
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 64 {
		t.Fatalf("expected a 32-byte hex hash, got %d chars", len(hash))
	}
	hash2, err := HeaderHash(headerHex)
	if err != nil {
		t.Fatal(err)
	}
	if hash != hash2 {
		t.Fatal("HeaderHash is not deterministic")
	}
}

func TestCallTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req request
		_ = json.Unmarshal(line, &req)
		resp := []byte(`{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"result":["srv","1.0"]}` + "\n")
		conn.Write(resp)
		// Never answer the next call, to force a timeout.
		time.Sleep(3 * time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, ln.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	var result string
	err = client.Call(shortCtx, "blockchain.block.header", []interface{}{1}, &result)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}
