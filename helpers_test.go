package buildio

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// reply is one canned HTTP response written byte for byte by serveHTTP.
// content is called with increasing rounds until it reports false.
type reply struct {
	status  string
	headers string
	content func(round int) (string, bool)
}

func once(body string) func(int) (string, bool) {
	return func(round int) (string, bool) {
		return body, round == 0
	}
}

// serveHTTP answers each accepted connection with the next reply, cycling
// through replies, and returns the server's base URL. Every response closes
// its connection, so each request takes the next reply in order.
func serveHTTP(t *testing.T, replies ...reply) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for at := 0; ; at++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			r := replies[at%len(replies)]
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveReply(conn, r)
			}()
		}
	}()

	return "http://" + ln.Addr().String()
}

func serveReply(conn net.Conn, r reply) {
	defer conn.Close()

	// Consume the request head so the client is not reset mid-response
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "HTTP/1.1 %s\r\n%sconnection: close\r\n\r\n", r.status, r.headers)
	if err := w.Flush(); err != nil {
		return
	}
	for round := 0; ; round++ {
		body, ok := r.content(round)
		if !ok {
			break
		}
		if _, err := io.WriteString(conn, body); err != nil {
			return
		}
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_, _ = io.Copy(io.Discard, br)
}
