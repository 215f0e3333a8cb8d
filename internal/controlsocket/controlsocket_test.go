package controlsocket

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

func TestSerializeHibernate(t *testing.T) {
	req := Request{Cmd: CmdHibernate, Wake: "2026-03-08T09:00:00", Complete: false, ExitCode: 0, Summary: "done for now"}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"cmd":"hibernate"`) {
		t.Fatalf("missing cmd tag: %s", data)
	}
}

func TestSerializeNote(t *testing.T) {
	req := Request{Cmd: CmdNote, Text: "remember this"}
	data, _ := json.Marshal(req)
	if !strings.Contains(string(data), `"cmd":"note"`) || !strings.Contains(string(data), "remember this") {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestSerializeAlert(t *testing.T) {
	req := Request{Cmd: CmdAlert, Action: "email", Target: "ops@example.com", Message: "stuck"}
	data, _ := json.Marshal(req)
	if !strings.Contains(string(data), `"cmd":"alert"`) {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestSerializeReply(t *testing.T) {
	req := Request{Cmd: CmdReply, Text: "answering"}
	data, _ := json.Marshal(req)
	if !strings.Contains(string(data), `"cmd":"reply"`) {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestSerializeResponse(t *testing.T) {
	resp := Response{OK: true, Message: "ack"}
	data, _ := json.Marshal(resp)
	if !strings.Contains(string(data), `"ok":true`) {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestSocketPath(t *testing.T) {
	if SocketPath("/tmp/proj") != "/tmp/proj/.cryo/cryo.sock" {
		t.Fatalf("unexpected path: %s", SocketPath("/tmp/proj"))
	}
}

func TestSendRequestNoServer(t *testing.T) {
	dir := t.TempDir()
	_, err := Send(dir, Request{Cmd: CmdNote, Text: "hi"})
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestSocketServerRoundtrip(t *testing.T) {
	dir := t.TempDir()
	srv, err := Bind(dir)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		req, conn, err := srv.AcceptOne(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		if req == nil || req.Cmd != CmdNote || req.Text != "hello" {
			errCh <- nil
			return
		}
		errCh <- Reply(conn, Response{OK: true, Message: "got it"})
	}()

	resp, err := Send(dir, Request{Cmd: CmdNote, Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server side error: %v", err)
	}
	if !resp.OK || resp.Message != "got it" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAcceptEmptyLine(t *testing.T) {
	dir := t.TempDir()
	srv, err := Bind(dir)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close()

	go func() {
		conn, err := net.Dial("unix", SocketPath(dir))
		if err != nil {
			return
		}
		conn.Close()
	}()

	req, _, err := srv.AcceptOne(2 * time.Second)
	if err != nil {
		t.Fatalf("unexpected error on empty line: %v", err)
	}
	if req != nil {
		t.Fatalf("expected nil request for empty line, got %+v", req)
	}
}

func TestAcceptMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	srv, err := Bind(dir)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close()

	go func() {
		conn, err := net.Dial("unix", SocketPath(dir))
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("not json\n"))
	}()

	req, conn, err := srv.AcceptOne(2 * time.Second)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if req != nil {
		t.Fatalf("expected nil request, got %+v", req)
	}
	if conn != nil {
		conn.Close()
	}
}

func TestAcceptUnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	srv, err := Bind(dir)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer srv.Close()

	go func() {
		conn, err := net.Dial("unix", SocketPath(dir))
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(`{"cmd":"note","text":"hi","unexpected_field":123}` + "\n"))
	}()

	req, conn, err := srv.AcceptOne(2 * time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil || req.Cmd != CmdNote || req.Text != "hi" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if conn != nil {
		conn.Close()
	}
}
