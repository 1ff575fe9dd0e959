package resp

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestDecodeRequestArray(t *testing.T) {
	raw := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	dec := NewDecoder(strings.NewReader(raw))
	req, err := dec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	want := []string{"SET", "foo", "bar"}
	if len(req.Args) != len(want) {
		t.Fatalf("got %d args, want %d", len(req.Args), len(want))
	}
	for i, w := range want {
		if string(req.Args[i]) != w {
			t.Errorf("arg[%d] = %q, want %q", i, req.Args[i], w)
		}
	}
}

func TestDecodeFragmentedAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	dec := NewDecoder(pr)
	done := make(chan struct{})
	var req *Request
	var readErr error
	go func() {
		req, readErr = dec.ReadRequest()
		close(done)
	}()

	parts := []string{"*2\r\n$4\r\n", "PING\r\n$2\r\n", "hi\r\n"}
	for _, p := range parts {
		pw.Write([]byte(p))
	}
	pw.Close()
	<-done
	if readErr != nil {
		t.Fatalf("ReadRequest: %v", readErr)
	}
	if string(req.Args[0]) != "PING" || string(req.Args[1]) != "hi" {
		t.Fatalf("got %v", req.Args)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.SimpleString("OK")
	enc.Error("ERR bad")
	enc.Integer(42)
	enc.BulkString([]byte("hi"))
	enc.NullBulk()
	enc.ArrayHeader(0)
	enc.Flush()

	want := "+OK\r\n-ERR bad\r\n:42\r\n$2\r\nhi\r\n$-1\r\n*0\r\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestReadReplyTypes(t *testing.T) {
	dec := NewDecoder(strings.NewReader("+PONG\r\n:7\r\n$-1\r\n*-1\r\n"))
	v, err := dec.ReadReply()
	if err != nil || v.Type != TypeSimpleString || v.Str != "PONG" {
		t.Fatalf("simple string: %+v %v", v, err)
	}
	v, err = dec.ReadReply()
	if err != nil || v.Type != TypeInteger || v.Int != 7 {
		t.Fatalf("integer: %+v %v", v, err)
	}
	v, err = dec.ReadReply()
	if err != nil || v.Type != TypeNull {
		t.Fatalf("null bulk: %+v %v", v, err)
	}
	v, err = dec.ReadReply()
	if err != nil || v.Type != TypeNullArray {
		t.Fatalf("null array: %+v %v", v, err)
	}
}
