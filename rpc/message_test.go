package rpc

import (
	"bytes"
	"io"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := &Envelope{
		Id:      "c9k2v3l4m5n6o7p8q9r0",
		Kind:    MsgKind_Request,
		Key:     "users.get",
		Payload: []byte{1, 2, 3, 4},
		Error:   "boom",
		Ecode:   -7,
		Eos:     true,
	}
	out := &Envelope{}
	if err := out.Unmarshal(in.Marshal()); err != nil {
		t.Fatal(err)
	}
	if out.Id != in.Id || out.Kind != in.Kind || out.Key != in.Key {
		t.Fatalf("got %+v", out)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload %v", out.Payload)
	}
	if out.Error != in.Error || out.Ecode != in.Ecode || !out.Eos {
		t.Fatalf("got %+v", out)
	}
}

func TestEnvelopeZeroValues(t *testing.T) {
	in := &Envelope{}
	data := in.Marshal()
	if len(data) != 0 {
		t.Fatalf("empty envelope should encode to nothing, got %d bytes", len(data))
	}
	out := &Envelope{}
	if err := out.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
}

type bufReader struct {
	data []byte
}

func (b *bufReader) Peek(n int) ([]byte, error) {
	if len(b.data) < n {
		return nil, io.ErrShortBuffer
	}
	return b.data[:n], nil
}

func (b *bufReader) Discard(n int) (int, error) {
	b.data = b.data[n:]
	return n, nil
}

func TestReadFrame(t *testing.T) {
	env := &Envelope{Id: "abc", Kind: MsgKind_Response, Payload: []byte("hello")}
	frame := env.Frame()
	r := &bufReader{data: append(append([]byte{}, frame[0]...), frame[1]...)}

	msg, err := readFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("expect a complete frame")
	}
	if msg.Id != "abc" || string(msg.Payload) != "hello" {
		t.Fatalf("got %+v", msg)
	}
	if len(r.data) != 0 {
		t.Fatalf("frame not consumed, %d bytes left", len(r.data))
	}

	// 不完整的数据不消费也不报错
	r = &bufReader{data: frame[0]}
	msg, err = readFrame(r)
	if err != nil || msg != nil {
		t.Fatalf("short frame should yield (nil, nil), got (%v, %v)", msg, err)
	}
}

// 长度头超过单帧上限是脏数据，要报错而不是等数据
func TestReadFrameOversized(t *testing.T) {
	lenBuf := make([]byte, msgLenSize)
	byteOrder.PutUint32(lenBuf, 0xFFFFFFFF)
	r := &bufReader{data: lenBuf}

	_, err := readFrame(r)
	if err == nil {
		t.Fatal("oversized frame length should be rejected")
	}
}
