package frame

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestReaderPrimitives(t *testing.T) {
	id := uuid.New()

	w := &BodyWriter{}
	w.buf = append(w.buf, 0x7f)
	w.WriteShort(515)
	w.WriteInt(-42)
	w.buf = append(w.buf, 0, 0, 0, 0, 0, 0, 0x30, 0x39) // long 12345
	w.WriteString("hello")
	w.WriteLongString("world")
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteBytes(nil)
	w.WriteShortBytes([]byte{9})
	w.buf = append(w.buf, id[:]...)
	w.WriteConsistency(EachQuorum)
	w.WriteStringList([]string{"a", "b"})

	fr := NewFrameReader(bytes.NewReader(w.buf), len(w.buf))

	if b, err := fr.ReadByte(); err != nil || b != 0x7f {
		t.Fatalf("ReadByte: got %v, %v", b, err)
	}
	if v, err := fr.ReadShort(); err != nil || v != 515 {
		t.Fatalf("ReadShort: got %v, %v", v, err)
	}
	if v, err := fr.ReadInt(); err != nil || v != -42 {
		t.Fatalf("ReadInt: got %v, %v", v, err)
	}
	if v, err := fr.ReadLong(); err != nil || v != 12345 {
		t.Fatalf("ReadLong: got %v, %v", v, err)
	}
	if s, err := fr.ReadString(); err != nil || s != "hello" {
		t.Fatalf("ReadString: got %q, %v", s, err)
	}
	if s, err := fr.ReadLongString(); err != nil || s != "world" {
		t.Fatalf("ReadLongString: got %q, %v", s, err)
	}
	if p, err := fr.ReadBytes(); err != nil || !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Fatalf("ReadBytes: got %v, %v", p, err)
	}
	if p, err := fr.ReadBytes(); err != nil || p != nil {
		t.Fatalf("ReadBytes nil: got %v, %v", p, err)
	}
	if p, err := fr.ReadShortBytes(); err != nil || !bytes.Equal(p, []byte{9}) {
		t.Fatalf("ReadShortBytes: got %v, %v", p, err)
	}
	if u, err := fr.ReadUUID(); err != nil || u != id {
		t.Fatalf("ReadUUID: got %v, %v", u, err)
	}
	if c, err := fr.ReadConsistency(); err != nil || c != EachQuorum {
		t.Fatalf("ReadConsistency: got %v, %v", c, err)
	}
	if l, err := fr.ReadStringList(); err != nil || len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("ReadStringList: got %v, %v", l, err)
	}

	if fr.Remaining() != 0 {
		t.Errorf("remaining after full read: expected 0, got %d", fr.Remaining())
	}
}

func TestReaderBounds(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{0, 1}), 2)
	if _, err := fr.ReadInt(); err == nil {
		t.Fatal("expected error reading past the bounded window")
	}
}

func TestReaderClosed(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{1, 2, 3, 4}), 4)
	fr.Close()
	if _, err := fr.ReadInt(); err != ErrReaderClosed {
		t.Fatalf("expected ErrReaderClosed, got %v", err)
	}
}

func TestReaderDoneSignal(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{1, 2, 3, 4}), 4)

	select {
	case <-fr.Done():
		t.Fatal("Done signalled before the body was drained")
	default:
	}

	if err := fr.Skip(2); err != nil {
		t.Fatalf("failed to skip: %v", err)
	}
	select {
	case <-fr.Done():
		t.Fatal("Done signalled with bytes remaining")
	default:
	}

	if err := fr.Drain(); err != nil {
		t.Fatalf("failed to drain: %v", err)
	}
	select {
	case <-fr.Done():
	default:
		t.Fatal("Done not signalled after drain")
	}
}

func TestReaderEmptyBodyDone(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(nil), 0)
	select {
	case <-fr.Done():
	default:
		t.Fatal("Done not signalled for empty body")
	}
}

func TestReaderDecompress(t *testing.T) {
	plain := &BodyWriter{}
	plain.WriteString("compressed payload")

	compressed, err := SnappyCompressor{}.Encode(plain.buf)
	if err != nil {
		t.Fatalf("failed to compress: %v", err)
	}

	fr := NewFrameReader(bytes.NewReader(compressed), len(compressed))
	if err := fr.Decompress(SnappyCompressor{}); err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	if fr.Remaining() != len(plain.buf) {
		t.Errorf("remaining after decompress: expected %d, got %d", len(plain.buf), fr.Remaining())
	}
	if s, err := fr.ReadString(); err != nil || s != "compressed payload" {
		t.Fatalf("ReadString after decompress: got %q, %v", s, err)
	}
}
