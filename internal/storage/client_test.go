package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("12345"), 5, "k")
	if err != nil || string(data) != "12345" {
		t.Fatalf("expected full read at the limit, got %q %v", data, err)
	}

	if _, err := readLimited(strings.NewReader("123456"), 5, "k"); !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected object too large, got %v", err)
	}

	data, err = readLimited(strings.NewReader("unbounded"), 0, "k")
	if err != nil || string(data) != "unbounded" {
		t.Fatalf("expected unlimited read, got %q %v", data, err)
	}
}

func TestObjectMetaUserMetadata(t *testing.T) {
	meta := ObjectMeta{ContentType: "image/png", Width: 10, Height: 20, StepID: "thumb"}.userMetadata()
	if meta["width"] != "10" || meta["height"] != "20" || meta["step-id"] != "thumb" {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if len(ObjectMeta{}.userMetadata()) != 0 {
		t.Fatal("expected empty metadata for zero meta")
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected bucket error")
	}
}
