package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressTextRoundTrip(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)

	compressed, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algorithm != CompressionGzip {
		t.Errorf("large text should use gzip, got %s", algorithm)
	}
	if len(compressed) >= len(text) {
		t.Errorf("compression did not shrink repetitive text: %d >= %d", len(compressed), len(text))
	}

	restored, err := DecompressText(compressed, algorithm)
	if err != nil {
		t.Fatalf("DecompressText failed: %v", err)
	}
	if restored != text {
		t.Error("round trip altered the text")
	}
}

func TestSmallTextNotCompressed(t *testing.T) {
	text := "short chunk"

	compressed, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algorithm != CompressionNone {
		t.Errorf("small text should skip compression, got %s", algorithm)
	}
	if string(compressed) != text {
		t.Errorf("uncompressed data altered: %q", compressed)
	}
}

func TestCompressDataAlgorithms(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 200)
	for _, alg := range []CompressionAlgorithm{CompressionGzip, CompressionZlib} {
		compressed, err := CompressData(data, alg)
		if err != nil {
			t.Fatalf("%s compress failed: %v", alg, err)
		}
		restored, err := DecompressData(compressed, alg)
		if err != nil {
			t.Fatalf("%s decompress failed: %v", alg, err)
		}
		if !bytes.Equal(restored, data) {
			t.Errorf("%s round trip altered data", alg)
		}
	}
}

func TestCompressEmptyData(t *testing.T) {
	out, err := CompressData(nil, CompressionGzip)
	if err != nil {
		t.Fatalf("CompressData failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("empty input should stay empty, got %d bytes", len(out))
	}
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	if _, err := CompressData([]byte("data"), "snappy"); err == nil {
		t.Error("expected error for unknown compression algorithm")
	}
	if _, err := DecompressData([]byte("data"), "snappy"); err == nil {
		t.Error("expected error for unknown decompression algorithm")
	}
}
