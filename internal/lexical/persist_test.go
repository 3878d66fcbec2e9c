package lexical

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
)

func persistedIndex(t *testing.T) (*Index, string) {
	t.Helper()
	ix, err := Build([]Document{
		{ID: "moby-dick_1_0_aa11", Text: "Call me Ishmael. Some years ago I went to sea."},
		{ID: "moby-dick_1_1_bb22", Text: "The white whale swam before the ship."},
		{ID: "walden_2_0_cc33", Text: "I went to the woods to live deliberately."},
	}, DefaultParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "lexical.bqix")
	if err := ix.Persist(path); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	return ix, path
}

func TestPersistLoadRoundTrip(t *testing.T) {
	ix, path := persistedIndex(t)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DocCount() != ix.DocCount() {
		t.Fatalf("DocCount: got %d, want %d", loaded.DocCount(), ix.DocCount())
	}

	for _, query := range []string{"white whale", "went to sea", "woods", "submarine"} {
		want := ix.Search(query, 10)
		got := loaded.Search(query, 10)
		if len(got) != len(want) {
			t.Fatalf("query %q: got %d results, want %d", query, len(got), len(want))
		}
		for i := range want {
			if got[i].DocID != want[i].DocID {
				t.Errorf("query %q result %d: got %s, want %s", query, i, got[i].DocID, want[i].DocID)
			}
			if got[i].Score != want[i].Score {
				t.Errorf("query %q result %d: got score %v, want %v", query, i, got[i].Score, want[i].Score)
			}
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.bqix"))
	if !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Fatalf("got %v, want ErrIndexNotFound", err)
	}
}

func TestLoadCorruptBlob(t *testing.T) {
	_, path := persistedIndex(t)
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	cases := map[string]func([]byte) []byte{
		"flipped payload byte": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[headerSize+5] ^= 0xff
			return out
		},
		"flipped checksum byte": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[len(out)-1] ^= 0xff
			return out
		},
		"bad magic": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			binary.LittleEndian.PutUint32(out[0:4], 0xdeadbeef)
			return out
		},
		"unsupported version": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			binary.LittleEndian.PutUint32(out[4:8], formatVersion+1)
			return out
		},
		"truncated payload": func(b []byte) []byte {
			return append([]byte(nil), b[:headerSize+4]...)
		},
		"truncated header": func(b []byte) []byte {
			return append([]byte(nil), b[:headerSize-2]...)
		},
		"missing checksum": func(b []byte) []byte {
			return append([]byte(nil), b[:len(b)-footerSize]...)
		},
		"huge payload length": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			binary.LittleEndian.PutUint64(out[8:16], 1<<62)
			return out
		},
		"payload length exceeds file size": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			binary.LittleEndian.PutUint64(out[8:16], uint64(len(b)))
			return out
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bad := filepath.Join(t.TempDir(), "bad.bqix")
			if err := os.WriteFile(bad, mutate(blob), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(bad); !errors.Is(err, apperrors.ErrIndexCorrupt) {
				t.Fatalf("got %v, want ErrIndexCorrupt", err)
			}
		})
	}
}

func TestPersistLeavesNoTempFile(t *testing.T) {
	_, path := persistedIndex(t)
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file still present after persist: %v", err)
	}
}
