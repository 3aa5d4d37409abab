package crypto

import (
	"bytes"
	"testing"
)

func TestSHA256(t *testing.T) {
	a := SHA256([]byte("J'aime mieux forger mon ame que la meubler"))
	b := SHA256Array([]byte("J'aime mieux forger mon ame que la meubler"))

	if len(a) != 32 {
		t.Fatalf("hash should be 32 bytes, got %d", len(a))
	}
	if !bytes.Equal(a, b[:]) {
		t.Fatalf("SHA256 and SHA256Array should agree")
	}
	if bytes.Equal(a, SHA256([]byte("other"))) {
		t.Fatalf("different inputs should not collide")
	}
}
