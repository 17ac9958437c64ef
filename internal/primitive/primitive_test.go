package primitive

import "testing"

func TestEncryptDeterministic(t *testing.T) {
	p := New(High)
	key := make([]byte, p.KeySize())
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := make([]byte, p.BlockSize()*3)
	for i := range plaintext {
		plaintext[i] = byte(i * 7)
	}

	c1, err := p.Encrypt(plaintext, key)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.Encrypt(plaintext, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(c1) != len(plaintext) {
		t.Fatalf("ciphertext length %d != plaintext length %d", len(c1), len(plaintext))
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("encrypt is not deterministic at byte %d", i)
		}
	}
}

func TestEncryptRejectsUnaligned(t *testing.T) {
	p := New(Low)
	key := make([]byte, p.KeySize())
	if _, err := p.Encrypt(make([]byte, p.BlockSize()+1), key); err == nil {
		t.Fatal("expected error for unaligned plaintext")
	}
}

func TestHashSizes(t *testing.T) {
	cases := []struct {
		sec  Security
		want int
	}{
		{High, 32},
		{SHA1Mode, 20},
		{Low, 16},
	}
	for _, c := range cases {
		p := New(c.sec)
		if got := len(p.Hash([]byte("hello"))); got != c.want {
			t.Errorf("sec=%v: hash size = %d, want %d", c.sec, got, c.want)
		}
		if got := p.HashSize(); got != c.want {
			t.Errorf("sec=%v: HashSize() = %d, want %d", c.sec, got, c.want)
		}
	}
}
