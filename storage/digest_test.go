package storage

import "testing"

func TestComputeDigestDeterministic(t *testing.T) {
	a := NewMemDB()
	b := NewMemDB()
	_ = a.Put([]byte("x/1"), []byte("one"))
	_ = a.Put([]byte("x/2"), []byte("two"))
	_ = b.Put([]byte("x/2"), []byte("two"))
	_ = b.Put([]byte("x/1"), []byte("one"))

	da, err := ComputeDigest(a, nil)
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	db, err := ComputeDigest(b, nil)
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if da != db {
		t.Fatalf("insertion order changed digest: %s != %s", da, db)
	}

	_ = b.Put([]byte("x/3"), []byte(""))
	changed, err := ComputeDigest(b, nil)
	if err != nil {
		t.Fatalf("digest after put: %v", err)
	}
	if changed == da {
		t.Fatalf("expected digest to change after adding a key")
	}
}

func TestComputeDigestLengthPrefix(t *testing.T) {
	a := NewMemDB()
	b := NewMemDB()
	_ = a.Put([]byte("ab"), []byte("c"))
	_ = b.Put([]byte("a"), []byte("bc"))
	da, _ := ComputeDigest(a, nil)
	db, _ := ComputeDigest(b, nil)
	if da == db {
		t.Fatalf("expected distinct digests for shifted key/value boundary")
	}
}

func TestComputeDigestPrefix(t *testing.T) {
	mem := NewMemDB()
	_ = mem.Put([]byte("staking/total"), []byte{1})
	_ = mem.Put([]byte("token/supply"), []byte{2})
	full, _ := ComputeDigest(mem, nil)
	scoped, _ := ComputeDigest(mem, []byte("staking/"))
	if full == scoped {
		t.Fatalf("prefix should narrow the digest input")
	}
	if _, err := ComputeDigest(nil, nil); err == nil {
		t.Fatalf("expected error for nil database")
	}
}
