package canonical

import (
	"strings"
	"testing"
)

func TestHashIsKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"alpha": 1, "beta": "x", "gamma": []int{1, 2}}
	b := map[string]interface{}{"gamma": []int{1, 2}, "beta": "x", "alpha": 1}

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash(a): %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash(b): %v", err)
	}
	if ha != hb {
		t.Fatalf("hash mismatch across key orders: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("hash length: want=64 got=%d", len(ha))
	}
	if strings.ToLower(ha) != ha {
		t.Fatalf("hash not lowercase hex: %s", ha)
	}
}

func TestHashMatchesAcrossStructAndMap(t *testing.T) {
	type body struct {
		Alpha int    `json:"alpha"`
		Beta  string `json:"beta"`
	}
	hs, err := Hash(body{Alpha: 3, Beta: "y"})
	if err != nil {
		t.Fatalf("Hash(struct): %v", err)
	}
	hm, err := Hash(map[string]interface{}{"beta": "y", "alpha": 3})
	if err != nil {
		t.Fatalf("Hash(map): %v", err)
	}
	if hs != hm {
		t.Fatalf("struct/map hash mismatch: %s vs %s", hs, hm)
	}
}

func TestHashChangesOnAnyFieldMutation(t *testing.T) {
	base := map[string]interface{}{"score": 0.725, "passed": true, "modules": []string{"phishing"}}
	h1, err := Hash(base)
	if err != nil {
		t.Fatalf("Hash(base): %v", err)
	}

	mutations := []map[string]interface{}{
		{"score": 0.726, "passed": true, "modules": []string{"phishing"}},
		{"score": 0.725, "passed": false, "modules": []string{"phishing"}},
		{"score": 0.725, "passed": true, "modules": []string{"phishing", "gdpr"}},
	}
	for i, m := range mutations {
		h2, err := Hash(m)
		if err != nil {
			t.Fatalf("Hash(mutation %d): %v", i, err)
		}
		if h2 == h1 {
			t.Fatalf("mutation %d did not change hash", i)
		}
	}
}

func TestHashReproducible(t *testing.T) {
	v := map[string]interface{}{"a": 1, "b": []interface{}{"x", 2.5}}
	h1, err := Hash(v)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	for i := 0; i < 10; i++ {
		h2, err := Hash(v)
		if err != nil {
			t.Fatalf("Hash repeat: %v", err)
		}
		if h1 != h2 {
			t.Fatalf("hash not reproducible: %s vs %s", h1, h2)
		}
	}
}
