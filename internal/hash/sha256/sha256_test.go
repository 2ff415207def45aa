package sha256

import (
	"testing"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
)

func TestHasherHashKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := h.Hash([]byte("hello world")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHasherHashDocumentDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	doc := datacite.New("NCT00000102")
	doc.Titles = []datacite.Title{{Text: "Brief X"}}

	body, sum, err := h.HashDocument(doc)
	if err != nil {
		t.Fatalf("HashDocument() error = %v", err)
	}
	if sum != h.Hash(body) {
		t.Fatalf("digest does not match body")
	}
	_, again, err := h.HashDocument(doc)
	if err != nil {
		t.Fatalf("HashDocument() repeat error = %v", err)
	}
	if again != sum {
		t.Fatalf("expected deterministic hash, got %s vs %s", sum, again)
	}

	doc.Titles[0].Text = "Brief Y"
	_, changed, err := h.HashDocument(doc)
	if err != nil {
		t.Fatalf("HashDocument() changed error = %v", err)
	}
	if changed == sum {
		t.Fatal("expected different digest for changed document")
	}
}
