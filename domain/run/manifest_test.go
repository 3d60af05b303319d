package run

import (
	"errors"
	"testing"

	"ceasim/domain/core"
)

func newManifest(seed int64, iterations int, codeVersion string) *Manifest {
	return NewManifest(
		core.RunID(core.NewID()), seed, iterations, 120, 12,
		core.RegistryHash("reg-hash"), core.ConfigHash("cfg-hash"), codeVersion,
	)
}

func TestManifest_FingerprintIgnoresRunIdentity(t *testing.T) {
	a := newManifest(42, 1000, "v1")
	b := newManifest(42, 1000, "v1")
	if !a.Fingerprint.Equals(b.Fingerprint) {
		t.Error("identical run inputs must produce identical fingerprints")
	}
	if a.RunID == b.RunID {
		t.Error("distinct manifests should carry distinct run IDs")
	}
}

func TestManifest_FingerprintSensitiveToEveryInput(t *testing.T) {
	base := newManifest(42, 1000, "v1")
	variants := []*Manifest{
		newManifest(43, 1000, "v1"),
		newManifest(42, 2000, "v1"),
		newManifest(42, 1000, "v2"),
	}
	for i, v := range variants {
		if base.Fingerprint.Equals(v.Fingerprint) {
			t.Errorf("variant %d should have changed the fingerprint", i)
		}
	}
}

func TestManifest_CompatibleWith(t *testing.T) {
	a := newManifest(42, 1000, "v1")
	b := newManifest(42, 1000, "v1")
	if err := a.CompatibleWith(b); err != nil {
		t.Errorf("matching fingerprints should be compatible: %v", err)
	}

	c := newManifest(43, 1000, "v1")
	err := a.CompatibleWith(c)
	if !errors.Is(err, core.ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
	if !core.IsResumeError(err) {
		t.Error("fingerprint mismatch should classify as a resume error")
	}

	if err := a.CompatibleWith(nil); err != nil {
		t.Errorf("nil checkpoint manifest is trivially compatible: %v", err)
	}
}

func TestManifest_IterationSeed(t *testing.T) {
	m := newManifest(42, 10, "v1")
	for i := 0; i < 10; i++ {
		if got := m.IterationSeed(i); got != 42+int64(i) {
			t.Errorf("IterationSeed(%d) = %d, want %d", i, got, 42+int64(i))
		}
	}
}

func TestManifest_Validate(t *testing.T) {
	m := newManifest(42, 10, "v1")
	if err := m.Validate(); err != nil {
		t.Fatalf("well-formed manifest rejected: %v", err)
	}

	missing := *m
	missing.RunID = ""
	if err := missing.Validate(); err == nil {
		t.Error("expected error for empty run ID")
	}

	zeroIter := *m
	zeroIter.Iterations = 0
	if err := zeroIter.Validate(); err == nil {
		t.Error("expected error for zero iterations")
	}
}
