package secrets

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	box, err := NewBox(&Config{AgePublicKey: pub, AgePrivateKey: priv}, nil)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return box
}

func TestSealOpenRoundTrip(t *testing.T) {
	box := newTestBox(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("open inverts seal", prop.ForAll(
		func(secret string) bool {
			sealed, err := box.Seal(secret)
			if err != nil {
				return false
			}
			opened, err := box.Open(sealed)
			return err == nil && opened == secret
		},
		gen.AnyString(),
	))

	properties.Property("sealing is non-deterministic but stable under open", prop.ForAll(
		func(secret string) bool {
			a, err1 := box.Seal(secret)
			b, err2 := box.Seal(secret)
			if err1 != nil || err2 != nil {
				return false
			}
			oa, err1 := box.Open(a)
			ob, err2 := box.Open(b)
			return err1 == nil && err2 == nil && oa == secret && ob == secret
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestBoxKeyErrors(t *testing.T) {
	if _, err := NewBox(&Config{}, nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty config: err = %v, want ErrInvalidKey", err)
	}

	if _, err := NewBox(&Config{AgePublicKey: "not-a-key"}, nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("bad public key: err = %v, want ErrInvalidKey", err)
	}

	pub, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	sealOnly, err := NewBox(&Config{AgePublicKey: pub}, nil)
	if err != nil {
		t.Fatalf("NewBox(seal-only): %v", err)
	}
	sealed, err := sealOnly.Seal("credential")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := sealOnly.Open(sealed); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("open without identity: err = %v, want ErrNoIdentity", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	box := newTestBox(t)

	for _, input := range []string{"", "!!!not-base64!!!", "aGVsbG8="} {
		if _, err := box.Open(input); !errors.Is(err, ErrOpenFailed) {
			t.Errorf("Open(%q): err = %v, want ErrOpenFailed", input, err)
		}
	}
}
