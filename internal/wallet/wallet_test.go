package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"github.com/tyler-smith/go-bip39"
)

const (
	testMnemonic  = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testMnemonic2 = "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"

	// first 32 bytes of the BIP-39 seed of testMnemonic with an empty passphrase
	testSeedPrefix = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1"

	keyOneHex     = "0000000000000000000000000000000000000000000000000000000000000001"
	keyOnePubKey  = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	keyOneAddress = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
	keyOneWIF     = "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	return bip39.NewSeed(testMnemonic, "")
}

func testSeed2(t *testing.T) []byte {
	t.Helper()
	return bip39.NewSeed(testMnemonic2, "")
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestKeyMaterialFromPrivate_KnownVector(t *testing.T) {
	km, err := KeyMaterialFromPrivate(mustHex(t, keyOneHex), models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if km.PublicKey != keyOnePubKey {
		t.Errorf("PublicKey = %s, want %s", km.PublicKey, keyOnePubKey)
	}
	if km.Address != keyOneAddress {
		t.Errorf("Address = %s, want %s", km.Address, keyOneAddress)
	}
}

func TestKeyMaterialFromPrivate_Testnet(t *testing.T) {
	km, err := KeyMaterialFromPrivate(mustHex(t, keyOneHex), models.NetworkTest)
	if err != nil {
		t.Fatal(err)
	}
	if c := km.Address[0]; c != 'm' && c != 'n' {
		t.Errorf("testnet P2PKH should start with m or n, got %s", km.Address)
	}
}

func TestKeyMaterialFromPrivate_InvalidScalar(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"zero", make([]byte, 32)},
		{"above order", bytes.Repeat([]byte{0xff}, 32)},
		{"short", []byte{0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyMaterialFromPrivate(tt.key, models.NetworkMain)
			if !errors.Is(err, models.ErrInvalidKey) {
				t.Errorf("err = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestDeriveKeyMaterial_MnemonicSeedPrefix(t *testing.T) {
	km, err := DeriveKeyMaterial(MnemonicSeed{Phrase: testMnemonic}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(km.PrivateKey); got != testSeedPrefix {
		t.Errorf("private key = %s, want %s", got, testSeedPrefix)
	}

	want, err := KeyMaterialFromPrivate(mustHex(t, testSeedPrefix), models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if km.Address != want.Address || km.PublicKey != want.PublicKey {
		t.Errorf("mnemonic key material differs from direct derivation")
	}
}

func TestDeriveKeyMaterial_Deterministic(t *testing.T) {
	for _, scheme := range []Scheme{SchemeSeedPrefix, SchemeBIP44} {
		t.Run(string(scheme), func(t *testing.T) {
			src := MnemonicSeed{Phrase: testMnemonic, Scheme: scheme}
			a, err := DeriveKeyMaterial(src, models.NetworkMain)
			if err != nil {
				t.Fatal(err)
			}
			b, err := DeriveKeyMaterial(src, models.NetworkMain)
			if err != nil {
				t.Fatal(err)
			}
			if a.Address != b.Address || a.PublicKey != b.PublicKey {
				t.Error("same mnemonic produced different key material")
			}
		})
	}
}

func TestDeriveKeyMaterial_SchemesDiffer(t *testing.T) {
	prefix, err := DeriveKeyMaterial(MnemonicSeed{Phrase: testMnemonic}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	hd, err := DeriveKeyMaterial(MnemonicSeed{Phrase: testMnemonic, Scheme: SchemeBIP44}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if prefix.Address == hd.Address {
		t.Error("seed-prefix and bip44 schemes produced the same address")
	}
}

func TestDeriveKeyMaterial_NormalizesPhrase(t *testing.T) {
	messy := "  ABANDON abandon abandon abandon abandon abandon\tabandon abandon abandon abandon abandon   about "
	a, err := DeriveKeyMaterial(MnemonicSeed{Phrase: messy}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveKeyMaterial(MnemonicSeed{Phrase: testMnemonic}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if a.Address != b.Address {
		t.Error("whitespace/case variants should derive the same key")
	}
}

func TestDeriveKeyMaterial_InvalidMnemonic(t *testing.T) {
	tests := []string{
		"",
		"abandon abandon abandon",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		"notaword abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	}
	for _, phrase := range tests {
		_, err := DeriveKeyMaterial(MnemonicSeed{Phrase: phrase}, models.NetworkMain)
		if !errors.Is(err, models.ErrInvalidMnemonic) {
			t.Errorf("phrase %q: err = %v, want ErrInvalidMnemonic", phrase, err)
		}
	}
}

// Checksum-valid BIP-39 phrases of other lengths are still rejected.
func TestDeriveKeyMaterial_OnlyTwelveOrTwentyFourWords(t *testing.T) {
	for _, bits := range []int{160, 192, 224} {
		entropy, err := bip39.NewEntropy(bits)
		if err != nil {
			t.Fatal(err)
		}
		phrase, err := bip39.NewMnemonic(entropy)
		if err != nil {
			t.Fatal(err)
		}
		if !bip39.IsMnemonicValid(phrase) {
			t.Fatalf("generated phrase %q is not valid BIP-39", phrase)
		}
		n := len(strings.Fields(phrase))
		if _, err := DeriveKeyMaterial(MnemonicSeed{Phrase: phrase}, models.NetworkMain); !errors.Is(err, models.ErrInvalidMnemonic) {
			t.Errorf("%d words: err = %v, want ErrInvalidMnemonic", n, err)
		}
		if _, err := Seed(phrase); !errors.Is(err, models.ErrInvalidMnemonic) {
			t.Errorf("%d words: Seed err = %v, want ErrInvalidMnemonic", n, err)
		}
	}
}

func TestDeriveKeyMaterial_RandomRedrawsInvalid(t *testing.T) {
	var stream []byte
	stream = append(stream, make([]byte, 32)...)              // zero
	stream = append(stream, bytes.Repeat([]byte{0xff}, 32)...) // >= n
	stream = append(stream, bytes.Repeat([]byte{0x01}, 32)...)

	km, err := DeriveKeyMaterial(RandomSeed{Reader: bytes.NewReader(stream)}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(km.PrivateKey, bytes.Repeat([]byte{0x01}, 32)) {
		t.Errorf("expected third draw to be used, got %x", km.PrivateKey)
	}
}

func TestDeriveKeyMaterial_RandomShortReader(t *testing.T) {
	_, err := DeriveKeyMaterial(RandomSeed{Reader: bytes.NewReader([]byte{1, 2, 3})}, models.NetworkMain)
	if err == nil {
		t.Fatal("expected error from short entropy source")
	}
}

func TestDeriveKeyMaterial_RandomUnique(t *testing.T) {
	a, err := DeriveKeyMaterial(RandomSeed{}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveKeyMaterial(RandomSeed{}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if a.Address == b.Address {
		t.Error("two random keys produced the same address")
	}
}

func TestKeyMaterial_Zero(t *testing.T) {
	km, err := KeyMaterialFromPrivate(mustHex(t, keyOneHex), models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	priv := km.PrivateKey
	km.Zero()
	if km.PrivateKey != nil {
		t.Error("PrivateKey should be nil after Zero")
	}
	for _, b := range priv {
		if b != 0 {
			t.Fatal("backing array was not wiped")
		}
	}
}

func TestGenerateMnemonic(t *testing.T) {
	for _, words := range []int{12, 24} {
		m, err := GenerateMnemonic(words)
		if err != nil {
			t.Fatal(err)
		}
		if n := len(strings.Fields(m)); n != words {
			t.Errorf("got %d words, want %d", n, words)
		}
		if err := ValidateMnemonic(m); err != nil {
			t.Errorf("generated mnemonic failed validation: %v", err)
		}
	}

	if _, err := GenerateMnemonic(15); err == nil {
		t.Error("expected error for 15 words")
	}
}

func TestValidateMnemonic(t *testing.T) {
	if err := ValidateMnemonic(testMnemonic); err != nil {
		t.Errorf("valid mnemonic rejected: %v", err)
	}
	if err := ValidateMnemonic(testMnemonic2); err != nil {
		t.Errorf("valid mnemonic rejected: %v", err)
	}
	// valid words, bad checksum
	bad := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon"
	if err := ValidateMnemonic(bad); !errors.Is(err, models.ErrInvalidMnemonic) {
		t.Errorf("err = %v, want ErrInvalidMnemonic", err)
	}
}

func TestWIF_KnownVector(t *testing.T) {
	wif, err := EncodeWIF(mustHex(t, keyOneHex), models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if wif != keyOneWIF {
		t.Errorf("WIF = %s, want %s", wif, keyOneWIF)
	}

	priv, err := DecodeWIF(wif, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if hex.EncodeToString(priv) != keyOneHex {
		t.Errorf("decoded = %x, want %s", priv, keyOneHex)
	}
}

func TestDecodeWIF_WrongNetwork(t *testing.T) {
	if _, err := DecodeWIF(keyOneWIF, models.NetworkTest); !errors.Is(err, models.ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", keyOneHex, false},
		{"wif", keyOneWIF, false},
		{"padded wif", "  " + keyOneWIF + "\n", false},
		{"zero hex", strings.Repeat("0", 64), true},
		{"garbage", "not-a-key", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priv, err := ParsePrivateKey(tt.in, models.NetworkMain)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidKey) {
					t.Errorf("err = %v, want ErrInvalidKey", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if hex.EncodeToString(priv) != keyOneHex {
				t.Errorf("got %x", priv)
			}
		})
	}
}

func TestParseRecipient(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"address", keyOneAddress, keyOneAddress, false},
		{"public key", keyOnePubKey, keyOneAddress, false},
		{"empty", "", "", true},
		{"garbage", "hello", "", true},
		{"testnet address on mainnet", "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseRecipient(tt.in, models.NetworkMain)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidAddress) {
					t.Errorf("err = %v, want ErrInvalidAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := addr.EncodeAddress(); got != tt.want {
				t.Errorf("address = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHDGenerator_Deterministic(t *testing.T) {
	gen := NewHDGenerator(models.NetworkMain)
	seed := testSeed(t)
	addr1, err := gen.GenerateFromSeed(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	addr2, err := gen.GenerateFromSeed(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	if addr1.Address != addr2.Address {
		t.Errorf("same seed+index produced different addresses: %s vs %s", addr1.Address, addr2.Address)
	}
	if addr1.DerivationPath != "m/44'/236'/0'/0/0" {
		t.Errorf("DerivationPath = %s", addr1.DerivationPath)
	}
	if gen.Network() != models.NetworkMain {
		t.Errorf("Network() = %v", gen.Network())
	}
}

func TestHDGenerator_DifferentSeedsAndIndices(t *testing.T) {
	gen := NewHDGenerator(models.NetworkMain)
	a, err := gen.GenerateFromSeed(testSeed(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := gen.GenerateFromSeed(testSeed2(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	c, err := gen.GenerateFromSeed(testSeed(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.Address == b.Address {
		t.Error("different seeds produced same address")
	}
	if a.Address == c.Address {
		t.Error("different indices produced same address")
	}
}

func TestHDGenerator_MatchesBIP44Scheme(t *testing.T) {
	gen := NewHDGenerator(models.NetworkMain)
	addr, err := gen.GenerateFromSeed(testSeed(t), 3)
	if err != nil {
		t.Fatal(err)
	}
	km, err := DeriveKeyMaterial(MnemonicSeed{Phrase: testMnemonic, Scheme: SchemeBIP44, Index: 3}, models.NetworkMain)
	if err != nil {
		t.Fatal(err)
	}
	if addr.Address != km.Address {
		t.Errorf("generator %s != key material %s", addr.Address, km.Address)
	}
}

func TestAddresses(t *testing.T) {
	list, err := Addresses(NewHDGenerator(models.NetworkMain), testSeed(t), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 {
		t.Fatalf("got %d addresses, want 4", len(list))
	}
	seen := make(map[string]bool)
	for i, a := range list {
		if seen[a.Address] {
			t.Errorf("duplicate address at %d", i)
		}
		seen[a.Address] = true
	}
}

func TestAddressQR(t *testing.T) {
	png, err := AddressQR(keyOneAddress, 128)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}
