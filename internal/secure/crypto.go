package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/streams/pkg/graph"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// CiphertextPrefix marks an encrypted field value.
const CiphertextPrefix = "SEA{"

// Pair is a set of entity keys: priv/pub sign, epriv is the symmetric key.
type Pair struct {
	Priv  string `yaml:"priv"`
	Pub   string `yaml:"pub"`
	EPriv string `yaml:"epriv"`
	EPub  string `yaml:"epub"`
}

// Crypto signs, verifies, encrypts and decrypts field values.
type Crypto interface {
	Pair() (Pair, error)
	Sign(payload []byte, pair Pair) (string, error)
	Verify(payload []byte, signature, pub string) error
	Encrypt(v graph.Value, key string) (string, error)
	Decrypt(ciphertext, key string) (graph.Value, error)
}

// IsCiphertext reports whether v holds an encrypted field value.
func IsCiphertext(v graph.Value) bool {
	s, ok := v.AsString()
	return ok && strings.HasPrefix(s, CiphertextPrefix)
}

var encoding = base64.RawURLEncoding

// envelope is the JSON body of a ciphertext after the SEA prefix.
type envelope struct {
	CT string `json:"ct"`
	IV string `json:"iv"`
	S  string `json:"s"`
}

// SEA implements Crypto with Ed25519 signatures and AES-256-GCM encryption
// under an HKDF-SHA256 key derived from the symmetric key string.
type SEA struct{}

var _ Crypto = SEA{}

// Pair generates a signing key pair and an encryption key pair.
func (SEA) Pair() (Pair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to generate signing key: %w", err)
	}

	scalar := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(scalar); err != nil {
		return Pair{}, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	point, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	return Pair{
		Priv:  encoding.EncodeToString(priv.Seed()),
		Pub:   encoding.EncodeToString(pub),
		EPriv: encoding.EncodeToString(scalar),
		EPub:  encoding.EncodeToString(point),
	}, nil
}

// Sign signs payload with pair.Priv.
func (SEA) Sign(payload []byte, pair Pair) (string, error) {
	seed, err := encoding.DecodeString(pair.Priv)
	if err != nil || len(seed) != ed25519.SeedSize {
		return "", errors.New("invalid signing key")
	}
	sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), payload)
	return encoding.EncodeToString(sig), nil
}

// Verify checks signature over payload against pub.
func (SEA) Verify(payload []byte, signature, pub string) error {
	key, err := encoding.DecodeString(pub)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return errors.New("invalid public key")
	}
	sig, err := encoding.DecodeString(signature)
	if err != nil {
		return errors.New("invalid signature encoding")
	}
	if !ed25519.Verify(key, payload, sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Encrypt encrypts v under key. The value keeps its kind on decryption.
func (SEA) Encrypt(v graph.Value, key string) (string, error) {
	if key == "" {
		return "", errors.New("cannot encrypt without key")
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	salt := make([]byte, 9)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	aead, err := newAEAD(key, salt)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	body, err := json.Marshal(envelope{
		CT: encoding.EncodeToString(aead.Seal(nil, iv, plaintext, nil)),
		IV: encoding.EncodeToString(iv),
		S:  encoding.EncodeToString(salt),
	})
	if err != nil {
		return "", err
	}
	return "SEA" + string(body), nil
}

// Decrypt reverses Encrypt.
func (SEA) Decrypt(ciphertext, key string) (graph.Value, error) {
	if key == "" {
		return graph.Null(), errors.New("cannot decrypt without key")
	}
	if !strings.HasPrefix(ciphertext, CiphertextPrefix) {
		return graph.Null(), errors.New("not a ciphertext")
	}

	var env envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(ciphertext, "SEA")), &env); err != nil {
		return graph.Null(), fmt.Errorf("malformed ciphertext: %w", err)
	}
	ct, err1 := encoding.DecodeString(env.CT)
	iv, err2 := encoding.DecodeString(env.IV)
	salt, err3 := encoding.DecodeString(env.S)
	if err := errors.Join(err1, err2, err3); err != nil {
		return graph.Null(), fmt.Errorf("malformed ciphertext: %w", err)
	}

	aead, err := newAEAD(key, salt)
	if err != nil {
		return graph.Null(), err
	}
	if len(iv) != aead.NonceSize() {
		return graph.Null(), errors.New("malformed ciphertext: bad nonce")
	}
	plaintext, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return graph.Null(), errors.New("wrong key")
	}

	var v graph.Value
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return graph.Null(), fmt.Errorf("malformed plaintext: %w", err)
	}
	return v, nil
}

func newAEAD(key string, salt []byte) (cipher.AEAD, error) {
	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(key), salt, []byte("SEA")), derived); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// signedWrite is the message a write signature covers.
type signedWrite struct {
	Soul  string      `json:"#"`
	Field string      `json:"."`
	Value graph.Value `json:":"`
	State int64       `json:">"`
}

// SignedPayload returns the bytes a write's signature covers.
func SignedPayload(w graph.Write) []byte {
	data, _ := json.Marshal(signedWrite{Soul: w.Soul, Field: w.Field, Value: w.Value, State: w.State})
	return data
}

// Verifier returns the graph write check for user-space souls: a write to a
// soul owned by pub must be signed by pub. Other souls are public.
func Verifier(c Crypto) graph.Verifier {
	return func(w graph.Write) error {
		owner, ok := OwnerOf(w.Soul)
		if !ok {
			return nil
		}
		if w.Pub != owner {
			return fmt.Errorf("signer %q does not own %q", w.Pub, w.Soul)
		}
		return c.Verify(SignedPayload(w), w.Signature, owner)
	}
}
