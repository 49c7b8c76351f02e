// Package secrets seals wallet mnemonics at rest. Mnemonics never sit
// in the character index table; they live here, encrypted, keyed by
// character id.
package secrets

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/charvault/server/model"
	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no secret exists for a character.
var ErrNotFound = errors.New("secrets: not found")

// Vault stores sealed mnemonics in the character_secrets table,
// encrypted with ChaCha20-Poly1305 under a key derived from the
// configured vault key.
type Vault struct {
	db   *gorm.DB
	aead cipher.AEAD
}

// NewVault derives the sealing key from the given vault key string.
func NewVault(db *gorm.DB, vaultKey string) (*Vault, error) {
	if vaultKey == "" {
		return nil, errors.New("secrets: vault key must not be empty")
	}
	key := sha256.Sum256([]byte(vaultKey))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	return &Vault{db: db, aead: aead}, nil
}

// Put seals and stores the secret for a character, replacing any
// previous value.
func (v *Vault) Put(ctx context.Context, characterID int64, secret string) error {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(secret), nil)
	encoded := base64.StdEncoding.EncodeToString(sealed)

	tx := v.db.WithContext(ctx)
	if err := tx.Where("character_id = ?", characterID).Delete(&model.CharacterSecret{}).Error; err != nil {
		return fmt.Errorf("secrets: replace: %w", err)
	}
	row := &model.CharacterSecret{CharacterID: characterID, Sealed: encoded}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("secrets: store: %w", err)
	}
	return nil
}

// Get opens and returns the secret for a character.
func (v *Vault) Get(ctx context.Context, characterID int64) (string, error) {
	var row model.CharacterSecret
	if err := v.db.WithContext(ctx).Where("character_id = ?", characterID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("secrets: load: %w", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(row.Sealed)
	if err != nil {
		return "", fmt.Errorf("secrets: decode: %w", err)
	}
	if len(sealed) < v.aead.NonceSize() {
		return "", errors.New("secrets: sealed value too short")
	}
	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

// Delete removes the secret for a character. Deleting a missing secret
// is not an error.
func (v *Vault) Delete(ctx context.Context, characterID int64) error {
	return v.db.WithContext(ctx).Where("character_id = ?", characterID).Delete(&model.CharacterSecret{}).Error
}
