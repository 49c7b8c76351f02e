// Package algorand wraps the Algorand SDK: offline wallet generation
// and, when an algod node is configured, ASA operations.
package algorand

import (
	"crypto/ed25519"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
)

// Wallet is a locally generated Algorand account.
type Wallet struct {
	Address    string
	Mnemonic   string
	PrivateKey ed25519.PrivateKey
}

// GenerateWallet creates a fresh account and its recovery mnemonic.
// Generation is purely local; no node is contacted.
func GenerateWallet() (*Wallet, error) {
	account := crypto.GenerateAccount()
	phrase, err := mnemonic.FromPrivateKey(account.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("algorand: derive mnemonic: %w", err)
	}
	return &Wallet{
		Address:    account.Address.String(),
		Mnemonic:   phrase,
		PrivateKey: account.PrivateKey,
	}, nil
}

// WalletFromMnemonic recovers a wallet from its 25-word mnemonic.
func WalletFromMnemonic(phrase string) (*Wallet, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, fmt.Errorf("algorand: recover key: %w", err)
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("algorand: recover account: %w", err)
	}
	return &Wallet{
		Address:    account.Address.String(),
		Mnemonic:   phrase,
		PrivateKey: sk,
	}, nil
}

// AccountGenerator adapts wallet generation to the storage.AccountSource
// seam.
type AccountGenerator struct{}

// GenerateAccount returns a fresh address and mnemonic.
func (AccountGenerator) GenerateAccount() (string, string, error) {
	w, err := GenerateWallet()
	if err != nil {
		return "", "", err
	}
	return w.Address, w.Mnemonic, nil
}
