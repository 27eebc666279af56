package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ConfirmFunc is asked before a KeySigner signs. Returning false rejects the
// transaction as a user rejection.
type ConfirmFunc func(ctx context.Context, tx *types.Transaction) (bool, error)

// KeySigner signs with a local ECDSA key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	confirm ConfirmFunc
}

// NewKeySigner parses a hex-encoded private key (with or without 0x prefix).
// confirm may be nil to sign without asking.
func NewKeySigner(privateKeyHex string, confirm ConfirmFunc) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		confirm: confirm,
	}, nil
}

func (s *KeySigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.confirm != nil {
		ok, err := s.confirm(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("confirm transaction: %w", err)
		}
		if !ok {
			return nil, &Error{Kind: KindUserRejected, Reason: "transaction rejected by the user"}
		}
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// ClefSigner delegates signing to a Clef instance. Denials in Clef surface as
// user rejections.
type ClefSigner struct {
	ext *external.ExternalSigner

	mu      sync.Mutex
	account *accounts.Account
}

// NewClefSigner connects to a Clef endpoint (IPC path or http URL).
func NewClefSigner(endpoint string) (*ClefSigner, error) {
	ext, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, Classify(fmt.Errorf("connect to clef: %w", err))
	}
	return &ClefSigner{ext: ext}, nil
}

// Address returns the first account Clef exposes.
func (s *ClefSigner) Address(context.Context) (common.Address, error) {
	acc, err := s.resolve()
	if err != nil {
		return common.Address{}, err
	}
	return acc.Address, nil
}

func (s *ClefSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	acc, err := s.resolve()
	if err != nil {
		return nil, err
	}
	signed, err := s.ext.SignTx(acc, tx, chainID)
	if err != nil {
		return nil, Classify(err)
	}
	return signed, nil
}

func (s *ClefSigner) resolve() (accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil {
		return *s.account, nil
	}
	// Clef answers a denied listing with an empty set.
	accs := s.ext.Accounts()
	if len(accs) == 0 {
		return accounts.Account{}, &Error{Kind: KindUserRejected, Reason: "no account approved in clef"}
	}
	s.account = &accs[0]
	return accs[0], nil
}
