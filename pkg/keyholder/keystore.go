package keyholder

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrLocked         = errors.New("keystore is locked")
)

// Entry is a wallet record of the keystore file.
type Entry struct {
	ID        string `toml:"id"`
	Address   string `toml:"address"`
	PublicKey string `toml:"public_key"`
	Version   string `toml:"version"`
	Testnet   bool   `toml:"testnet"`
	// Mnemonic is the encrypted mnemonic, base64 encoded.
	Mnemonic   string `toml:"mnemonic"`
	ProofToken string `toml:"proof_token,omitempty"`
}

type file struct {
	Wallets []Entry `toml:"wallet"`
}

// Keystore keeps encrypted mnemonics in a TOML file and implements core.KeyHolder.
// A passcode confirmed by ConfirmUserPresence unlocks exactly one PrivateKey call
// for the same wallet.
type Keystore struct {
	path     string
	prompt   PasscodePrompt
	params   KDFParams
	derive   func(mnemonic string) (ed25519.PrivateKey, error)
	logger   *zap.Logger
	mu       sync.Mutex
	file     file
	passcode []byte
	// unlocked is the wallet passcode was confirmed for.
	unlocked string
}

var _ core.KeyHolder = (*Keystore)(nil)

type Option func(*Keystore)

func WithKDFParams(params KDFParams) Option {
	return func(k *Keystore) { k.params = params }
}

func WithLogger(logger *zap.Logger) Option {
	return func(k *Keystore) { k.logger = logger }
}

// Open reads the keystore at path. A missing file is an empty keystore.
func Open(path string, prompt PasscodePrompt, opts ...Option) (*Keystore, error) {
	k := &Keystore{
		path:   path,
		prompt: prompt,
		params: DefaultKDFParams(),
		derive: tongoWallet.SeedToPrivateKey,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(k)
	}
	if _, err := toml.DecodeFile(path, &k.file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "read keystore %v", path)
	}
	return k, nil
}

// Import encrypts the mnemonic with the passcode and stores it under id.
func (k *Keystore) Import(id string, mnemonic string, passcode []byte, address ton.AccountID, version tongoWallet.Version, testnet bool) error {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	key, err := k.derive(mnemonic)
	if err != nil {
		return errors.Wrap(err, "derive private key")
	}
	encrypted, err := encrypt([]byte(mnemonic), passcode, k.params)
	if err != nil {
		return err
	}
	entry := Entry{
		ID:        id,
		Address:   address.ToRaw(),
		PublicKey: hex.EncodeToString(key.Public().(ed25519.PublicKey)),
		Version:   wallet.VersionName(version),
		Testnet:   testnet,
		Mnemonic:  base64.StdEncoding.EncodeToString(encrypted),
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, e := range k.file.Wallets {
		if e.ID == id {
			entry.ProofToken = e.ProofToken
			k.file.Wallets[i] = entry
			return k.save()
		}
	}
	k.file.Wallets = append(k.file.Wallets, entry)
	return k.save()
}

// SetProofToken stores the relay credential of a wallet.
func (k *Keystore) SetProofToken(id string, token string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.file.Wallets {
		if k.file.Wallets[i].ID == id {
			k.file.Wallets[i].ProofToken = token
			return k.save()
		}
	}
	return errors.Wrapf(ErrWalletNotFound, "%q", id)
}

func (k *Keystore) save() error {
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return errors.Wrap(err, "create keystore dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(k.path), ".keystore-*")
	if err != nil {
		return errors.Wrap(err, "create keystore")
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(k.file); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode keystore")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp.Name(), k.path), "replace keystore")
}

func (k *Keystore) entry(id string) (Entry, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range k.file.Wallets {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Wallets returns ids of the stored wallets.
func (k *Keystore) Wallets() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]string, 0, len(k.file.Wallets))
	for _, e := range k.file.Wallets {
		ids = append(ids, e.ID)
	}
	return ids
}

// Wallet returns the snapshot of a stored wallet.
func (k *Keystore) Wallet(id string) (core.Wallet, error) {
	e, ok := k.entry(id)
	if !ok {
		return core.Wallet{}, errors.Wrapf(ErrWalletNotFound, "%q", id)
	}
	address, err := ton.ParseAccountID(e.Address)
	if err != nil {
		return core.Wallet{}, errors.Wrap(err, "parse wallet address")
	}
	publicKey, err := hex.DecodeString(e.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return core.Wallet{}, errors.Errorf("invalid public key of wallet %q", id)
	}
	version, err := wallet.ParseVersion(e.Version)
	if err != nil {
		return core.Wallet{}, err
	}
	w := core.Wallet{
		ID:        e.ID,
		Address:   address,
		PublicKey: publicKey,
		Version:   version,
		Type:      core.WalletDefault,
		Testnet:   e.Testnet,
	}
	if e.Testnet {
		w.Type = core.WalletTestnet
	}
	return w, nil
}

func (k *Keystore) RequestProofToken(ctx context.Context, w core.Wallet) (string, bool) {
	e, ok := k.entry(w.ID)
	if !ok || e.ProofToken == "" {
		return "", false
	}
	return e.ProofToken, true
}

// ConfirmUserPresence asks for the passcode and checks that it opens the wallet.
// The confirmed passcode only unlocks that wallet.
func (k *Keystore) ConfirmUserPresence(ctx context.Context, walletID string) bool {
	passcode, err := k.prompt.Passcode(ctx)
	if err != nil {
		k.logger.Debug("passcode prompt failed", zap.Error(err))
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	var target *Entry
	for i := range k.file.Wallets {
		if k.file.Wallets[i].ID == walletID {
			target = &k.file.Wallets[i]
			break
		}
	}
	if target == nil {
		k.logger.Info("presence asked for unknown wallet", zap.String("wallet", walletID))
		wipe(passcode)
		return false
	}
	mnemonic, err := k.open(*target, passcode)
	if err != nil {
		k.logger.Info("passcode rejected", zap.String("wallet", walletID), zap.Error(err))
		wipe(passcode)
		return false
	}
	wipe(mnemonic)
	wipe(k.passcode)
	k.passcode = passcode
	k.unlocked = walletID
	return true
}

func (k *Keystore) open(e Entry, passcode []byte) ([]byte, error) {
	encrypted, err := base64.StdEncoding.DecodeString(e.Mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "decode mnemonic")
	}
	return decrypt(encrypted, passcode)
}

func (k *Keystore) PrivateKey(ctx context.Context, walletID string) (ed25519.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.passcode == nil {
		return nil, ErrLocked
	}
	passcode, unlocked := k.passcode, k.unlocked
	k.passcode, k.unlocked = nil, ""
	defer wipe(passcode)
	if unlocked != walletID {
		return nil, errors.Wrapf(ErrLocked, "passcode was confirmed for %q", unlocked)
	}
	for _, e := range k.file.Wallets {
		if e.ID != walletID {
			continue
		}
		mnemonic, err := k.open(e, passcode)
		if err != nil {
			return nil, err
		}
		defer wipe(mnemonic)
		return k.derive(string(mnemonic))
	}
	return nil, errors.Wrapf(ErrWalletNotFound, "%q", walletID)
}
