package keymanager

import (
	"path/filepath"

	"github.com/nav-io/blsctwallet/persist"
)

const (
	backupFilePartialPrefix = "BLSCT Wallet Seed Backup - "
	backupFileSuffix        = ".seed"
)

var backupMetadata = persist.Metadata{
	Header:  "BLSCT Wallet Seed Backup",
	Version: "1.0",
}

// seedBackup is the on-disk shape of an exported mnemonic backup: a
// small, metadata-tagged JSON document distinct from the wallet
// store's own bbolt file, written to its own ".seed" file alongside
// the wallet database.
type seedBackup struct {
	Mnemonic string
}

// BackupMnemonic writes the key manager's mnemonic to a new,
// randomly-suffixed backup file under dir and returns its path. It
// fails with walleterr.ErrWalletLocked while the wallet is Locked, the
// same condition GetMnemonic enforces, since a locked wallet has
// nothing in memory worth backing up.
func (k *KeyManager) BackupMnemonic(dir string) (string, error) {
	mnemonic, err := k.GetMnemonic()
	if err != nil {
		return "", err
	}
	if err := persist.MkdirAll(dir); err != nil {
		return "", err
	}
	filename := filepath.Join(dir, backupFilePartialPrefix+persist.RandomSuffix()+backupFileSuffix)
	if err := persist.SaveJSON(backupMetadata, seedBackup{Mnemonic: mnemonic}, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// LoadMnemonicBackup reads back a backup file written by BackupMnemonic,
// returning the mnemonic it contains.
func LoadMnemonicBackup(filename string) (string, error) {
	var sf seedBackup
	if err := persist.LoadJSON(backupMetadata, &sf, filename); err != nil {
		return "", err
	}
	return sf.Mnemonic, nil
}
