package keymanager

import (
	"path/filepath"
	"testing"
)

func TestBackupMnemonicRoundTrip(t *testing.T) {
	k, _ := newTestManager(t)
	dir := t.TempDir()

	path, err := k.BackupMnemonic(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected backup file under %s, got %s", dir, path)
	}

	got, err := LoadMnemonicBackup(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != fixedMnemonic {
		t.Fatalf("expected backup to round-trip mnemonic %q, got %q", fixedMnemonic, got)
	}
}

func TestBackupMnemonicFailsWhileLocked(t *testing.T) {
	k, _ := newTestManager(t)
	if err := k.SetPassword([]byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	if err := k.Lock(); err != nil {
		t.Fatal(err)
	}

	if _, err := k.BackupMnemonic(t.TempDir()); err == nil {
		t.Fatal("expected BackupMnemonic to fail on a locked wallet")
	}
}
