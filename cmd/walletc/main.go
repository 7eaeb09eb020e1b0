// Command walletc is a thin command-line wrapper around the wallet
// package: each invocation opens the wallet store, performs one
// operation, and exits, one round trip per subcommand. Unlike a
// daemon-backed CLI this talks to the wallet's on-disk store
// in-process rather than over an API, since a transport protocol for
// this CLI is out of scope.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nav-io/blsctwallet/txbuilder"
	"github.com/nav-io/blsctwallet/wallet"
)

const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

var walletDir string

func exitWithError(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func readPassword(prompt string) []byte {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && len(line) == 0 {
		exitWithError("walletc: reading password:", err)
	}
	line = strings.TrimRight(line, "\r\n")
	return []byte(line)
}

func openWallet() *wallet.Wallet {
	w, err := wallet.Open(wallet.Config{PersistDir: walletDir})
	if err != nil {
		exitWithError("walletc: opening wallet:", err)
	}
	return w
}

func newCmd(*cobra.Command, []string) {
	w, mnemonic, err := wallet.Create(wallet.Config{PersistDir: walletDir})
	if err != nil {
		exitWithError("walletc: creating wallet:", err)
	}
	defer w.Close()
	fmt.Println("mnemonic (write this down, it is shown only once):")
	fmt.Println(mnemonic)
}

func heightCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	height, err := w.Height()
	if err != nil {
		exitWithError("walletc:", err)
	}
	fmt.Println(height)
}

func balanceCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	balance, err := w.Balance(nil)
	if err != nil {
		exitWithError("walletc:", err)
	}
	fmt.Println(balance)
}

func addressCmd(cmd *cobra.Command, args []string) {
	account, _ := cmd.Flags().GetInt64("account")
	w := openWallet()
	defer w.Close()
	addr, err := w.NewAddress(account)
	if err != nil {
		exitWithError("walletc:", err)
	}
	fmt.Println(addr)
}

func addressesCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	addrs, err := w.SubAddresses()
	if err != nil {
		exitWithError("walletc:", err)
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
}

func sendCmd(cmd *cobra.Command, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: walletc send <destination> <amount>")
		os.Exit(exitCodeUsage)
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		exitWithError("walletc: invalid amount:", err)
	}
	memo, _ := cmd.Flags().GetString("memo")

	w := openWallet()
	defer w.Close()
	result, err := w.Send(context.Background(), txbuilder.SendRequest{
		Destination: args[0],
		Amount:      amount,
		Memo:        memo,
	})
	if err != nil {
		exitWithError("walletc: send failed:", err)
	}
	fmt.Printf("txid=%s fee=%d inputs=%d outputs=%d\n", result.TxID, result.Fee, result.InputCount, result.OutputCount)
}

func backupCmd(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = walletDir
	}
	w := openWallet()
	defer w.Close()
	path, err := w.BackupMnemonic(dir)
	if err != nil {
		exitWithError("walletc: backup failed:", err)
	}
	fmt.Println(path)
}

func lockCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	if err := w.Lock(); err != nil {
		exitWithError("walletc:", err)
	}
}

func unlockCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	password := readPassword("password: ")
	if !w.Unlock(password) {
		exitWithError("walletc: wrong password")
	}
}

func setPasswordCmd(*cobra.Command, []string) {
	w := openWallet()
	defer w.Close()
	password := readPassword("new password: ")
	if err := w.SetPassword(password); err != nil {
		exitWithError("walletc:", err)
	}
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "BLSCT light wallet command-line client",
		Long:  "BLSCT light wallet command-line client: one operation per invocation",
	}
	root.PersistentFlags().StringVarP(&walletDir, "wallet-dir", "d", "", "location of the wallet's data directory (required)")
	root.MarkPersistentFlagRequired("wallet-dir")

	root.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "create a new wallet",
		Run:   newCmd,
	})
	root.AddCommand(&cobra.Command{
		Use:   "height",
		Short: "print the last synced chain height",
		Run:   heightCmd,
	})
	root.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "print the wallet's confirmed + pending balance",
		Run:   balanceCmd,
	})

	addressCommand := &cobra.Command{
		Use:   "address",
		Short: "derive and print a new receiving sub-address",
		Run:   addressCmd,
	}
	addressCommand.Flags().Int64P("account", "a", 0, "account index (0=main)")
	root.AddCommand(addressCommand)

	root.AddCommand(&cobra.Command{
		Use:   "addresses",
		Short: "list every sub-address the wallet has registered",
		Run:   addressesCmd,
	})

	sendCommand := &cobra.Command{
		Use:   "send <destination> <amount>",
		Short: "build, sign and broadcast a payment",
		Run:   sendCmd,
	}
	sendCommand.Flags().String("memo", "", "optional memo attached to the payment")
	root.AddCommand(sendCommand)

	backupCommand := &cobra.Command{
		Use:   "backup",
		Short: "write the wallet's mnemonic to a new backup file",
		Run:   backupCmd,
	}
	backupCommand.Flags().String("dir", "", "directory to write the backup file into (defaults to wallet-dir)")
	root.AddCommand(backupCommand)

	root.AddCommand(&cobra.Command{
		Use:   "lock",
		Short: "discard in-memory spending secrets",
		Run:   lockCmd,
	})
	root.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "restore in-memory spending secrets from the wallet password",
		Run:   unlockCmd,
	})
	root.AddCommand(&cobra.Command{
		Use:   "set-password",
		Short: "encrypt the wallet's spending secrets under a new password",
		Run:   setPasswordCmd,
	})

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
