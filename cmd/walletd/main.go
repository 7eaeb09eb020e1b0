// Command walletd runs the wallet's background sync loop against a
// boundary RPC indexer: a cobra root command with flags feeding a
// long-lived process that blocks until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nav-io/blsctwallet/wallet"
)

const exitCodeGeneral = 1

var globalConfig struct {
	WalletDir string
	RPCAddr   string
	New       bool
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func startCmd(*cobra.Command, []string) {
	cfg := wallet.Config{
		PersistDir: globalConfig.WalletDir,
		RpcAddr:    globalConfig.RPCAddr,
	}

	var (
		w   *wallet.Wallet
		err error
	)
	if globalConfig.New {
		var mnemonic string
		w, mnemonic, err = wallet.Create(cfg)
		if err != nil {
			die("walletd: creating wallet:", err)
		}
		fmt.Println("new wallet mnemonic (write this down, it is shown only once):")
		fmt.Println(mnemonic)
	} else {
		w, err = wallet.Open(cfg)
		if err != nil {
			die("walletd: opening wallet:", err)
		}
	}

	height, err := w.Height()
	if err != nil {
		die("walletd: reading height:", err)
	}
	fmt.Printf("walletd: running, last synced height %d\n", height)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("walletd: shutting down")
	if err := w.Close(); err != nil {
		die("walletd: closing wallet:", err)
	}
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "BLSCT light wallet daemon",
		Long:  "BLSCT light wallet daemon: syncs chain tip state in the background",
		Run:   startCmd,
	}

	root.Flags().StringVarP(&globalConfig.WalletDir, "wallet-dir", "d", "", "location of the wallet's data directory (required)")
	root.Flags().StringVarP(&globalConfig.RPCAddr, "rpc-addr", "", "127.0.0.1:50001", "boundary RPC indexer address")
	root.Flags().BoolVarP(&globalConfig.New, "new", "", false, "create a new wallet at wallet-dir instead of opening an existing one")
	root.MarkFlagRequired("wallet-dir")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeGeneral)
	}
}
