package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/alanyoungcy/ghostyield/internal/crypto"
)

// runEncryptKey writes a password-encrypted copy of a hex private key. The key
// and password default to GHOSTYIELD_WALLET_PRIVATE_KEY and
// GHOSTYIELD_WALLET_KEY_PASSWORD.
func runEncryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "wallet.key", "output path")
	key := fs.String("key", os.Getenv("GHOSTYIELD_WALLET_PRIVATE_KEY"), "hex private key")
	password := fs.String("password", os.Getenv("GHOSTYIELD_WALLET_KEY_PASSWORD"), "encryption password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("no key given (-key or GHOSTYIELD_WALLET_PRIVATE_KEY)")
	}
	if *password == "" {
		return errors.New("no password given (-password or GHOSTYIELD_WALLET_KEY_PASSWORD)")
	}

	if err := crypto.WriteKeyFile(*out, *key, *password); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "encrypted key written to %s\n", *out)
	return nil
}
