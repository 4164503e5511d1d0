package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"matrixchain/crypto"
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "wallet.keystore", "path of the keystore to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists; refusing to overwrite\n", *out)
		return 1
	}
	pass, err := keyPass()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error saving keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", *out)
	fmt.Fprintf(stdout, "Your address is: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyFile := fs.String("key", "wallet.keystore", "path to the keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := keystoreAddress(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr)
	return 0
}

// loadKey decrypts the keystore at path. Tests replace it.
var loadKey = func(path string) (*crypto.PrivateKey, error) {
	pass, err := keyPass()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("keystore %s not found. run ./matrix-cli keygen first", path)
		}
		return nil, fmt.Errorf("open keystore %s: %w", path, err)
	}
	return key, nil
}

func keystoreAddress(path string) (string, error) {
	key, err := loadKey(path)
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

// signer loads the key that signs a mutating request and returns it with
// its address, which becomes the request principal.
func signer(keyFile string) (*crypto.PrivateKey, string, error) {
	if strings.TrimSpace(keyFile) == "" {
		return nil, "", fmt.Errorf("--key is required to sign the request")
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return nil, "", err
	}
	return key, key.PubKey().Address().String(), nil
}
