package main

import (
	"fmt"
	"os"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/store"
	"github.com/mtzanidakis/vigla/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	passphrase := os.Getenv("VIGLA_VAULT_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("VIGLA_VAULT_PASSPHRASE environment variable is required")
	}

	v := vault.New(passphrase)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "list":
		return vaultList(db)
	case "set":
		return vaultSet(db, v, args[1:])
	case "get":
		return vaultGet(db, v, args[1:])
	case "delete":
		return vaultDelete(db, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: vigla vault <command>

Commands:
  list                  List stored secret names
  set <name> <value>    Store an encrypted secret
  get <name>            Print a decrypted secret
  delete <name>         Remove a secret

Reference secrets from config as "secret:<name>".
`)
}

func vaultList(db *store.Store) error {
	names, err := db.ListSecretNames()
	if err != nil {
		return fmt.Errorf("list secrets: %w", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func vaultSet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vigla vault set <name> <value>")
	}
	name, value := args[0], args[1]

	ciphertext, nonce, err := v.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}

	if err := db.SaveSecret(&store.Secret{Name: name, Value: ciphertext, Nonce: nonce}); err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	fmt.Printf("Secret %q stored.\n", name)
	return nil
}

func vaultGet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vigla vault get <name>")
	}

	sec, err := db.GetSecret(args[0])
	if err != nil {
		return fmt.Errorf("get secret: %w", err)
	}
	if sec == nil {
		return fmt.Errorf("secret %q not found", args[0])
	}

	plain, err := v.Decrypt(sec.Value, sec.Nonce)
	if err != nil {
		return fmt.Errorf("decrypt secret: %w", err)
	}
	fmt.Println(string(plain))
	return nil
}

func vaultDelete(db *store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vigla vault delete <name>")
	}
	if err := db.DeleteSecret(args[0]); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	fmt.Printf("Secret %q deleted.\n", args[0])
	return nil
}
