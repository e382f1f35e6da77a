package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/kms"
)

var flagSystemKeys = &cli.StringFlag{
	Name:  "system-keys",
	Value: "SystemKeys.json",
	Usage: "path of the SystemKeys file",
}
var flagShares = &cli.StringFlag{
	Name:  "shares",
	Value: "shares.json",
	Usage: "path of the encrypted system key shares",
}
var flagAdminPrivkey = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "path of the admin private key",
}
var flagAdminPubkey = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "path of the admin public key",
}

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "manage system keys and their escrow",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "generate the SystemKeys of one authority",
			Flags: []cli.Flag{
				flagSystemKeys,
				&cli.BoolFlag{Name: "with-blinding", Usage: "also generate a data blinding secret"},
			},
			Action: func(cCtx *cli.Context) error {
				keys, err := kms.GenerateSystemKeys(cCtx.Bool("with-blinding"))
				if err != nil {
					return err
				}
				return writeJSON(cCtx.String(flagSystemKeys.Name), keys)
			},
		},
		{
			Name:  "generate-admin",
			Usage: "generate an admin key pair for share encryption",
			Flags: []cli.Flag{flagAdminPrivkey, flagAdminPubkey},
			Action: func(cCtx *cli.Context) error {
				pubKey, privKey, err := cryptoutils.RandomP256Keypair()
				if err != nil {
					return err
				}
				if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), privKey, 0o600); err != nil {
					return err
				}
				return os.WriteFile(cCtx.String(flagAdminPubkey.Name), pubKey, 0o600)
			},
		},
		{
			Name:  "split",
			Usage: "split a SystemKeys file into shares encrypted to the admins",
			Flags: []cli.Flag{
				flagSystemKeys,
				flagShares,
				&cli.StringFlag{Name: "admin-keys-file", Required: true, Usage: "JSON file with the admins' public keys"},
				&cli.IntFlag{Name: "threshold", Value: 2},
			},
			Action: func(cCtx *cli.Context) error {
				systemKeys, err := os.ReadFile(cCtx.String(flagSystemKeys.Name))
				if err != nil {
					return err
				}
				adminKeys, err := httpserver.LoadAdminKeysFile(cCtx.String("admin-keys-file"))
				if err != nil {
					return err
				}
				pubKeys := make([][]byte, 0, len(adminKeys))
				for _, pubKey := range adminKeys {
					pubKeys = append(pubKeys, pubKey)
				}

				shares, err := kms.SplitSystemKeys(systemKeys, kms.ShamirConfig{
					Threshold:    cCtx.Int("threshold"),
					AdminPubKeys: pubKeys,
				})
				if err != nil {
					return err
				}
				return writeJSON(cCtx.String(flagShares.Name), shares)
			},
		},
		{
			Name:  "submit-share",
			Usage: "decrypt this admin's share and submit it to a server",
			Flags: []cli.Flag{
				flagShares,
				flagAdminPrivkey,
				&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080", Usage: "base URL of the server"},
			},
			Action: func(cCtx *cli.Context) error {
				var shares []kms.EncryptedShare
				if err := readJSON(cCtx.String(flagShares.Name), &shares); err != nil {
					return err
				}
				keyData, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
				if err != nil {
					return err
				}
				adminKey, err := cryptoutils.NewPrivateKeyPEM(keyData)
				if err != nil {
					return err
				}
				publicKey, err := adminKey.GetPublicKey()
				if err != nil {
					return err
				}
				pubKeyPEM, err := cryptoutils.EncodePublicKeyPEM(publicKey)
				if err != nil {
					return err
				}

				fingerprint := kms.AdminFingerprint(pubKeyPEM)
				for _, share := range shares {
					if share.AdminFingerprint != fingerprint {
						continue
					}
					client := &httpserver.AdminClient{BaseURL: cCtx.String("server")}
					status, err := client.SubmitShare(cCtx.Context, share, adminKey)
					if err != nil {
						return err
					}
					fmt.Printf("share %d accepted, unlocked: %t\n", share.Index, status.Unlocked)
					return nil
				}
				return fmt.Errorf("no share for admin key %s", fingerprint)
			},
		},
	},
}
