package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/api/enrollhandler"
	"github.com/ruteri/splitkey-pep/api/keycomponenthandler"
	"github.com/ruteri/splitkey-pep/cmd/flags"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/enrollment"
	"github.com/ruteri/splitkey-pep/oauth"
)

var flagTokenFile = &cli.StringFlag{
	Name:  "token-file",
	Value: oauth.DefaultFileName,
	Usage: "path of the enrollment token",
}

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "issue enrollment tokens",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "generate an enrollment token for a user in a user group",
			Flags: []cli.Flag{
				flagTokenFile,
				&cli.StringFlag{Name: "secret-file", Required: true, Usage: "file with the hex encoded token secret"},
				&cli.StringFlag{Name: "subject", Required: true},
				&cli.StringFlag{Name: "group", Required: true},
				&cli.DurationFlag{Name: "validity", Value: 24 * time.Hour},
			},
			Action: func(cCtx *cli.Context) error {
				data, err := os.ReadFile(cCtx.String("secret-file"))
				if err != nil {
					return err
				}
				secret, err := hex.DecodeString(strings.TrimSpace(string(data)))
				if err != nil {
					return fmt.Errorf("token secret must be hex encoded: %w", err)
				}

				now := time.Now()
				token, err := oauth.Generate(secret, cCtx.String("subject"), cCtx.String("group"), now, now.Add(cCtx.Duration("validity")))
				if err != nil {
					return err
				}
				return token.WriteFile(cCtx.String(flagTokenFile.Name))
			},
		},
	},
}

var enrollCommand = &cli.Command{
	Name:  "enroll",
	Usage: "obtain a user certificate and combine the key components of all authorities",
	Flags: append([]cli.Flag{
		flagTokenFile,
		flagKeyServer,
		&cli.StringFlag{Name: "chain-out", Value: "identity-chain.pem", Usage: "where to write the issued certificate chain"},
		&cli.StringFlag{Name: "key-out", Value: "identity-key.pem", Usage: "where to write the identity private key"},
		&cli.StringSliceFlag{Name: "authority", Usage: "name=url of an authority serving key components, repeatable"},
		&cli.StringFlag{Name: "keys-out", Value: "EnrolledKeys.json", Usage: "where to write the combined keys"},
	}, flags.LogFlags...),
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		token, err := oauth.ReadFile(cCtx.String(flagTokenFile.Name))
		if err != nil {
			return fmt.Errorf("could not read enrollment token: %w", err)
		}
		identity, err := enrollhandler.NewClient(cCtx.String(flagKeyServer.Name), nil).Enroll(cCtx.Context, token.Subject, token.Group, token.String())
		if err != nil {
			return err
		}
		if err := writeIdentity(cCtx, identity); err != nil {
			return err
		}
		logger.Info("Enrolled user", "user", identity.CommonName(), "group", identity.OrganizationalUnit())

		var authorities []enrollment.KeyComponentRequester
		for _, authority := range cCtx.StringSlice("authority") {
			name, url, ok := strings.Cut(authority, "=")
			if !ok {
				return fmt.Errorf("authority %q is not of the form name=url", authority)
			}
			authorities = append(authorities, keycomponenthandler.NewClient(name, url, nil))
		}
		if len(authorities) == 0 {
			return errors.New("at least one authority is required")
		}

		keys, err := enrollment.Enroll(cCtx.Context, identity, authorities...)
		if err != nil {
			return err
		}
		logger.Info("Combined key components", "authorities", len(authorities), "dataAccess", keys.DataKey != nil)
		return writeJSON(cCtx.String("keys-out"), keys)
	},
}

func writeIdentity(cCtx *cli.Context, identity *cryptoutils.Identity) error {
	keyPEM, err := cryptoutils.EncodePrivateKeyPEM(identity.Key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cCtx.String("key-out"), keyPEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(cCtx.String("chain-out"), identity.Chain.PEM(), 0o644)
}
