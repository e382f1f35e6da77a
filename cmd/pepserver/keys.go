package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/kms"
)

var SystemKeysFlag = &cli.StringFlag{
	Name:    "system-keys",
	Usage:   "SystemKeys.json of this authority; mutually exclusive with escrow",
	EnvVars: []string{"PEP_SYSTEM_KEYS"},
}
var EscrowAdminKeysFlag = &cli.StringFlag{
	Name:    "escrow-admin-keys-file",
	Usage:   "JSON file with the public keys of the administrators holding system key shares",
	EnvVars: []string{"PEP_ESCROW_ADMIN_KEYS"},
}
var EscrowThresholdFlag = &cli.IntFlag{
	Name:    "escrow-threshold",
	Value:   2,
	Usage:   "number of admin shares needed to recover the system keys",
	EnvVars: []string{"PEP_ESCROW_THRESHOLD"},
}

var KeyFlags = []cli.Flag{
	SystemKeysFlag,
	EscrowAdminKeysFlag,
	EscrowThresholdFlag,
}

// SetupTranslators loads the system keys directly or, with escrow, returns a
// locked escrow and the admin API that unlocks it. Key component requests are
// answered with 503 until then.
func SetupTranslators(cCtx *cli.Context, logger *slog.Logger) (kms.TranslatorSource, []httpserver.RouteRegistrar, error) {
	systemKeysFile := cCtx.String(SystemKeysFlag.Name)
	adminKeysFile := cCtx.String(EscrowAdminKeysFlag.Name)

	switch {
	case systemKeysFile != "" && adminKeysFile != "":
		return nil, nil, errors.New("system-keys and escrow-admin-keys-file are mutually exclusive")
	case systemKeysFile != "":
		keys, err := kms.LoadSystemKeysFile(systemKeysFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load system keys: %w", err)
		}
		translators, err := kms.NewTranslators(keys)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Loaded system keys", "file", systemKeysFile)
		return translators, nil, nil
	case adminKeysFile != "":
		adminKeys, err := httpserver.LoadAdminKeysFile(adminKeysFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load admin keys: %w", err)
		}
		pubKeys := make([][]byte, 0, len(adminKeys))
		for _, pubKey := range adminKeys {
			pubKeys = append(pubKeys, pubKey)
		}

		escrow, err := kms.NewShamirEscrow(kms.ShamirConfig{
			Threshold:    cCtx.Int(EscrowThresholdFlag.Name),
			AdminPubKeys: pubKeys,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("System keys are escrowed, waiting for admin shares", "admins", len(pubKeys), "threshold", cCtx.Int(EscrowThresholdFlag.Name))
		return escrow, []httpserver.RouteRegistrar{httpserver.NewAdminHandler(escrow, logger)}, nil
	default:
		return nil, nil, errors.New("either system-keys or escrow-admin-keys-file is required")
	}
}

// unlocked reports ErrLocked until escrowed system keys are recovered.
func unlocked(source kms.TranslatorSource) func() error {
	return func() error {
		_, err := source.Translators()
		return err
	}
}
