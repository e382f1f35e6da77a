package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/api/blocklisthandler"
	"github.com/ruteri/splitkey-pep/api/enrollhandler"
	"github.com/ruteri/splitkey-pep/api/keycomponenthandler"
	"github.com/ruteri/splitkey-pep/api/pagehandler"
	"github.com/ruteri/splitkey-pep/api/tickethandler"
	"github.com/ruteri/splitkey-pep/cmd/flags"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/kms"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/storage"
	"github.com/ruteri/splitkey-pep/ticketing"
	"github.com/ruteri/splitkey-pep/tokenblocking"
)

const metricsNamespace = "pep"

var AccessPolicyFlag = &cli.StringFlag{
	Name:    "access-policy",
	Value:   "AccessPolicy.yaml",
	Usage:   "YAML file mapping user groups to the access they may request",
	EnvVars: []string{"PEP_ACCESS_POLICY"},
}
var TranscryptorURLFlag = &cli.StringFlag{
	Name:    "transcryptor-url",
	Value:   "http://127.0.0.1:8082",
	Usage:   "base URL of the transcryptor that countersigns tickets",
	EnvVars: []string{"PEP_TRANSCRYPTOR_URL"},
}
var TicketValidityFlag = &cli.DurationFlag{
	Name:    "ticket-validity",
	Value:   ticketing.DefaultTicketValidity,
	Usage:   "how long issued tickets can be used",
	EnvVars: []string{"PEP_TICKET_VALIDITY"},
}

var ClientCAChainFlag = &cli.StringFlag{
	Name:    "client-ca-chain",
	Usage:   "PEM chain of the client CA that issues user certificates",
	EnvVars: []string{"PEP_CLIENT_CA_CHAIN"},
}
var ClientCAKeyFlag = &cli.StringFlag{
	Name:    "client-ca-key",
	Usage:   "PEM private key of the client CA",
	EnvVars: []string{"PEP_CLIENT_CA_KEY"},
}
var UserCertificateValidityFlag = &cli.DurationFlag{
	Name:    "user-certificate-validity",
	Value:   kms.DefaultUserCertificateValidity,
	Usage:   "validity of enrolled user certificates",
	EnvVars: []string{"PEP_USER_CERTIFICATE_VALIDITY"},
}
var TokenSecretFlag = &cli.StringFlag{
	Name:    "token-secret-file",
	Usage:   "file holding the hex encoded secret enrollment tokens are authenticated with",
	EnvVars: []string{"PEP_TOKEN_SECRET_FILE"},
}
var BlocklistPathFlag = &cli.StringFlag{
	Name:    "blocklist-path",
	Usage:   "database directory of the token blocklist; empty keeps it in memory",
	EnvVars: []string{"PEP_BLOCKLIST_PATH"},
}
var BlocklistPassphraseFlag = &cli.StringFlag{
	Name:    "blocklist-passphrase",
	Usage:   "passphrase the blocklist database is encrypted with",
	EnvVars: []string{"PEP_BLOCKLIST_PASSPHRASE"},
}

var StorageLocationsFlag = &cli.StringFlag{
	Name:    "storage",
	Value:   "file://./pages",
	Usage:   "comma separated storage backend URIs (file://, s3://, vault://)",
	EnvVars: []string{"PEP_STORAGE"},
}

var accessManagerCommand = &cli.Command{
	Name:  "accessmanager",
	Usage: "serve key components and issue tickets",
	Flags: roleFlags(interfaces.AccessManagerTraits, flags.IdentityFlags, KeyFlags,
		[]cli.Flag{AccessPolicyFlag, TranscryptorURLFlag, TicketValidityFlag}),
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		m := metrics.NewMetrics(metricsNamespace, interfaces.AccessManagerTraits.MetricsID())

		roots, identity, err := loadServerIdentity(cCtx, interfaces.AccessManagerTraits)
		if err != nil {
			return err
		}
		translators, adminHandlers, err := SetupTranslators(cCtx, logger)
		if err != nil {
			return err
		}
		policy, err := ticketing.LoadAccessPolicy(cCtx.String(AccessPolicyFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to load access policy: %w", err)
		}

		issuer, err := ticketing.NewIssuer(ticketing.IssuerConfig{
			Identity: identity,
			Roots:    roots,
			Policy:   policy,
			Validity: cCtx.Duration(TicketValidityFlag.Name),
		}, tickethandler.NewCountersignClient(cCtx.String(TranscryptorURLFlag.Name), nil), logger)
		if err != nil {
			return err
		}

		handlers := append(adminHandlers,
			keycomponenthandler.NewHandler(translators, roots, m, logger),
			tickethandler.NewIssueHandler(issuer, m, logger),
		)
		return serve(cCtx, logger, m, unlocked(translators), handlers...)
	},
}

var transcryptorCommand = &cli.Command{
	Name:  "transcryptor",
	Usage: "serve key components and countersign tickets",
	Flags: roleFlags(interfaces.TranscryptorTraits, flags.IdentityFlags, KeyFlags),
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		m := metrics.NewMetrics(metricsNamespace, interfaces.TranscryptorTraits.MetricsID())

		roots, identity, err := loadServerIdentity(cCtx, interfaces.TranscryptorTraits)
		if err != nil {
			return err
		}
		translators, adminHandlers, err := SetupTranslators(cCtx, logger)
		if err != nil {
			return err
		}

		handlers := append(adminHandlers,
			keycomponenthandler.NewHandler(translators, roots, m, logger),
			tickethandler.NewCountersignHandler(ticketing.NewTicketCountersigner(identity, roots, logger), m, logger),
		)
		return serve(cCtx, logger, m, unlocked(translators), handlers...)
	},
}

var keyServerCommand = &cli.Command{
	Name:  "keyserver",
	Usage: "enroll users and administer the token blocklist",
	Flags: roleFlags(interfaces.KeyServerTraits, []cli.Flag{
		ClientCAChainFlag, ClientCAKeyFlag, UserCertificateValidityFlag,
		TokenSecretFlag, BlocklistPathFlag, BlocklistPassphraseFlag,
	}),
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		m := metrics.NewMetrics(metricsNamespace, interfaces.KeyServerTraits.MetricsID())

		roots, err := flags.LoadRoots(cCtx)
		if err != nil {
			return err
		}

		chainPEM, err := os.ReadFile(cCtx.String(ClientCAChainFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to read client CA chain: %w", err)
		}
		keyPEM, err := os.ReadFile(cCtx.String(ClientCAKeyFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to read client CA key: %w", err)
		}
		ca, err := cryptoutils.LoadCertificateAuthority(chainPEM, keyPEM)
		if err != nil {
			return err
		}
		clientCA, err := kms.NewClientCA(ca, cCtx.Duration(UserCertificateValidityFlag.Name))
		if err != nil {
			return err
		}

		secret, err := readTokenSecret(cCtx.String(TokenSecretFlag.Name))
		if err != nil {
			return err
		}

		blocklist, err := tokenblocking.NewBadgerBlocklist(tokenblocking.BadgerConfig{
			Path:       cCtx.String(BlocklistPathFlag.Name),
			Passphrase: []byte(cCtx.String(BlocklistPassphraseFlag.Name)),
		}, logger)
		if err != nil {
			return err
		}
		defer blocklist.Close()

		return serve(cCtx, logger, m, nil,
			enrollhandler.NewHandler(clientCA, secret, blocklist, m, logger),
			blocklisthandler.NewHandler(blocklist, roots, logger),
		)
	},
}

var storageFacilityCommand = &cli.Command{
	Name:  "storagefacility",
	Usage: "store and serve encrypted data pages",
	Flags: roleFlags(interfaces.StorageFacilityTraits, flags.IdentityFlags, []cli.Flag{StorageLocationsFlag}),
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		m := metrics.NewMetrics(metricsNamespace, interfaces.StorageFacilityTraits.MetricsID())

		roots, identity, err := loadServerIdentity(cCtx, interfaces.StorageFacilityTraits)
		if err != nil {
			return err
		}

		locations, err := interfaces.ParseStorageBackendLocations(cCtx.String(StorageLocationsFlag.Name))
		if err != nil {
			return err
		}
		factory := storage.NewStorageBackendFactory(logger).WithTLSAuth(func() (tls.Certificate, error) {
			return identity.TLSCertificate(), nil
		})
		backend, err := factory.CreateMultiBackend(locations)
		if err != nil {
			return err
		}

		return serve(cCtx, logger, m, nil,
			pagehandler.NewHandler(storage.NewPageStore(backend, logger), roots, m, logger),
		)
	},
}

// loadServerIdentity loads the trusted roots and the role's signing identity,
// which must be valid and carry the role's certificate subject.
func loadServerIdentity(cCtx *cli.Context, traits interfaces.ServerTraits) (*x509.CertPool, *cryptoutils.Identity, error) {
	roots, err := flags.LoadRoots(cCtx)
	if err != nil {
		return nil, nil, err
	}
	identity, err := flags.LoadIdentity(cCtx)
	if err != nil {
		return nil, nil, err
	}
	if err := identity.Chain.Verify(roots, time.Now()); err != nil {
		return nil, nil, fmt.Errorf("signing identity is not trusted: %w", err)
	}
	if !traits.SigningIdentityMatches(identity.CommonName()) || cryptoutils.GetEnrolledParty(identity.Chain) != traits.EnrollsAs {
		return nil, nil, fmt.Errorf("signing identity %q is not a %s certificate", identity.CommonName(), traits.Description)
	}
	return roots, identity, nil
}

func readTokenSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("token-secret-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token secret: %w", err)
	}
	secret, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("token secret must be hex encoded: %w", err)
	}
	if len(secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	return secret, nil
}
