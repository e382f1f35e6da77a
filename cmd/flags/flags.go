package flags

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/common"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/metrics"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, m *metrics.Metrics) *httpserver.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		Metrics:                  m,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		// Page downloads stream for as long as they take.
		WriteTimeout: 0,
	}
}

// LoadRoots reads the trusted root certificates.
func LoadRoots(cCtx *cli.Context) (*x509.CertPool, error) {
	data, err := os.ReadFile(cCtx.String(RootCAsFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not read root CAs: %w", err)
	}
	return cryptoutils.LoadRootCAs(data)
}

// LoadIdentity reads a signing identity from the chain and key files.
func LoadIdentity(cCtx *cli.Context) (*cryptoutils.Identity, error) {
	chainPEM, err := os.ReadFile(cCtx.String(IdentityChainFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not read certificate chain: %w", err)
	}
	keyPEM, err := os.ReadFile(cCtx.String(IdentityKeyFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not read private key: %w", err)
	}
	return cryptoutils.NewIdentity(chainPEM, keyPEM)
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"LOG_UID"},
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-service",
		Value:   service,
		Usage:   "add 'service' tag to logs",
		EnvVars: []string{"LOG_SERVICE"},
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"LISTEN_ADDR"},
}
var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait in drain HTTP request",
	EnvVars: []string{"DRAIN_SECONDS"},
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"METRICS_ADDR"},
}

var RootCAsFlag = &cli.StringFlag{
	Name:    "root-cas",
	Value:   "rootCA.cert",
	Usage:   "PEM bundle of trusted root certificates",
	EnvVars: []string{"PEP_ROOT_CAS"},
}
var IdentityChainFlag = &cli.StringFlag{
	Name:    "identity-chain",
	Usage:   "PEM certificate chain of the signing identity, leaf first",
	EnvVars: []string{"PEP_IDENTITY_CHAIN"},
}
var IdentityKeyFlag = &cli.StringFlag{
	Name:    "identity-key",
	Usage:   "PEM private key of the signing identity",
	EnvVars: []string{"PEP_IDENTITY_KEY"},
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	RootCAsFlag,
}

var IdentityFlags = []cli.Flag{
	IdentityChainFlag,
	IdentityKeyFlag,
}
