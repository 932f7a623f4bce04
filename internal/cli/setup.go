package cli

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/secureqr/internal/config"
	"github.com/shinji-kodama/secureqr/internal/logging"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// loadConfig loads the layered configuration named by the global flags.
// apply, if non-nil, lets a command fold its own flags in before the final
// validation, giving flags the highest precedence.
func loadConfig(apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if apply == nil {
		return cfg, nil
	}

	apply(cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "invalid flags", config.JoinValidationErrors(errs))
	}
	return cfg, nil
}

// newLogger builds the logger for cfg. --verbose forces debug level.
func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid log settings", err)
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, nil
}

// newDecoder builds a decoder with the limits of cfg, verifying signatures
// when a certificate is configured.
func newDecoder(cfg config.DecoderConfig) (*secureqr.Decoder, error) {
	opts := []secureqr.Option{
		secureqr.WithMaxDigits(cfg.MaxDigits),
		secureqr.WithMaxDecompressedBytes(cfg.MaxDecompressedBytes),
	}
	if cfg.SignatureCert != "" {
		verifier, err := secureqr.LoadCertificate(cfg.SignatureCert)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError, "failed to load signature certificate", err)
		}
		opts = append(opts, secureqr.WithVerifier(verifier))
		VerboseLog("Verifying signatures with %s", cfg.SignatureCert)
	}
	return secureqr.NewDecoder(opts...), nil
}
