package cli

import (
	"io"
	"net/http"

	"runwatch/internal/client"
	"runwatch/internal/config"
	"runwatch/internal/stream"
	"runwatch/internal/verbose"
)

// httpClient is the transport used by server-facing commands; tests
// replace it.
var httpClient client.HTTPDoer = &http.Client{}

// newClient builds the run server client from config.
func newClient(cfg config.Config) (*client.Client, error) {
	return client.New(cfg.Server.BaseURL, client.EnvToken(cfg.Server.TokenEnv), httpClient)
}

// controllerOptions translates config and profile into controller options.
func controllerOptions(cfg config.Config, profile config.Profile, runID string, logger *verbose.Logger) (stream.Options, error) {
	machine, err := profile.Machine()
	if err != nil {
		return stream.Options{}, err
	}
	decoder, err := profile.DecoderOptions()
	if err != nil {
		return stream.Options{}, err
	}
	return stream.Options{
		Machine:   machine,
		Decoder:   decoder,
		RunID:     runID,
		Grace:     cfg.Stream.Grace(),
		ChunkSize: cfg.Stream.ChunkBytes,
		Logger:    logger,
	}, nil
}

// newLogger returns a verbose logger on stderr, or nil when disabled.
func newLogger(enabled bool, stderr io.Writer, noColor bool) *verbose.Logger {
	if !enabled {
		return nil
	}
	return verbose.New(stderr, noColor)
}
