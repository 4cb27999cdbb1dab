package certs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/server/tls/certs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	outputDir  string
	validYears int
	hosts      []string
	commonName string
	Cmd        = &cobra.Command{
		Use:   "certs",
		Short: "Generate a self-signed certificate for the QUIC interface",
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&outputDir, "output", "o", "./certs", "output directory")
	Cmd.Flags().IntVarP(&validYears, "years", "y", 10, "certificate validity in years")
	Cmd.Flags().StringSliceVar(&hosts, "host", certs.DefaultHosts, "DNS names and IP addresses the certificate is valid for")
	Cmd.Flags().StringVar(&commonName, "name", "SoftMine Server", "certificate common name")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	logger.Info().Str("dir", outputDir).Int("years", validYears).Strs("hosts", hosts).Msg("generating certificate")

	validFor := time.Until(time.Now().AddDate(validYears, 0, 0))
	pair, err := certs.GenerateServer(commonName, hosts, validFor)
	if err != nil {
		return fmt.Errorf("generate server cert: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	files := map[string][]byte{
		"server.key": pair.KeyPEM,
		"server.crt": pair.CertPEM,
	}
	for name, data := range files {
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		logger.Info().Str("file", path).Msg("generated")
	}

	logger.Info().Msg("certificate generation complete")
	return nil
}
