// Command cexctl is the operator-facing CLI over the CEX library: key
// material generation, file encryption, key-package management, and DTM
// parameter provisioning. A urfave/cli/v2 App with one subcommand per
// operator task, automaxprocs set once at startup, and a process-wide
// zerolog logger.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/modulexcite/cex/internal/logger"
	"github.com/modulexcite/cex/internal/procs"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

// Version and BuildTime are overridden at link time (-ldflags).
var (
	Version   = "DEV"
	BuildTime = "unknown"
)

func main() {
	log := logger.New(nil)
	procs.Set(log)

	app := &cli.App{
		Name:    "cexctl",
		Usage:   "symmetric cipher, key-package, and DTM-KEX parameter tooling for CEX",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			pbkdf2Command(),
			encryptCommand(),
			decryptCommand(),
			keypackageCommand(log),
			paramsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("cexctl failed")
	}
}

// pbkdf2Command exercises keymaterial.PBKDF2 directly (spec.md §8 P4/S5).
func pbkdf2Command() *cli.Command {
	return &cli.Command{
		Name:  "pbkdf2",
		Usage: "derive a key with PBKDF2-HMAC and print it as hex",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "salt", Required: true},
			&cli.IntFlag{Name: "iterations", Value: 4096},
			&cli.IntFlag{Name: "length", Value: 32},
			&cli.StringFlag{Name: "digest", Value: "SHA256", Usage: "SHA256 or SHA512"},
		},
		Action: func(c *cli.Context) error {
			digest, err := parseDigestKind(c.String("digest"))
			if err != nil {
				return err
			}
			out, err := keymaterial.PBKDF2(
				[]byte(c.String("password")),
				[]byte(c.String("salt")),
				c.Int("iterations"),
				c.Int("length"),
				digest,
			)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(out))
			return nil
		},
	}
}

func parseDigestKind(s string) (primitive.DigestKind, error) {
	switch s {
	case "SHA256":
		return primitive.SHA256, nil
	case "SHA512":
		return primitive.SHA512, nil
	default:
		return 0, fmt.Errorf("cexctl: unknown digest %q (want SHA256 or SHA512)", s)
	}
}

func parseEngineKind(s string) (primitive.EngineKind, error) {
	switch s {
	case "AES":
		return primitive.AES, nil
	case "ChaCha20":
		return primitive.ChaCha20, nil
	default:
		return 0, fmt.Errorf("cexctl: unknown engine %q (want AES or ChaCha20)", s)
	}
}

func parseModeKind(s string) (primitive.CipherMode, error) {
	switch s {
	case "CTR":
		return primitive.ModeCTR, nil
	case "CBC":
		return primitive.ModeCBC, nil
	case "CFB":
		return primitive.ModeCFB, nil
	case "OFB":
		return primitive.ModeOFB, nil
	default:
		return 0, fmt.Errorf("cexctl: unknown mode %q (want CTR, CBC, CFB, or OFB)", s)
	}
}
