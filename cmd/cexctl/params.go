package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/dtm/kex"
	"github.com/modulexcite/cex/pkg/primitive"
)

// paramsCommand provisions a DtmParameters YAML file (spec.md §3) via
// internal/config's gopkg.in/yaml.v3 serialization.
func paramsCommand() *cli.Command {
	return &cli.Command{
		Name:  "params",
		Usage: "generate or inspect a DTM-KEX DtmParameters file",
		Subcommands: []*cli.Command{
			paramsGenerateCommand(),
			paramsShowCommand(),
		},
	}
}

func paramsGenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "write a default DtmParameters YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Required: true},
			&cli.StringFlag{Name: "oid", Value: "X41RNT1R1"},
		},
		Action: func(c *cli.Context) error {
			p := defaultParameters(c.String("oid"))
			return kex.SaveParameters(c.String("out"), p)
		},
	}
}

func paramsShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "load and print a DtmParameters YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true},
		},
		Action: func(c *cli.Context) error {
			p, err := kex.LoadParameters(c.String("path"))
			if err != nil {
				return err
			}
			fmt.Printf("oid=%s auth_pke=%v primary_pke=%v random=%v\n",
				p.OID, p.AuthPkeID, p.PrimaryPkeID, p.RandomKind)
			return nil
		},
	}
}

// defaultParameters mirrors S6's test fixture (spec.md §8): matching
// OID "X41RNT1R1", X25519Box for both asymmetric phases, AES-256-CTR for
// both symmetric phases, small padding/delay bounds suitable for a
// loopback demo rather than a production deployment.
func defaultParameters(oid string) *kex.Parameters {
	var oidBytes [16]byte
	copy(oidBytes[:], oid)

	session := cipher.Description{
		Engine:    primitive.AES,
		KeyBits:   256,
		IVBits:    128,
		Mode:      primitive.ModeCTR,
		Padding:   primitive.PaddingPKCS7,
		BlockBits: 128,
		KDFDigest: primitive.SHA256,
		MacDigest: primitive.SHA256,
	}

	return &kex.Parameters{
		OID:            oidBytes,
		AuthPkeID:      primitive.X25519Box,
		PrimaryPkeID:   primitive.X25519Box,
		AuthSession:    session,
		PrimarySession: session,
		RandomKind:     primitive.CSPRNG,
		PaddingBounds: kex.PaddingBounds{
			AsmKey:    kex.PaddingBound{Pre: 8, Post: 8},
			AsmParams: kex.PaddingBound{Pre: 8, Post: 8},
			SymKey:    kex.PaddingBound{Pre: 4, Post: 4},
			Message:   kex.PaddingBound{Pre: 0, Post: 16},
		},
		DelayBounds: kex.DelayBounds{
			AsmKeyMs:  50,
			SymKeyMs:  20,
			MessageMs: 10,
		},
		PreAuthDigest: primitive.SHA256,
	}
}
