package main

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/ids"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/keypackage"
	"github.com/modulexcite/cex/pkg/primitive"
)

// keypackageCommand groups the C8 key-package container operations
// (spec.md §4.8): create, read, and inspect.
func keypackageCommand(log *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "keypackage",
		Usage: "create and read on-disk KeyPackage containers (spec.md §4.8)",
		Subcommands: []*cli.Command{
			keypackageCreateCommand(log),
			keypackageReadCommand(log),
			keypackageInspectCommand(),
		},
	}
}

func keypackageCreateCommand(log *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "allocate a new N-subkey package",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Required: true},
			&cli.IntFlag{Name: "count", Value: 10, Usage: "number of subkeys"},
			&cli.BoolFlag{Name: "post-overwrite", Usage: "consume each subkey on read"},
			&cli.StringFlag{Name: "random", Value: "CSPRNG", Usage: "CSPRNG, CtrDrbg, or ChaChaPrng"},
		},
		Action: func(c *cli.Context) error {
			randomKind, err := parsePrngKind(c.String("random"))
			if err != nil {
				return err
			}
			gen, err := keymaterial.NewGenerator(randomKind, primitive.SHA256)
			if err != nil {
				return err
			}

			domainID, err := ids.New()
			if err != nil {
				return err
			}
			packageID, err := ids.New()
			if err != nil {
				return err
			}

			var policy keypackage.Policy
			if c.Bool("post-overwrite") {
				policy |= keypackage.PolicyPostOverwrite
			}

			desc := cipher.Description{
				Engine:    primitive.AES,
				KeyBits:   256,
				IVBits:    128,
				Mode:      primitive.ModeCTR,
				Padding:   primitive.PaddingNone,
				BlockBits: 128,
				KDFDigest: primitive.SHA256,
				MacDigest: primitive.SHA256,
			}

			pkg, err := keypackage.Create(c.String("out"), keypackage.CreateConfig{
				Authority: keypackage.KeyAuthority{
					DomainID:  domainID16(domainID),
					PackageID: domainID16(packageID),
				},
				Description: desc,
				Count:       c.Int("count"),
				Policy:      policy,
				Generator:   gen,
			})
			if err != nil {
				return err
			}
			defer pkg.Close()

			log.Info().Str("path", c.String("out")).Int("count", pkg.Count()).Msg("key-package created")
			return nil
		},
	}
}

func keypackageReadCommand(log *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "read one subkey by index (read_at, spec.md §4.8)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true},
			&cli.IntFlag{Name: "index", Required: true},
		},
		Action: func(c *cli.Context) error {
			pkg, err := keypackage.Open(c.String("path"))
			if err != nil {
				return err
			}
			defer pkg.Close()

			_, mat, _, err := pkg.ReadAt(c.Int("index"), keypackage.Cred{})
			if err != nil {
				return err
			}
			defer mat.Destroy()

			fmt.Println(hex.EncodeToString(mat.Key()))
			log.Info().Int("index", c.Int("index")).Msg("subkey read")
			return nil
		},
	}
}

func keypackageInspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "print a package's authority, description, and subkey count",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true},
		},
		Action: func(c *cli.Context) error {
			pkg, err := keypackage.Open(c.String("path"))
			if err != nil {
				return err
			}
			defer pkg.Close()

			auth := pkg.Authority()
			fmt.Printf("domain_id=%s package_id=%s subkeys=%d\n",
				hex.EncodeToString(auth.DomainID[:]), hex.EncodeToString(auth.PackageID[:]), pkg.Count())
			return nil
		},
	}
}

func parsePrngKind(s string) (primitive.PrngKind, error) {
	switch s {
	case "CSPRNG":
		return primitive.CSPRNG, nil
	case "CtrDrbg":
		return primitive.CtrDrbg, nil
	case "ChaChaPrng":
		return primitive.ChaChaPrng, nil
	default:
		return 0, fmt.Errorf("cexctl: unknown prng %q", s)
	}
}

func domainID16(id ids.ID) [32]byte {
	var out [32]byte
	copy(out[:], id[:])
	return out
}
