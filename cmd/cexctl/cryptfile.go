package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

// fileMagic tags cexctl's own on-disk encrypted-file container; it has no
// relationship to CEX's DTM packet magic (spec.md §4.5) or any on-disk
// key-package layout (spec.md §6.4) — it is purely cexctl's envelope
// around a CipherDescription-driven transform, so a file produced by
// encryptCommand can be round-tripped by decryptCommand without the
// operator separately tracking salt/engine/mode/iterations by hand.
const fileMagic = "CEXF"

const saltSize = 16

func cryptFileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true, Usage: "input file path"},
		&cli.StringFlag{Name: "out", Required: true, Usage: "output file path"},
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "engine", Value: "AES", Usage: "AES (ChaCha20 is parsed but rejected: it has no block-mode engine)"},
		&cli.StringFlag{Name: "mode", Value: "CTR", Usage: "CTR, CBC, CFB, or OFB"},
		&cli.IntFlag{Name: "key-bits", Value: 256},
		&cli.IntFlag{Name: "iterations", Value: 100000},
		&cli.BoolFlag{Name: "parallel", Value: true, Usage: "use the parallel transform path (spec.md §4.3)"},
	}
}

func encryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt",
		Usage: "encrypt a file with a password-derived key (pkg/cipher, pkg/stream)",
		Flags: cryptFileFlags(),
		Action: func(c *cli.Context) error {
			salt := make([]byte, saltSize)
			if _, err := io.ReadFull(rand.Reader, salt); err != nil {
				return fmt.Errorf("cexctl: generating salt: %w", err)
			}
			return runCryptFile(c, true, salt)
		},
	}
}

func decryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "decrypt",
		Usage: "decrypt a file produced by \"cexctl encrypt\"",
		Flags: cryptFileFlags(),
		Action: func(c *cli.Context) error {
			return runCryptFile(c, false, nil)
		},
	}
}

// runCryptFile implements both directions of the envelope described by
// fileMagic. On encrypt, salt is freshly generated by the caller and
// written into the header; on decrypt, it is read back out of the input
// file's header instead.
func runCryptFile(c *cli.Context, isEncrypt bool, salt []byte) error {
	engineKind, err := parseEngineKind(c.String("engine"))
	if err != nil {
		return err
	}
	modeKind, err := parseModeKind(c.String("mode"))
	if err != nil {
		return err
	}
	keyBits := c.Int("key-bits")
	iterations := c.Int("iterations")

	in, err := os.Open(c.String("in"))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(c.String("out"), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	eng, err := cipher.New(modeKind, engineKind, 0)
	if err != nil {
		return err
	}
	eng.SetIsParallel(c.Bool("parallel"))
	ivBits := eng.BlockSize() * 8

	if isEncrypt {
		if err := writeHeader(out, salt, engineKind, modeKind, keyBits, ivBits, iterations); err != nil {
			return err
		}
	} else {
		hdr, err := readHeader(in)
		if err != nil {
			return err
		}
		salt = hdr.salt
		engineKind, modeKind, keyBits, ivBits, iterations = hdr.engine, hdr.mode, hdr.keyBits, hdr.ivBits, hdr.iterations
		eng, err = cipher.New(modeKind, engineKind, 0)
		if err != nil {
			return err
		}
		eng.SetIsParallel(c.Bool("parallel"))
	}

	derived, err := keymaterial.PBKDF2([]byte(c.String("password")), salt, iterations, keyBits/8+ivBits/8, primitive.SHA256)
	if err != nil {
		return err
	}
	mat, err := keymaterial.New(derived[:keyBits/8], derived[keyBits/8:], nil, uint16(keyBits), uint16(ivBits))
	if err != nil {
		return err
	}
	defer mat.Destroy()

	if err := eng.Init(isEncrypt, mat); err != nil {
		return err
	}

	plain, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	needsPadding := modeKind == primitive.ModeCBC || modeKind == primitive.ModeCFB
	blockSize := eng.BlockSize()

	if isEncrypt {
		if needsPadding {
			plain, err = cipher.Pad(plain, blockSize, primitive.PaddingPKCS7)
			if err != nil {
				return err
			}
		}
		ciphertext := make([]byte, len(plain))
		if err := eng.Transform(plain, ciphertext); err != nil {
			return err
		}
		_, err = out.Write(ciphertext)
		return err
	}

	plaintext := make([]byte, len(plain))
	if err := eng.Transform(plain, plaintext); err != nil {
		return err
	}
	if needsPadding {
		plaintext, err = cipher.Unpad(plaintext, blockSize, primitive.PaddingPKCS7)
		if err != nil {
			return err
		}
	}
	_, err = out.Write(plaintext)
	return err
}

type fileHeader struct {
	salt       []byte
	engine     primitive.EngineKind
	mode       primitive.CipherMode
	keyBits    int
	ivBits     int
	iterations int
}

func writeHeader(w io.Writer, salt []byte, engine primitive.EngineKind, mode primitive.CipherMode, keyBits, ivBits, iterations int) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return err
	}
	if _, err := w.Write(salt); err != nil {
		return err
	}
	var fixed [2 + 2 + 2 + 2 + 4]byte
	binary.LittleEndian.PutUint16(fixed[0:2], uint16(engine))
	binary.LittleEndian.PutUint16(fixed[2:4], uint16(mode))
	binary.LittleEndian.PutUint16(fixed[4:6], uint16(keyBits))
	binary.LittleEndian.PutUint16(fixed[6:8], uint16(ivBits))
	binary.LittleEndian.PutUint32(fixed[8:12], uint32(iterations))
	_, err := w.Write(fixed[:])
	return err
}

func readHeader(r io.Reader) (fileHeader, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fileHeader{}, fmt.Errorf("cexctl: reading file header: %w", err)
	}
	if string(magic) != fileMagic {
		return fileHeader{}, fmt.Errorf("cexctl: not a cexctl-encrypted file (bad magic)")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return fileHeader{}, fmt.Errorf("cexctl: reading salt: %w", err)
	}
	var fixed [12]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return fileHeader{}, fmt.Errorf("cexctl: reading header: %w", err)
	}
	return fileHeader{
		salt:       salt,
		engine:     primitive.EngineKind(binary.LittleEndian.Uint16(fixed[0:2])),
		mode:       primitive.CipherMode(binary.LittleEndian.Uint16(fixed[2:4])),
		keyBits:    int(binary.LittleEndian.Uint16(fixed[4:6])),
		ivBits:     int(binary.LittleEndian.Uint16(fixed[6:8])),
		iterations: int(binary.LittleEndian.Uint32(fixed[8:12])),
	}, nil
}
