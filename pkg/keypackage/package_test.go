package keypackage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

func testDescription() cipher.Description {
	return cipher.Description{
		Engine:  primitive.AES,
		KeyBits: 256,
		IVBits:  128,
		Mode:    primitive.ModeCTR,
		Padding: primitive.PaddingPKCS7,
	}
}

func testGenerator(t *testing.T) *keymaterial.Generator {
	t.Helper()
	gen, err := keymaterial.NewGenerator(primitive.CSPRNG, primitive.SHA256)
	require.NoError(t, err)
	return gen
}

// TestPackagePostOverwriteMonotonicity is P6/S7: create a 10-subkey
// package with PostOverwrite policy, read index 3, assert it returns the
// original bytes, read again and assert SubkeyUnavailable, then inspect
// the file directly for an all-zero blob.
func TestPackagePostOverwriteMonotonicity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.cex")

	pkg, err := Create(path, CreateConfig{
		Description: testDescription(),
		Count:       10,
		Policy:      PolicyPostOverwrite,
		Generator:   testGenerator(t),
	})
	require.NoError(t, err)
	defer pkg.Close()

	_, mat, _, err := pkg.ReadAt(3, Cred{})
	require.NoError(t, err)
	require.NotEmpty(t, mat.Key())
	original := append([]byte(nil), mat.Key()...)
	mat.Destroy()

	_, _, _, err = pkg.ReadAt(3, Cred{})
	require.ErrorIs(t, err, ErrSubkeyUnavailable)

	blobSize := int64(pkg.blobSize)
	offset := pkg.blobOffset(3)
	raw := make([]byte, blobSize)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.ReadAt(raw, offset)
	require.NoError(t, err)

	require.NotEqual(t, original, raw, "blob on disk must have changed after PostOverwrite read")
	for _, b := range raw {
		require.EqualValues(t, 0, b, "blob bytes must be zeroed on disk after a PostOverwrite read")
	}
}

func TestPackageReadByID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.cex")

	pkg, err := Create(path, CreateConfig{
		Description: testDescription(),
		Count:       4,
		Generator:   testGenerator(t),
	})
	require.NoError(t, err)
	defer pkg.Close()

	id := pkg.entries[2].id
	_, mat, _, err := pkg.Read(id, Cred{})
	require.NoError(t, err)
	require.Len(t, mat.Key(), int(pkg.blobSize))
	mat.Destroy()

	var unknown [16]byte
	_, _, _, err = pkg.Read(unknown, Cred{})
	require.ErrorIs(t, err, ErrSubkeyNotFound)
}

func TestPackageVolatileExpiry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.cex")

	pkg, err := Create(path, CreateConfig{
		Description: testDescription(),
		Count:       2,
		Policy:      PolicyVolatile,
		Generator:   testGenerator(t),
		Authority:   KeyAuthority{OptionFlag: 1}, // already-expired Unix tick
	})
	require.NoError(t, err)
	defer pkg.Close()

	_, _, _, err = pkg.ReadAt(0, Cred{})
	require.ErrorIs(t, err, ErrSubkeyExpired)
}

func TestPackageAuthorityPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.cex")

	var tag [32]byte
	copy(tag[:], []byte("package-tag-under-test"))

	pkg, err := Create(path, CreateConfig{
		Description: testDescription(),
		Count:       1,
		Generator:   testGenerator(t),
		Authority: KeyAuthority{
			PackageTag:  tag,
			PolicyFlags: AuthorityPackageAuth,
		},
	})
	require.NoError(t, err)
	defer pkg.Close()

	_, _, _, err = pkg.ReadAt(0, Cred{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, mat, _, err := pkg.ReadAt(0, Cred{PackageTag: tag})
	require.NoError(t, err)
	mat.Destroy()
}

// TestPackageOpenRoundTrip closes and reopens a package from disk and
// verifies the header round-trips exactly (P5-style round-trip, applied
// to the key-package layout instead of the packet codec).
func TestPackageOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.cex")

	authority := KeyAuthority{PolicyFlags: AuthorityDomainAuth}
	copy(authority.DomainID[:], []byte("domain-under-test"))

	created, err := Create(path, CreateConfig{
		Authority:   authority,
		Description: testDescription(),
		Count:       5,
		Extension:   []byte("extension-bytes"),
		Generator:   testGenerator(t),
	})
	require.NoError(t, err)
	require.NoError(t, created.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 5, reopened.Count())
	require.Equal(t, testDescription(), reopened.description)
	require.True(t, reopened.authority.PolicyFlags.Has(AuthorityDomainAuth))
	require.Equal(t, authority.DomainID, reopened.authority.DomainID)
}
