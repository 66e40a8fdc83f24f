// Package keypackage implements CEX component C8: the on-disk
// KeyPackage container (spec.md §4.8, §6.4). A Package is the offline
// counterpart to the DTM-KEX session transport — it persists a
// CipherDescription plus N enumerated subkeys behind an authority header,
// and governs which subkey may be read and when, following an explicit
// on-disk read/validate contract for structured secret material and a
// fixed-layout binary loader style.
package keypackage

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/ids"
	"github.com/modulexcite/cex/pkg/keymaterial"
)

// ExtensionSize is the fixed width of a package's extension key (spec.md
// §6.4's "extension: 16 B").
const ExtensionSize = 16

const (
	headerFixedSize = AuthoritySize + cipher.DescriptionSize + 8 /*created*/ + 4 /*subkey_count*/
)

// Package is an open handle to an on-disk KeyPackage container. Not safe
// for concurrent use from multiple goroutines without external
// synchronization beyond the internal mutex's own read/write atomicity
// guarantee (spec.md §5's reader-writer discipline for keyed objects).
type Package struct {
	mu sync.Mutex

	path string
	file *os.File

	authority   KeyAuthority
	description cipher.Description
	created     int64
	entries     []entry
	extension   [ExtensionSize]byte
	blobSize    uint32
	blobsOff    int64
}

// CreateConfig parameterizes Create. BlobBits defaults to
// Description.KeyBits when zero, so a package's subkeys are
// description-compatible key sizes unless the caller asks for something
// else (e.g. a wider volume-key blob).
type CreateConfig struct {
	Authority   KeyAuthority
	Description cipher.Description
	Count       int
	BlobBits    uint16
	Policy      Policy
	Extension   []byte
	Generator   *keymaterial.Generator
}

// Create allocates a new N-subkey package at path (spec.md §4.8
// "create(authority, description, N) -> handle"): every subkey blob is
// freshly derived from cfg.Generator and all states start Active. The
// file is created exclusively (os.O_EXCL) so Create never silently
// overwrites an existing package.
func Create(path string, cfg CreateConfig) (*Package, error) {
	if cfg.Count <= 0 {
		return nil, errors.New("keypackage: Count must be positive")
	}
	if cfg.Generator == nil {
		return nil, errors.New("keypackage: Generator is required")
	}
	blobBits := cfg.BlobBits
	if blobBits == 0 {
		blobBits = cfg.Description.KeyBits
	}
	blobSize := uint32(blobBits) / 8

	entries := make([]entry, cfg.Count)
	blobs := make([][]byte, cfg.Count)
	seen := make(map[ids.ID]struct{}, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		id, err := ids.New()
		if err != nil {
			return nil, errors.Wrap(err, "generating subkey id")
		}
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateID
		}
		seen[id] = struct{}{}

		mat, err := cfg.Generator.Derive(id[:], blobBits, 0)
		if err != nil {
			return nil, errors.Wrap(err, "deriving subkey blob")
		}
		blobs[i] = append([]byte(nil), mat.Key()...)
		mat.Destroy()

		entries[i] = entry{policy: cfg.Policy, id: id, state: StateActive}
	}

	var extension [ExtensionSize]byte
	copy(extension[:], cfg.Extension)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "creating key-package file")
	}

	p := &Package{
		path:        path,
		file:        f,
		authority:   cfg.Authority,
		description: cfg.Description,
		created:     time.Now().Unix(),
		entries:     entries,
		extension:   extension,
		blobSize:    blobSize,
	}
	if err := p.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := p.writeBlobSize(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	for i, blob := range blobs {
		if err := p.writeBlobAt(i, blob); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "syncing key-package file")
	}
	return p, nil
}

// Open loads an existing package's header (authority, description,
// subkey entries, extension) without reading any subkey blob into
// memory; blobs are only ever materialized by Read/ReadAt.
func Open(path string) (*Package, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "opening key-package file")
	}
	p := &Package{path: path, file: f}
	if err := p.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the underlying file handle. It does not zero any
// in-memory blob, since Read/ReadAt never retain one beyond the copy
// they return to the caller.
func (p *Package) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}

// Count returns the number of subkeys in the package.
func (p *Package) Count() int { return len(p.entries) }

// Authority returns the package's KeyAuthority header.
func (p *Package) Authority() KeyAuthority { return p.authority }

func entriesOffset() int64 { return headerFixedSize }

func (p *Package) extensionOffset() int64 {
	return entriesOffset() + int64(len(p.entries))*entrySize
}

func (p *Package) blobSizeOffset() int64 {
	return p.extensionOffset() + ExtensionSize
}

func (p *Package) blobOffset(index int) int64 {
	return p.blobsOff + int64(index)*int64(p.blobSize)
}

func (p *Package) entryOffset(index int) int64 {
	return entriesOffset() + int64(index)*entrySize
}

// writeHeader serializes the authority, description, created, count, and
// every subkey entry — everything except the extension/blobSize/blobs,
// which writeBlobSize and writeBlobAt own so Create can write blobs one
// at a time without re-marshaling the whole header.
func (p *Package) writeHeader() error {
	buf := make([]byte, headerFixedSize+len(p.entries)*entrySize+ExtensionSize)
	off := 0

	ab, err := p.authority.MarshalBinary()
	if err != nil {
		return err
	}
	off += copy(buf[off:], ab)

	db, err := p.description.MarshalBinary()
	if err != nil {
		return err
	}
	off += copy(buf[off:], db)

	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(p.created))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(p.entries)))
	off += 4

	for _, e := range p.entries {
		off += copy(buf[off:], e.marshalBinary())
	}
	off += copy(buf[off:], p.extension[:])

	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return errors.Wrap(err, "writing key-package header")
	}
	return nil
}

func (p *Package) writeBlobSize() error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.blobSize)
	if _, err := p.file.WriteAt(buf, p.blobSizeOffset()); err != nil {
		return errors.Wrap(err, "writing key-package blob size")
	}
	p.blobsOff = p.blobSizeOffset() + 4
	return nil
}

func (p *Package) writeBlobAt(index int, blob []byte) error {
	if uint32(len(blob)) != p.blobSize {
		return errors.Errorf("keypackage: subkey blob is %d bytes, package expects %d", len(blob), p.blobSize)
	}
	if _, err := p.file.WriteAt(blob, p.blobOffset(index)); err != nil {
		return errors.Wrap(err, "writing subkey blob")
	}
	return nil
}

// writeEntry rewrites just subkey index's policy/id/state triple, used
// by the PostOverwrite state transition so a crash never leaves the
// blob-vs-state pair inconsistent in a way that isn't self-describing
// (spec.md §4.8: "a crash between (b) and (c) is recoverable because
// (c) is inferred from all-zero blob").
func (p *Package) writeEntry(index int) error {
	e := p.entries[index]
	if _, err := p.file.WriteAt(e.marshalBinary(), p.entryOffset(index)); err != nil {
		return errors.Wrap(err, "writing subkey entry")
	}
	return nil
}

func (p *Package) readHeader() error {
	ab := make([]byte, AuthoritySize)
	if _, err := io.ReadFull(p.file, ab); err != nil {
		return errors.Wrap(err, "reading authority header")
	}
	if err := p.authority.UnmarshalBinary(ab); err != nil {
		return err
	}

	db := make([]byte, cipher.DescriptionSize)
	if _, err := io.ReadFull(p.file, db); err != nil {
		return errors.Wrap(err, "reading description")
	}
	if err := p.description.UnmarshalBinary(db); err != nil {
		return err
	}

	rest := make([]byte, 12)
	if _, err := io.ReadFull(p.file, rest); err != nil {
		return errors.Wrap(err, "reading created/subkey_count")
	}
	p.created = int64(binary.LittleEndian.Uint64(rest[0:8]))
	count := binary.LittleEndian.Uint32(rest[8:12])

	p.entries = make([]entry, count)
	eb := make([]byte, entrySize)
	for i := range p.entries {
		if _, err := io.ReadFull(p.file, eb); err != nil {
			return errors.Wrap(err, "reading subkey entry")
		}
		if err := p.entries[i].unmarshalBinary(eb); err != nil {
			return err
		}
	}

	extb := make([]byte, ExtensionSize)
	if _, err := io.ReadFull(p.file, extb); err != nil {
		return errors.Wrap(err, "reading extension")
	}
	copy(p.extension[:], extb)

	sizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(p.file, sizeBuf); err != nil {
		return errors.Wrap(err, "reading blob size")
	}
	p.blobSize = binary.LittleEndian.Uint32(sizeBuf)
	p.blobsOff = p.blobSizeOffset() + 4
	return nil
}

// Cred presents the authentication material a caller must supply for
// Read/ReadAt to honor AuthorityPackageAuth/AuthorityDomainAuth (spec.md
// §4.8: "the caller must present a matching package_tag / domain_id;
// mismatch → Unauthorized").
type Cred struct {
	PackageTag [32]byte
	DomainID   [32]byte
}
