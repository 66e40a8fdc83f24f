package keypackage

import (
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/keymaterial"
)

// checkCred enforces spec.md §4.8's PackageAuth/DomainAuth policy
// checks. A zero Cred is only accepted when the authority requires
// neither check.
func (p *Package) checkCred(cred Cred) error {
	if p.authority.PolicyFlags.Has(AuthorityPackageAuth) {
		if subtle.ConstantTimeCompare(cred.PackageTag[:], p.authority.PackageTag[:]) != 1 {
			return ErrUnauthorized
		}
	}
	if p.authority.PolicyFlags.Has(AuthorityDomainAuth) {
		if subtle.ConstantTimeCompare(cred.DomainID[:], p.authority.DomainID[:]) != 1 {
			return ErrUnauthorized
		}
	}
	return nil
}

// Read locates the subkey with the given id (spec.md §4.8
// "read(id) -> (description, KeyMaterial, extension)").
func (p *Package) Read(id [16]byte, cred Cred) (cipher.Description, *keymaterial.Material, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkCred(cred); err != nil {
		return cipher.Description{}, nil, nil, err
	}
	for i := range p.entries {
		if p.entries[i].id == id {
			return p.readLocked(i)
		}
	}
	return cipher.Description{}, nil, nil, ErrSubkeyNotFound
}

// ReadAt is Read addressed by position instead of id (spec.md §4.8
// "read_at(stream, index) ... used for tests and for volume-key mode
// where id == index").
func (p *Package) ReadAt(index int, cred Cred) (cipher.Description, *keymaterial.Material, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkCred(cred); err != nil {
		return cipher.Description{}, nil, nil, err
	}
	if index < 0 || index >= len(p.entries) {
		return cipher.Description{}, nil, nil, ErrIndexOutOfRange
	}
	return p.readLocked(index)
}

// readLocked implements the state machine in spec.md §4.8's read
// contract. Caller holds p.mu.
func (p *Package) readLocked(index int) (cipher.Description, *keymaterial.Material, []byte, error) {
	e := p.entries[index]

	if e.state.Has(StateUsed) || e.state.Has(StateExpired) {
		return cipher.Description{}, nil, nil, ErrSubkeyUnavailable
	}
	if e.policy.Has(PolicyVolatile) && p.authority.OptionFlag < nowTicks() {
		p.entries[index].state |= StateExpired
		if err := p.writeEntry(index); err != nil {
			return cipher.Description{}, nil, nil, err
		}
		return cipher.Description{}, nil, nil, ErrSubkeyExpired
	}

	blob := make([]byte, p.blobSize)
	if _, err := p.file.ReadAt(blob, p.blobOffset(index)); err != nil {
		return cipher.Description{}, nil, nil, errors.Wrap(err, "reading subkey blob")
	}

	// A crash between steps (b) and (c) of a prior PostOverwrite read
	// leaves the on-disk state still Active but the blob already
	// zeroed; catch that here instead of handing back an all-zero key
	// as though it were live material (spec.md §4.8's recoverability
	// note names the mechanism, not just the fact that it's detectable).
	if e.policy.Has(PolicyPostOverwrite) && allZero(blob) {
		p.entries[index].state |= StateUsed
		if err := p.writeEntry(index); err != nil {
			return cipher.Description{}, nil, nil, err
		}
		return cipher.Description{}, nil, nil, ErrSubkeyUnavailable
	}

	if e.policy.Has(PolicyPostOverwrite) {
		// (a) copy out already done above (blob); (b) overwrite on disk
		// with zeroes; (c) set state Used; (d) fsync — in that exact
		// order, so a crash between (b) and (c) is recoverable by
		// noticing the blob is all-zero (spec.md §4.8).
		zero := make([]byte, p.blobSize)
		if _, err := p.file.WriteAt(zero, p.blobOffset(index)); err != nil {
			return cipher.Description{}, nil, nil, errors.Wrap(err, "zeroing subkey blob")
		}
		p.entries[index].state |= StateUsed
		if err := p.writeEntry(index); err != nil {
			return cipher.Description{}, nil, nil, err
		}
		if err := p.file.Sync(); err != nil {
			return cipher.Description{}, nil, nil, errors.Wrap(err, "syncing key-package file")
		}
	}

	mat, err := keymaterial.New(blob, nil, e.id[:], uint16(p.blobSize)*8, 0)
	if err != nil {
		return cipher.Description{}, nil, nil, err
	}
	return p.description, mat, append([]byte(nil), p.extension[:]...), nil
}

func nowTicks() int64 { return time.Now().Unix() }

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
