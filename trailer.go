// Per-revision trailer and index header block layout (spec.md §3.2/§3.5/
// §6.1), generalizing the teacher's Version.go loadStartOffset/
// storeStartOffset single-pointer chain into the spec's chained-trailer
// revision log.
package pstore

import (
	"encoding/binary"
	"hash/crc32"
	"time"
)

const (
	trailerMagic1 = "trailer1"
	trailerMagic2 = "trailer2"

	// TrailerSize is the fixed on-disk size of a trailer record:
	// magic1[8] | generation:u64 | size:u64 | prev_generation:u64 | time:u64 | crc:u32 | magic2[8].
	TrailerSize = 8 + 8 + 8 + 8 + 8 + 4 + 8
)

const (
	tOffMagic1     = 0
	tOffGeneration = tOffMagic1 + 8
	tOffSize       = tOffGeneration + 8
	tOffPrevGen    = tOffSize + 8
	tOffTime       = tOffPrevGen + 8
	tOffCRC        = tOffTime + 8
	tOffMagic2     = tOffCRC + 4
)

// trailer is the in-memory view of a revision trailer.
type trailer struct {
	generation uint64
	size       uint64
	prevGen    Address
	timestamp  uint64
	addr       Address // where this trailer itself lives, for prev_generation chaining
}

// encodeTrailer serializes t into buf (must be at least TrailerSize).
// The crc covers magic1 through the time field, matching the "trailer
// covers everything but its own crc and trailing magic" convention
// implied by the field ordering in §6.1.
func encodeTrailer(buf []byte, generation, size uint64, prevGen Address, now time.Time) {
	copy(buf[tOffMagic1:], trailerMagic1)
	binary.LittleEndian.PutUint64(buf[tOffGeneration:], generation)
	binary.LittleEndian.PutUint64(buf[tOffSize:], size)
	binary.LittleEndian.PutUint64(buf[tOffPrevGen:], uint64(prevGen))
	binary.LittleEndian.PutUint64(buf[tOffTime:], uint64(now.UnixNano()))

	crc := crc32.ChecksumIEEE(buf[tOffMagic1:tOffCRC])
	binary.LittleEndian.PutUint32(buf[tOffCRC:], crc)
	copy(buf[tOffMagic2:], trailerMagic2)
}

// decodeTrailer validates and parses a trailer at addr, returning
// footer_corrupt on any signature/crc mismatch.
func decodeTrailer(buf []byte, addr Address) (*trailer, error) {
	if len(buf) < TrailerSize {
		return nil, newError(CodeFooterCorrupt, "decodeTrailer", nil).WithDetail("reason", "short trailer")
	}
	if string(buf[tOffMagic1:tOffMagic1+8]) != trailerMagic1 {
		return nil, newError(CodeFooterCorrupt, "decodeTrailer", nil).WithDetail("reason", "bad magic1")
	}
	if string(buf[tOffMagic2:tOffMagic2+8]) != trailerMagic2 {
		return nil, newError(CodeFooterCorrupt, "decodeTrailer", nil).WithDetail("reason", "bad magic2")
	}

	wantCRC := binary.LittleEndian.Uint32(buf[tOffCRC:])
	gotCRC := crc32.ChecksumIEEE(buf[tOffMagic1:tOffCRC])
	if wantCRC != gotCRC {
		return nil, newError(CodeFooterCorrupt, "decodeTrailer", nil).
			WithDetail("reason", "crc mismatch").WithDetail("want", wantCRC).WithDetail("got", gotCRC)
	}

	return &trailer{
		generation: binary.LittleEndian.Uint64(buf[tOffGeneration:]),
		size:       binary.LittleEndian.Uint64(buf[tOffSize:]),
		prevGen:    Address(binary.LittleEndian.Uint64(buf[tOffPrevGen:])),
		timestamp:  binary.LittleEndian.Uint64(buf[tOffTime:]),
		addr:       addr,
	}, nil
}

// encodeR0Trailer writes the initial empty-database trailer that sits
// immediately after the leader. Its reported size is always zero per
// spec.md's observed-behavior note, regardless of the leader's real size.
func encodeR0Trailer(buf []byte, now time.Time) {
	encodeTrailer(buf, 0, 0, NullAddress, now)
}

const (
	indexHeaderSignature = "IndxHedr"
	// IndexHeaderSize is the fixed on-disk size of an index header block:
	// signature[8] | root:address(tagged) | size:u64.
	IndexHeaderSize = 8 + 8 + 8
)

const (
	ihOffSignature = 0
	ihOffRoot      = ihOffSignature + 8
	ihOffSize      = ihOffRoot + 8
)

// indexHeader is the durable record naming a trie root and entry count,
// written once per flush (§3.5).
type indexHeader struct {
	root IndexPointer
	size uint64
}

func encodeIndexHeader(buf []byte, h indexHeader) {
	copy(buf[ihOffSignature:], indexHeaderSignature)
	binary.LittleEndian.PutUint64(buf[ihOffRoot:], uint64(h.root))
	binary.LittleEndian.PutUint64(buf[ihOffSize:], h.size)
}

func decodeIndexHeader(buf []byte) (indexHeader, error) {
	if len(buf) < IndexHeaderSize {
		return indexHeader{}, newError(CodeIndexCorrupt, "decodeIndexHeader", nil).WithDetail("reason", "short block")
	}
	if string(buf[ihOffSignature:ihOffSignature+8]) != indexHeaderSignature {
		return indexHeader{}, newError(CodeIndexCorrupt, "decodeIndexHeader", nil).WithDetail("reason", "bad signature")
	}
	return indexHeader{
		root: IndexPointer(binary.LittleEndian.Uint64(buf[ihOffRoot:])),
		size: binary.LittleEndian.Uint64(buf[ihOffSize:]),
	}, nil
}
