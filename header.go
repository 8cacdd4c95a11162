// Leader/header block layout (spec.md §3.2/§6.1), generalized from the
// teacher's flat MariMetaData block (Meta.go) into the two-signature,
// atomic-footer-pointer, lock-block design the spec calls for.
package pstore

import (
	"encoding/binary"
)

const (
	headerMagic1 = "pstoreHD"
	headerMagic2 = "Leader02"

	// LeaderSize is the fixed on-disk size of the leader block, matching
	// the teacher's practice of reserving a whole page for metadata.
	LeaderSize = 4096

	headerVersion uint32 = 1
)

// header layout within the leader's first bytes:
//
//	magic1[8] | magic2[8] | version:u32 | uuid[16] | footer_pos:u64 | lock_block[8]
const (
	offMagic1     = 0
	offMagic2     = offMagic1 + 8
	offVersion    = offMagic2 + 8
	offUUID       = offVersion + 4
	offFooterPos  = offUUID + 16
	offLockBlock  = offFooterPos + 8
	lockBlockSize = 8

	headerLiveSize = offLockBlock + lockBlockSize
)

// transactionLockOffset is the byte, within the leader, that the writer
// lock's advisory file-range lock covers (§5, "Cross-process
// coordination").
const transactionLockOffset = int64(offLockBlock)

func init() {
	if headerLiveSize > LeaderSize {
		panic("pstore: header layout exceeds LeaderSize")
	}
}

// header is the in-memory view of the leader block.
type header struct {
	uuid      UUID
	footerPos Address
}

// initHeader writes a fresh leader block for a newly created database.
func initHeader(buf []byte, id UUID) {
	copy(buf[offMagic1:], headerMagic1)
	copy(buf[offMagic2:], headerMagic2)
	binary.LittleEndian.PutUint32(buf[offVersion:], headerVersion)
	copy(buf[offUUID:], id.Bytes())
	binary.LittleEndian.PutUint64(buf[offFooterPos:], uint64(NullAddress))
}

// loadHeader validates and parses the leader block, returning
// header_corrupt/header_version_mismatch per §6.2.
func loadHeader(buf []byte) (*header, error) {
	if len(buf) < headerLiveSize {
		return nil, newError(CodeHeaderCorrupt, "loadHeader", nil).WithDetail("reason", "short leader")
	}
	if string(buf[offMagic1:offMagic1+8]) != headerMagic1 {
		return nil, newError(CodeHeaderCorrupt, "loadHeader", nil).WithDetail("reason", "bad magic1")
	}
	if string(buf[offMagic2:offMagic2+8]) != headerMagic2 {
		return nil, newError(CodeHeaderCorrupt, "loadHeader", nil).WithDetail("reason", "bad magic2")
	}

	version := binary.LittleEndian.Uint32(buf[offVersion:])
	if version != headerVersion {
		return nil, newError(CodeHeaderVersionMismatch, "loadHeader", nil).
			WithDetail("found", version).WithDetail("expected", headerVersion)
	}

	id, err := UUIDFromBytes(buf[offUUID : offUUID+16])
	if err != nil {
		return nil, newError(CodeHeaderCorrupt, "loadHeader", err).WithDetail("reason", "bad uuid")
	}

	return &header{uuid: id, footerPos: loadFooterPos(buf)}, nil
}

// loadFooterPos reads the header's footer_pos field. It is a plain
// little-endian load, not an atomic one: the field sits at byte offset
// 36, which is not 8-byte aligned.
func loadFooterPos(buf []byte) Address {
	return Address(binary.LittleEndian.Uint64(buf[offFooterPos:]))
}

// storeFooterPos writes footer_pos, the store that makes a new revision
// visible to readers (§4.2 Invariants). It is a plain little-endian
// store, not an atomic one.
func storeFooterPos(buf []byte, pos Address) {
	binary.LittleEndian.PutUint64(buf[offFooterPos:], uint64(pos))
}

