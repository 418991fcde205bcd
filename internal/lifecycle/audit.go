package lifecycle

import (
	"encoding/binary"

	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// encodeAudit serializes r for wal.RecordAudit, following the same
// fixed-width binary style internal/wal, internal/aggregate and
// internal/instrument already use for their own payloads.
func encodeAudit(r AuditRecord) []byte {
	idBytes := []byte(r.OrderID)
	coidBytes := []byte(r.ClientOrderID)
	reasonBytes := []byte(r.Reason)

	size := 2 + len(idBytes) + 2 + len(coidBytes) + 2 + len(reasonBytes) +
		1 /*kind*/ + 1 /*pre*/ + 1 /*post*/ + 8 /*ts*/ + 4 /*version*/
	buf := make([]byte, size)
	off := 0

	off = putString(buf, off, idBytes)
	off = putString(buf, off, coidBytes)
	off = putString(buf, off, reasonBytes)
	buf[off] = byte(r.Kind)
	off++
	buf[off] = byte(r.PreStatus)
	off++
	buf[off] = byte(r.PostStatus)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(r.Timestamp))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(r.Version))

	return buf
}

func decodeAudit(buf []byte) (AuditRecord, error) {
	off := 0

	orderID, off1, err := readString(buf, off)
	if err != nil {
		return AuditRecord{}, err
	}
	off = off1

	clientOrderID, off2, err := readString(buf, off)
	if err != nil {
		return AuditRecord{}, err
	}
	off = off2

	reason, off3, err := readString(buf, off)
	if err != nil {
		return AuditRecord{}, err
	}
	off = off3

	const tail = 1 + 1 + 1 + 8 + 4
	if len(buf) < off+tail {
		return AuditRecord{}, coreerr.New(coreerr.KindWalCorrupt, "audit record payload truncated", nil)
	}

	kind := AuditKind(buf[off])
	off++
	pre := buf[off]
	off++
	post := buf[off]
	off++
	ts := fxpt.Ts(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	version := int(binary.BigEndian.Uint32(buf[off:]))

	return AuditRecord{
		OrderID:       orderID,
		ClientOrderID: clientOrderID,
		Kind:          kind,
		PreStatus:     model.OrderStatus(pre),
		PostStatus:    model.OrderStatus(post),
		Reason:        reason,
		Timestamp:     ts,
		Version:       version,
	}, nil
}

func putString(buf []byte, off int, s []byte) int {
	binary.BigEndian.PutUint16(buf[off:], uint16(len(s)))
	off += 2
	off += copy(buf[off:], s)
	return off
}

func readString(buf []byte, off int) (string, int, error) {
	if len(buf) < off+2 {
		return "", 0, coreerr.New(coreerr.KindWalCorrupt, "audit record string header truncated", nil)
	}
	n := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+n {
		return "", 0, coreerr.New(coreerr.KindWalCorrupt, "audit record string body truncated", nil)
	}
	return string(buf[off : off+n]), off + n, nil
}
