// Package item defines the on-disk and in-memory wire schema for a single
// cache entry. Every other component treats an Image as an opaque,
// self-describing byte blob; only this package knows its layout.
package item

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags bits. LINKED tracks hash-table/LRU membership (spec I2); TOMBSTONE
// marks an explicit delete record written to a durability log, replacing
// the ambiguous "unset LINKED means delete" reading of the original source.
const (
	FlagLinked    uint8 = 1 << 0
	FlagTombstone uint8 = 1 << 1
)

const (
	magic   uint16 = 0xC4E1
	version uint8  = 1

	// HeaderSize is the fixed portion of an Image preceding key and value.
	HeaderSize = 28

	// MaxKeyLen matches the memcached-class key length ceiling from spec.md §3.
	MaxKeyLen = 250
)

var (
	ErrKeyTooLong    = errors.New("item: key exceeds maximum length")
	ErrTruncated     = errors.New("item: image truncated")
	ErrBadMagic      = errors.New("item: bad magic")
	ErrBadVersion    = errors.New("item: unsupported version")
	ErrLengthOverrun = errors.New("item: declared length exceeds buffer")
)

// Image is a decoded view over a single item's wire representation.
type Image struct {
	Flags    uint8
	CAS      uint64
	Exptime  uint32
	Refcount uint32
	Key      []byte
	Value    []byte
}

// Linked reports whether the LINKED flag is set.
func (im *Image) Linked() bool { return im.Flags&FlagLinked != 0 }

// Tombstone reports whether this image is an explicit delete marker.
func (im *Image) Tombstone() bool { return im.Flags&FlagTombstone != 0 }

// Ntotal returns the total encoded length of an image with the given key
// and value lengths: header + key + value.
func Ntotal(keyLen, valueLen int) int { return HeaderSize + keyLen + valueLen }

// Len returns the encoded length of this specific image.
func (im *Image) Len() int { return Ntotal(len(im.Key), len(im.Value)) }

// NewLinked constructs a live, linked item image.
func NewLinked(key, value []byte, flags uint8, exptime uint32, cas uint64) (*Image, error) {
	if len(key) > MaxKeyLen {
		return nil, ErrKeyTooLong
	}
	return &Image{
		Flags:   flags | FlagLinked,
		CAS:     cas,
		Exptime: exptime,
		Key:     key,
		Value:   value,
	}, nil
}

// Tombstone builds a zero-value-length image carrying only the key and the
// TOMBSTONE flag, the explicit delete record shape required by SPEC_FULL.md
// §3 (resolving the ambiguous "unset LINKED means delete" reading).
func Tombstone(key []byte, cas uint64) (*Image, error) {
	if len(key) > MaxKeyLen {
		return nil, ErrKeyTooLong
	}
	return &Image{
		Flags: FlagTombstone,
		CAS:   cas,
		Key:   key,
	}, nil
}

// Encode serializes im into dst, growing and returning a slice if dst is
// too small. Integers are always encoded little-endian, whatever the host
// byte order (explicit, not a raw struct blit) per SPEC_FULL.md §3.
func Encode(im *Image, dst []byte) []byte {
	n := im.Len()
	if cap(dst) < n {
		dst = make([]byte, n)
	} else {
		dst = dst[:n]
	}

	binary.LittleEndian.PutUint16(dst[0:2], magic)
	dst[2] = version
	dst[3] = im.Flags
	binary.LittleEndian.PutUint64(dst[4:12], im.CAS)
	binary.LittleEndian.PutUint32(dst[12:16], im.Exptime)
	binary.LittleEndian.PutUint32(dst[16:20], im.Refcount)
	binary.LittleEndian.PutUint16(dst[20:22], uint16(len(im.Key)))
	// bytes 22:24 reserved, left zero
	binary.LittleEndian.PutUint32(dst[24:28], uint32(len(im.Value)))
	copy(dst[28:28+len(im.Key)], im.Key)
	copy(dst[28+len(im.Key):], im.Value)
	return dst
}

// Decode parses a single Image from the front of buf, returning the image
// and the number of bytes consumed. It does not copy key/value bytes;
// callers that retain the Image beyond the lifetime of buf must clone it.
func Decode(buf []byte) (*Image, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrTruncated
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != magic {
		return nil, 0, ErrBadMagic
	}
	if buf[2] != version {
		return nil, 0, ErrBadVersion
	}

	im := &Image{
		Flags:    buf[3],
		CAS:      binary.LittleEndian.Uint64(buf[4:12]),
		Exptime:  binary.LittleEndian.Uint32(buf[12:16]),
		Refcount: binary.LittleEndian.Uint32(buf[16:20]),
	}
	keyLen := int(binary.LittleEndian.Uint16(buf[20:22]))
	valueLen := int(binary.LittleEndian.Uint32(buf[24:28]))
	n := Ntotal(keyLen, valueLen)
	if n < 0 || len(buf) < n {
		return nil, 0, ErrLengthOverrun
	}

	im.Key = buf[28 : 28+keyLen]
	im.Value = buf[28+keyLen : n]
	return im, n, nil
}

// Clone returns a deep copy of im, suitable for handing to a log writer
// that must own its data independent of the producer's lifecycle (spec I5).
func (im *Image) Clone() *Image {
	cp := *im
	cp.Key = append([]byte(nil), im.Key...)
	cp.Value = append([]byte(nil), im.Value...)
	return &cp
}

// String is a compact debug representation, never used for wire data.
func (im *Image) String() string {
	return fmt.Sprintf("item{key=%q flags=%#x cas=%d vlen=%d}", im.Key, im.Flags, im.CAS, len(im.Value))
}
