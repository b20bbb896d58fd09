// Package record defines the fixed binary layout of one user activity record
// as it is stored in a region slot.
//
// Layout (72 bytes, no padding):
//
//	offset  0  username        [32]byte  zero padded
//	offset 32  command         [32]byte  zero padded
//	offset 64  download_speed  float32   KB/s, native byte order
//	offset 68  upload_speed    float32   KB/s, native byte order
//
// Producers and consumers must run on hosts with the same endianness; this is
// not checked at runtime.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
)

const (
	NameSize = 32 // capacity of the username and command fields

	usernameOffset = 0
	commandOffset  = usernameOffset + NameSize
	downloadOffset = commandOffset + NameSize
	uploadOffset   = downloadOffset + 4

	// Size is the encoded size of a UserRecord.
	Size = uploadOffset + 4
)

// ErrTruncatedInput is returned by Decode when fewer than Size bytes are given.
var ErrTruncatedInput = errors.New("netspy: truncated record input")

// UserRecord is the decoded value of one slot.
type UserRecord struct {
	Username      [NameSize]byte
	Command       [NameSize]byte
	DownloadSpeed float32 // KB/s
	UploadSpeed   float32 // KB/s
}

// New builds a record from loosely typed inputs. Names longer than NameSize
// bytes are cut at NameSize bytes; shorter ones are zero padded.
func New(username, command string, download, upload float32) UserRecord {
	r := UserRecord{DownloadSpeed: download, UploadSpeed: upload}
	copy(r.Username[:], username)
	copy(r.Command[:], command)
	return r
}

// UsernameString returns the username as display text.
func (r UserRecord) UsernameString() string {
	return text(r.Username[:])
}

// CommandString returns the command as display text.
func (r UserRecord) CommandString() string {
	return text(r.Command[:])
}

// text cuts at the first zero byte and replaces invalid UTF-8.
func text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "�")
}

// Encode returns the fixed layout of r.
func Encode(r UserRecord) [Size]byte {
	var b [Size]byte
	copy(b[usernameOffset:commandOffset], r.Username[:])
	copy(b[commandOffset:downloadOffset], r.Command[:])
	binary.NativeEndian.PutUint32(b[downloadOffset:uploadOffset], math.Float32bits(r.DownloadSpeed))
	binary.NativeEndian.PutUint32(b[uploadOffset:Size], math.Float32bits(r.UploadSpeed))
	return b
}

// Decode parses the first Size bytes of b. Any byte pattern decodes; bytes
// past Size are ignored.
func Decode(b []byte) (UserRecord, error) {
	if len(b) < Size {
		return UserRecord{}, ErrTruncatedInput
	}
	var r UserRecord
	copy(r.Username[:], b[usernameOffset:commandOffset])
	copy(r.Command[:], b[commandOffset:downloadOffset])
	r.DownloadSpeed = math.Float32frombits(binary.NativeEndian.Uint32(b[downloadOffset:uploadOffset]))
	r.UploadSpeed = math.Float32frombits(binary.NativeEndian.Uint32(b[uploadOffset:Size]))
	return r, nil
}

// IsZero reports whether every byte of b is zero. Slots that are all zero are
// treated as empty by readers.
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
