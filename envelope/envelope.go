// Package envelope implements the wire-level call/reply framing shared by
// every transport driver. It is pure and stateless: Encode/Decode never
// touch a socket, they only turn a method id and an argument blob (or a
// status and a payload) into the exact byte layout in spec §3/§6, and back.
// A transport.Conn.Recv() always hands back exactly one complete frame, so
// Decode never needs to read past the slice it is given.
//
// Frame layouts (all integers big-endian):
//
//	call:  magic(4) | version(1) | flags(1) | method_id(4) | arg_len(4) | arg_blob
//	reply: magic(4) | version(1) | status(1) | payload_len(4) | payload
//
// Grounded in the teacher's protocol package: same fixed-header-then-body
// layout and the same magic + version validation producing an explicit
// rejection instead of a panic, adapted from an io.Reader stream decode to
// a one-shot byte-slice decode because framing (and the read loop) now
// belongs to the transport driver, not to the codec.
package envelope

import (
	"encoding/binary"

	"ccrpc/status"
)

// Magic identifies a ccrpc frame: ASCII "C2RP".
var Magic = [4]byte{0x43, 0x32, 0x52, 0x50}

const Version byte = 0x01

// callHeaderSize is magic(4) + version(1) + flags(1) + method_id(4) + arg_len(4).
const callHeaderSize = 14

// replyHeaderSize is magic(4) + version(1) + status(1) + payload_len(4).
const replyHeaderSize = 10

// HandshakeMethodID is the reserved method_id value that marks the first
// frame on a new connection as an interface-identity handshake rather than
// a real call.
const HandshakeMethodID uint32 = 0xFFFFFFFF

// Flag bits reserved in the call header.
const (
	FlagNullArg byte = 1 << 0
	FlagCancel  byte = 1 << 1
)

// Call is a decoded call envelope.
type Call struct {
	MethodID uint32
	Flags    byte
	ArgBlob  []byte
}

// Reply is a decoded reply envelope.
type Reply struct {
	Status  status.Code
	Payload []byte
}

// EncodeCall produces the complete wire frame for a call.
func EncodeCall(c Call) []byte {
	buf := make([]byte, callHeaderSize+len(c.ArgBlob))
	copy(buf[0:4], Magic[:])
	buf[4] = Version
	buf[5] = c.Flags
	binary.BigEndian.PutUint32(buf[6:10], c.MethodID)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(c.ArgBlob)))
	copy(buf[callHeaderSize:], c.ArgBlob)
	return buf
}

// DecodeCall parses a complete call frame, rejecting a bad magic/version or
// an arg blob whose declared length would exceed maxPayload (0 disables
// the cap) or overrun the given buffer, always with ERROR_INVALID.
func DecodeCall(data []byte, maxPayload int) (Call, error) {
	if len(data) < callHeaderSize {
		return Call{}, status.Invalid("", "", "short call frame")
	}
	if err := checkMagicVersion(data); err != nil {
		return Call{}, err
	}
	flags := data[5]
	methodID := binary.BigEndian.Uint32(data[6:10])
	argLen := binary.BigEndian.Uint32(data[10:14])
	if maxPayload > 0 && int(argLen) > maxPayload {
		return Call{}, status.Invalid("", "", "payload too large")
	}
	if len(data) < callHeaderSize+int(argLen) {
		return Call{}, status.Invalid("", "", "truncated call frame")
	}
	argBlob := make([]byte, argLen)
	copy(argBlob, data[callHeaderSize:callHeaderSize+int(argLen)])
	return Call{MethodID: methodID, Flags: flags, ArgBlob: argBlob}, nil
}

// EncodeReply produces the complete wire frame for a reply.
func EncodeReply(rep Reply) []byte {
	buf := make([]byte, replyHeaderSize+len(rep.Payload))
	copy(buf[0:4], Magic[:])
	buf[4] = Version
	buf[5] = byte(rep.Status)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(rep.Payload)))
	copy(buf[replyHeaderSize:], rep.Payload)
	return buf
}

// DecodeReply parses a complete reply frame, subject to the same payload
// cap as DecodeCall.
func DecodeReply(data []byte, maxPayload int) (Reply, error) {
	if len(data) < replyHeaderSize {
		return Reply{}, status.Invalid("", "", "short reply frame")
	}
	if err := checkMagicVersion(data); err != nil {
		return Reply{}, err
	}
	st := status.Code(data[5])
	payloadLen := binary.BigEndian.Uint32(data[6:10])
	if maxPayload > 0 && int(payloadLen) > maxPayload {
		return Reply{}, status.Invalid("", "", "payload too large")
	}
	if len(data) < replyHeaderSize+int(payloadLen) {
		return Reply{}, status.Invalid("", "", "truncated reply frame")
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[replyHeaderSize:replyHeaderSize+int(payloadLen)])
	return Reply{Status: st, Payload: payload}, nil
}

func checkMagicVersion(header []byte) error {
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		return status.Invalid("", "", "invalid magic number")
	}
	if header[4] != Version {
		return status.Invalid("", "", "unsupported version")
	}
	return nil
}

// EncodeHandshake builds the arg blob for the interface-identity handshake:
// utf8(namespace) | utf8(name) | u32(major) | u32(minor), each string
// length-prefixed with a u16 so the receiver can find the boundary.
func EncodeHandshake(namespace, name string, major, minor uint32) []byte {
	buf := make([]byte, 0, 2+len(namespace)+2+len(name)+8)
	buf = appendString16(buf, namespace)
	buf = appendString16(buf, name)
	var v [8]byte
	binary.BigEndian.PutUint32(v[0:4], major)
	binary.BigEndian.PutUint32(v[4:8], minor)
	return append(buf, v[:]...)
}

// DecodeHandshake parses the arg blob produced by EncodeHandshake.
func DecodeHandshake(blob []byte) (namespace, name string, major, minor uint32, err error) {
	namespace, rest, err := readString16(blob)
	if err != nil {
		return
	}
	name, rest, err = readString16(rest)
	if err != nil {
		return
	}
	if len(rest) != 8 {
		err = status.Invalid("", "", "malformed handshake blob")
		return
	}
	major = binary.BigEndian.Uint32(rest[0:4])
	minor = binary.BigEndian.Uint32(rest[4:8])
	return
}

func appendString16(buf []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func readString16(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, status.Invalid("", "", "malformed handshake blob")
	}
	l := binary.BigEndian.Uint16(buf[0:2])
	if len(buf) < 2+int(l) {
		return "", nil, status.Invalid("", "", "malformed handshake blob")
	}
	return string(buf[2 : 2+int(l)]), buf[2+int(l):], nil
}
