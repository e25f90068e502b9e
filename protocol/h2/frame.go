/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package h2 is the hand-built HTTP/2 server state machine: frame codec,
// SETTINGS bring-up, per-stream intake with HPACK, flow control, and the
// round-robin fair response pump (spec §4.5).
package h2

import "encoding/binary"

// Preface is the fixed HTTP/2 connection preface (RFC 9113 §3.4).
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

type FrameType uint8

const (
	FrameData FrameType = iota
	FrameHeaders
	FramePriority
	FrameRSTStream
	FrameSettings
	FramePushPromise
	FramePing
	FrameGoAway
	FrameWindowUpdate
	FrameContinuation
)

const (
	FlagEndStream  = 0x1
	FlagAck        = 0x1
	FlagEndHeaders = 0x4
	FlagPadded     = 0x8
	FlagPriority   = 0x20
)

type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

type ErrorCode uint32

const (
	ErrNoError ErrorCode = iota
	ErrProtocol
	ErrInternal
	ErrFlowControl
	ErrSettingsTimeout
	ErrStreamClosed
	ErrFrameSize
	ErrRefusedStream
	ErrCancel
)

// FrameHeader is the fixed 9-byte header preceding every frame (RFC 9113 §4.1).
type FrameHeader struct {
	Length   uint32
	Type     FrameType
	Flags    uint8
	StreamID uint32
}

const HeaderLen = 9

// ParseFrameHeader reads one 9-byte frame header from p.
func ParseFrameHeader(p []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]),
		Type:     FrameType(p[3]),
		Flags:    p[4],
		StreamID: binary.BigEndian.Uint32(p[5:9]) & 0x7fffffff,
	}
}

// WriteFrameHeader appends a 9-byte frame header to dst.
func WriteFrameHeader(dst []byte, length uint32, typ FrameType, flags uint8, streamID uint32) []byte {
	dst = append(dst, byte(length>>16), byte(length>>8), byte(length))
	dst = append(dst, byte(typ), flags)
	var sidBuf [4]byte
	binary.BigEndian.PutUint32(sidBuf[:], streamID&0x7fffffff)
	return append(dst, sidBuf[:]...)
}

func WriteWindowUpdate(dst []byte, streamID uint32, increment uint32) []byte {
	dst = WriteFrameHeader(dst, 4, FrameWindowUpdate, 0, streamID)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], increment&0x7fffffff)
	return append(dst, buf[:]...)
}

func WriteRSTStream(dst []byte, streamID uint32, ec ErrorCode) []byte {
	dst = WriteFrameHeader(dst, 4, FrameRSTStream, 0, streamID)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(ec))
	return append(dst, buf[:]...)
}

// WriteSettings writes either the server's initial SETTINGS (ack=false,
// ENABLE_PUSH=0 per spec §4.5) or a SETTINGS ack (empty payload).
func WriteSettings(dst []byte, ack bool) []byte {
	if ack {
		return WriteFrameHeader(dst, 0, FrameSettings, FlagAck, 0)
	}
	dst = WriteFrameHeader(dst, 6, FrameSettings, 0, 0)
	var buf [6]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(SettingEnablePush))
	binary.BigEndian.PutUint32(buf[2:6], 0)
	return append(dst, buf[:]...)
}

func WriteGoAway(dst []byte, lastStreamID uint32, ec ErrorCode, debug string) []byte {
	payload := make([]byte, 0, 8+len(debug))
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(buf[4:8], uint32(ec))
	payload = append(payload, buf[:]...)
	payload = append(payload, debug...)
	dst = WriteFrameHeader(dst, uint32(len(payload)), FrameGoAway, 0, 0)
	return append(dst, payload...)
}

func WritePingAck(dst []byte, payload []byte) []byte {
	dst = WriteFrameHeader(dst, uint32(len(payload)), FramePing, FlagAck, 0)
	return append(dst, payload...)
}
