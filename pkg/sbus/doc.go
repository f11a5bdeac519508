// Package sbus decodes the SBUS serial protocol used by RC receivers.
package sbus

// SBUS transmits 25-byte frames at 100000 baud, 8 data bits, even parity
// and 2 stop bits. A frame is laid out as:
//
//   byte 0       start marker 0x0F
//   bytes 1..22  16 channels, 11 bits each, packed LSB first
//   byte 23      flags: bit0 ch17, bit1 ch18, bit2 frame lost, bit3 failsafe
//   byte 24      end marker 0x00
//
// There is no checksum. The decoder locates frame boundaries by looking for
// a start marker followed 24 bytes later by an end marker, then reads whole
// frames while they keep validating. A run of invalid frames longer than
// OutOfSyncThreshold drops the decoder back to byte-by-byte searching.
//
// Producer: RC receiver
// Consumer: flight controller / robot controller
