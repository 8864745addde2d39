// Package rtp implements the RAOP wire format and the loss-recovery logic
// of the audio channel.
//
// RAOP reuses the RTP header layout for six packet kinds, told apart by the
// 7-bit payload type:
//
//	0x52  TimingRequest      32 bytes, three NTP timestamps
//	0x53  TimingResponse     32 bytes, three NTP timestamps
//	0x54  Sync               20 bytes, extension bit marks the initial sync
//	0x55  RetransmitRequest   8 bytes, first sequence and count
//	0x56  AudioRetransmit    16 bytes of header, then the audio payload
//	0x60  AudioTransmit      standard 12-byte RTP header, then the payload
//
// Decode classifies a datagram and returns one of the concrete packet types;
// every type marshals back to its wire form. Audio packets are handled with
// github.com/pion/rtp.
//
// RetransmitController watches audio sequence numbers, tracks the gaps and
// decides when to ask the sender for the missing packets. It performs no I/O
// itself: every method returns the RetransmitRequest values to send.
//
// TimingEstimator turns timing responses into an estimate of the sender's
// clock offset and the network round trip.
//
// All multi-byte fields are big-endian and all sequence arithmetic wraps
// modulo 2^16.
package rtp
