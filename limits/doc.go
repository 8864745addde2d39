// Package limits centralizes the size limits applied to untrusted input on
// the RAOP channels.
//
//   - MaxDatagramSize (2048 bytes): receive buffer of every UDP channel.
//     Larger datagrams are truncated by the socket and rejected.
//   - MaxAudioPayload: the largest encrypted ALAC frame that fits a
//     retransmitted audio packet.
//   - MaxFrameSamples: the largest samples-per-frame a stream may announce,
//     which bounds the decoder's scratch buffers.
//
// Each validation function reports ErrEmpty or ErrTooLarge with the actual
// and allowed sizes:
//
//	if err := limits.ValidateDatagram(buf); err != nil {
//	    // drop the datagram
//	}
package limits
