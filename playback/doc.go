// Package playback paces decoded PCM to an output sink against the local
// clock.
//
// The sender timestamps audio in RTP frames on its own clock. ClockSync keeps
// the offset between that remote frame time and the local line time (frames
// elapsed since the buffer started), updated by every sync packet. The
// JitterBuffer stores PCM keyed by remote frame time and its Run loop writes
// it to the sink once it falls due, filling gaps with silence and trimming
// overlaps so the sink always sees a continuous stream.
//
//	jb, err := playback.NewJitterBuffer(format, playback.DefaultConfig(), sink, nil)
//	go jb.Run(ctx)
//	jb.Enqueue(rtpTimestamp, pcm)
//	jb.Sync(nowMinusLatency, initial)
//
// Enqueue never blocks on the sink and never fails: data too late to play or
// too far ahead of the play position is dropped with a warning.
package playback
