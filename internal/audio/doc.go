// Package audio handles the fixed PCM format used throughout the converter:
// payload decoding, WAV encoding, and the concatenated and timed merges that
// turn a batch of synthesized lines into one deliverable file.
package audio
