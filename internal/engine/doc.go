// Package engine runs continuous barcode decoding against a camera stream.
//
// An Engine holds the decoder configuration; each call to Start returns a
// Run that reads frames from one stream, presents them to a sink, decodes
// them and reports one Event per processed frame until it is stopped or the
// stream ends.
package engine
