// Package camera enumerates video input devices and opens exclusive frame
// streams on them.
//
// Two providers are included: MediaProvider talks to real cameras through
// pion/mediadevices, DirProvider replays directories of images as virtual
// cameras. Both hand out Streams made of Tracks; a stream is released by
// stopping every track (see StopStream).
package camera
