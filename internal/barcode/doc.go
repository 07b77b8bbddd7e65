// Package barcode wraps the gozxing decoder behind a small Backend interface.
//
// A Backend inspects a single image and either returns the decoded symbols,
// ErrNotFound when nothing recognizable is present, or another error. The
// continuous per-frame loop lives in package engine; this package knows
// nothing about cameras.
package barcode
