// Package session manages the lifecycle of a single camera capture session:
// picking a device, acquiring its stream, running the decode loop against
// it and releasing everything on stop, switch or failure.
//
// A Manager holds at most one session. Stop and SwitchDevice release the
// current stream before another one is requested, so the process never
// holds two cameras at once.
package session
