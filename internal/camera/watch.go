package camera

// DeviceEvent is a hot-plug notification for a video device node.
type DeviceEvent struct {
	Action  string // "add" or "remove"
	DevName string // e.g. /dev/video0
}
