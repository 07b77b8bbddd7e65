package main

import (
	// Registers the V4L2/AVFoundation camera driver with mediadevices.
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/MeKo-Tech/camscan/cmd/camscan/cmd"
)

func main() {
	cmd.Execute()
}
