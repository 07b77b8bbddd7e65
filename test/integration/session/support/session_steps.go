package support

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/testutil"
)

func (testCtx *TestContext) theCameras(table *godog.Table) error {
	if len(table.Rows) == 0 {
		return errors.New("camera table needs a header row")
	}
	devices := make([]camera.Device, 0, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected id and label columns, got %d cells", len(row.Cells))
		}
		devices = append(devices, camera.NewDevice(row.Cells[0].Value, row.Cells[1].Value))
	}
	testCtx.Provider.SetDevices(devices...)
	return nil
}

func (testCtx *TestContext) thereAreNoCameras() error {
	testCtx.Provider.SetDevices()
	return nil
}

func (testCtx *TestContext) theEnvironmentFacingCameraIs(id string) error {
	testCtx.Provider.SetFacing(camera.FacingBack, id)
	return nil
}

func (testCtx *TestContext) openingDeviceIsDenied(id string) error {
	testCtx.Provider.FailOpen(id, fmt.Errorf("%w: %s", camera.ErrPermissionDenied, id))
	return nil
}

func (testCtx *TestContext) theDecoderReportsOnce(text string) error {
	testCtx.Backend.Push(testutil.Found(barcode.FormatEAN13, text))
	return nil
}

func (testCtx *TestContext) theDecoderReportsOnEveryFrame(text string) error {
	testCtx.Backend.SetFallback(testutil.Found(barcode.FormatQR, text))
	return nil
}

func (testCtx *TestContext) theDecoderFindsNothing() error {
	testCtx.Backend.SetFallback(testutil.NotFound())
	return nil
}

func (testCtx *TestContext) theDecoderFailsOnceWith(msg string) error {
	testCtx.Backend.Push(testutil.Failure(errors.New(msg)))
	return nil
}

func (testCtx *TestContext) iAskForTheDefaultDevice() error {
	d, err := testCtx.manager().DefaultDevice(context.Background())
	testCtx.LastDefault, testCtx.LastError = d, err
	return nil
}

func (testCtx *TestContext) theDefaultDeviceIs(id string) error {
	if testCtx.LastError != nil {
		return fmt.Errorf("default selection failed: %w", testCtx.LastError)
	}
	if testCtx.LastDefault.ID != id {
		return fmt.Errorf("expected default device %q, got %q", id, testCtx.LastDefault.ID)
	}
	return nil
}

func (testCtx *TestContext) iStartASessionOnDevice(id string) error {
	testCtx.LastStatus, testCtx.LastError = testCtx.manager().Start(context.Background(), camera.Constraints{DeviceID: id})
	return nil
}

func (testCtx *TestContext) iStartASessionOnTheDefaultDevice() error {
	return testCtx.iStartASessionOnDevice("")
}

func (testCtx *TestContext) iSwitchToDevice(id string) error {
	testCtx.LastStatus, testCtx.LastError = testCtx.manager().SwitchDevice(context.Background(), id)
	return nil
}

func (testCtx *TestContext) iStopTheSession() error {
	testCtx.LastError = testCtx.manager().Stop()
	testCtx.LastStatus = testCtx.manager().Status()
	return nil
}

// iRunTheSequence executes a comma separated list such as
// "start 1, switch 2, stop". Errors of individual calls are ignored; the
// assertions are about held streams.
func (testCtx *TestContext) iRunTheSequence(seq string) error {
	for _, op := range strings.Split(seq, ",") {
		fields := strings.Fields(op)
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch fields[0] {
		case "start":
			_ = testCtx.iStartASessionOnDevice(arg)
		case "switch":
			_ = testCtx.iSwitchToDevice(arg)
		case "stop":
			_ = testCtx.iStopTheSession()
		default:
			return fmt.Errorf("unknown operation %q", fields[0])
		}
		if n := testCtx.Provider.OpenCount(); n > 1 {
			return fmt.Errorf("%d streams open after %q", n, strings.TrimSpace(op))
		}
	}
	return nil
}

func (testCtx *TestContext) framesHaveBeenDecoded(n int) error {
	return eventually(func() bool { return testCtx.Backend.Calls() >= n },
		"only %d of %d frames decoded", testCtx.Backend.Calls(), n)
}

func (testCtx *TestContext) noErrorWasReturned() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("unexpected error: %w", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theStartFailsWith(reason string) error {
	if testCtx.LastError == nil {
		return errors.New("expected the start to fail")
	}
	if got := session.ReasonOf(testCtx.LastError); got != reason {
		return fmt.Errorf("expected reason %q, got %q (%v)", reason, got, testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theSessionIs(state string) error {
	want := session.StateIdle
	if err := want.UnmarshalText([]byte(state)); err != nil {
		return err
	}
	if got := testCtx.manager().State(); got != want {
		return fmt.Errorf("expected session %s, got %s", want, got)
	}
	return nil
}

func (testCtx *TestContext) theSessionIsRunningOnDevice(id string) error {
	st := testCtx.manager().Status()
	if st.State != session.StateRunning {
		return fmt.Errorf("expected a running session, got %s", st.State)
	}
	if st.Device == nil || st.Device.ID != id {
		return fmt.Errorf("expected device %q, got %+v", id, st.Device)
	}
	return nil
}

func (testCtx *TestContext) noCameraStreamIsOpen() error {
	if n := testCtx.Provider.OpenCount(); n != 0 {
		return fmt.Errorf("expected no open streams, got %d", n)
	}
	for _, s := range testCtx.Provider.Streams() {
		if !s.Stopped() {
			return fmt.Errorf("stream %s still has live tracks", s.ID())
		}
	}
	return nil
}

func (testCtx *TestContext) atMostStreamsWereEverOpen(n int) error {
	if got := testCtx.Provider.MaxOpen(); got > n {
		return fmt.Errorf("expected at most %d concurrent streams, saw %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theCameraLogIs(want string) error {
	expected := strings.Split(want, ", ")
	if got := testCtx.Provider.Log(); !slices.Equal(got, expected) {
		return fmt.Errorf("expected camera log %v, got %v", expected, got)
	}
	return nil
}

func (testCtx *TestContext) theScanHandlerReceivesExactlyOnce(text string) error {
	if err := eventually(func() bool { return slices.Contains(testCtx.Scans(), text) },
		"scan handler never received %q", text); err != nil {
		return err
	}
	// Let a few more frames through to catch duplicates.
	calls := testCtx.Backend.Calls()
	if err := testCtx.framesHaveBeenDecoded(calls + 5); err != nil {
		return err
	}
	count := 0
	for _, s := range testCtx.Scans() {
		if s == text {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("expected %q once, got %d times", text, count)
	}
	return nil
}

func (testCtx *TestContext) theScanHandlerReceivesAtLeastTimes(text string, n int) error {
	count := func() int {
		c := 0
		for _, s := range testCtx.Scans() {
			if s == text {
				c++
			}
		}
		return c
	}
	return eventually(func() bool { return count() >= n }, "scan handler received %q %d times, want %d", text, count(), n)
}

func (testCtx *TestContext) theScanHandlerWasNotCalled() error {
	if scans := testCtx.Scans(); len(scans) > 0 {
		return fmt.Errorf("unexpected scans: %v", scans)
	}
	return nil
}

func (testCtx *TestContext) theErrorHandlerWasNotCalled() error {
	if errs := testCtx.Errors(); len(errs) > 0 {
		return fmt.Errorf("unexpected errors: %v", errs)
	}
	return nil
}

func (testCtx *TestContext) theErrorHandlerReceivesAMessageContaining(fragment string) error {
	return eventually(func() bool {
		for _, e := range testCtx.Errors() {
			if strings.Contains(e, fragment) {
				return true
			}
		}
		return false
	}, "error handler never received %q, got %v", fragment, testCtx.Errors())
}

func (testCtx *TestContext) theLastReasonIs(reason string) error {
	return eventually(func() bool { return testCtx.manager().Status().LastReason == reason },
		"expected last reason %q, got %q", reason, testCtx.manager().Status().LastReason)
}

func (testCtx *TestContext) theCameraIsUnplugged() error {
	s := testCtx.Provider.LastStream()
	if s == nil {
		return errors.New("no stream was opened")
	}
	s.End()
	return nil
}

func (testCtx *TestContext) theSessionBecomesIdle() error {
	return eventually(func() bool { return testCtx.manager().State() == session.StateIdle },
		"session still %s", testCtx.manager().State())
}

// RegisterSessionSteps registers the manager-level steps.
func (testCtx *TestContext) RegisterSessionSteps(sc *godog.ScenarioContext) {
	// Given
	sc.Step(`^the cameras:$`, testCtx.theCameras)
	sc.Step(`^there are no cameras$`, testCtx.thereAreNoCameras)
	sc.Step(`^the environment-facing camera is "([^"]*)"$`, testCtx.theEnvironmentFacingCameraIs)
	sc.Step(`^opening device "([^"]*)" is denied$`, testCtx.openingDeviceIsDenied)
	sc.Step(`^the decoder reports "([^"]*)" once$`, testCtx.theDecoderReportsOnce)
	sc.Step(`^the decoder reports "([^"]*)" on every frame$`, testCtx.theDecoderReportsOnEveryFrame)
	sc.Step(`^the decoder finds nothing$`, testCtx.theDecoderFindsNothing)
	sc.Step(`^the decoder fails once with "([^"]*)"$`, testCtx.theDecoderFailsOnceWith)

	// When
	sc.Step(`^I ask for the default device$`, testCtx.iAskForTheDefaultDevice)
	sc.Step(`^I start a session on device "([^"]*)"$`, testCtx.iStartASessionOnDevice)
	sc.Step(`^I start a session on the default device$`, testCtx.iStartASessionOnTheDefaultDevice)
	sc.Step(`^I switch to device "([^"]*)"$`, testCtx.iSwitchToDevice)
	sc.Step(`^I stop the session$`, testCtx.iStopTheSession)
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunTheSequence)
	sc.Step(`^(\d+) frames have been decoded$`, func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		return testCtx.framesHaveBeenDecoded(n)
	})
	sc.Step(`^the camera is unplugged$`, testCtx.theCameraIsUnplugged)

	// Then
	sc.Step(`^the default device is "([^"]*)"$`, testCtx.theDefaultDeviceIs)
	sc.Step(`^no error was returned$`, testCtx.noErrorWasReturned)
	sc.Step(`^the start fails with "([^"]*)"$`, testCtx.theStartFailsWith)
	sc.Step(`^the session is (idle|starting|running)$`, testCtx.theSessionIs)
	sc.Step(`^the session is running on device "([^"]*)"$`, testCtx.theSessionIsRunningOnDevice)
	sc.Step(`^the session becomes idle$`, testCtx.theSessionBecomesIdle)
	sc.Step(`^no camera stream is open$`, testCtx.noCameraStreamIsOpen)
	sc.Step(`^at most (\d+) camera streams? (?:was|were) ever open$`, testCtx.atMostStreamsWereEverOpen)
	sc.Step(`^the camera log is "([^"]*)"$`, testCtx.theCameraLogIs)
	sc.Step(`^the scan handler receives "([^"]*)" exactly once$`, testCtx.theScanHandlerReceivesExactlyOnce)
	sc.Step(`^the scan handler receives "([^"]*)" at least (\d+) times$`, testCtx.theScanHandlerReceivesAtLeastTimes)
	sc.Step(`^the scan handler was not called$`, testCtx.theScanHandlerWasNotCalled)
	sc.Step(`^the error handler was not called$`, testCtx.theErrorHandlerWasNotCalled)
	sc.Step(`^the error handler receives a message containing "([^"]*)"$`, testCtx.theErrorHandlerReceivesAMessageContaining)
	sc.Step(`^the last error reason is "([^"]*)"$`, testCtx.theLastReasonIs)
}
