//go:build windows

package dispatch

import "errors"

// Windows is outside this repo's grounded scope (the teacher's IOCP
// backend is a JS-runtime-specific wakeup integration, not a general
// worker-pool poller; see DESIGN.md). unsupportedPoller fails fast at
// Init rather than silently no-op-ing.
type unsupportedPoller struct{}

func newPoller() Poller { return unsupportedPoller{} }

var errUnsupportedPlatform = errors.New("dispatch: poller not implemented on this platform")

func (unsupportedPoller) Init() error                                     { return errUnsupportedPlatform }
func (unsupportedPoller) Close() error                                    { return nil }
func (unsupportedPoller) RegisterFD(int, IOEvents, IOCallback) error      { return errUnsupportedPlatform }
func (unsupportedPoller) UnregisterFD(int) error                         { return errUnsupportedPlatform }
func (unsupportedPoller) ModifyFD(int, IOEvents) error                   { return errUnsupportedPlatform }
func (unsupportedPoller) PollIO(int) (int, error)                        { return 0, errUnsupportedPlatform }
