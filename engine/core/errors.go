package core

import (
	"errors"
)

var (
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrStaleHandle     = errors.New("handle belongs to a previous frame")
	ErrNoHandle        = errors.New("no free handle left")
	ErrWaitTimeout     = errors.New("timed out waiting for device work")
	ErrDeviceLost      = errors.New("device lost")
	ErrNotHostVisible  = errors.New("resource is not host visible")
	ErrFrameInProgress = errors.New("frame already executed, call NextFrame first")
	ErrUnknown         = errors.New("unknown")
)
