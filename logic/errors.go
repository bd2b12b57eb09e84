package logic

import "errors"

// Request errors are reported back to the submitting client as a toast
// and never tear down the room.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomLocked      = errors.New("game already in progress")
	ErrNotHost         = errors.New("only the host may do that")
	ErrWrongPhase      = errors.New("not allowed in the current phase")
	ErrUnknownPlayer   = errors.New("player is not in this room")
	ErrNotAlive        = errors.New("dead players cannot act")
	ErrNotEligible     = errors.New("player is not eligible for this action")
	ErrAccusationFinal = errors.New("accusation is final in manual mode")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrInvalidName     = errors.New("invalid player name")
	ErrInvalidRequest  = errors.New("invalid request")
)
