package util

import "math/rand"

const (
	roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	roomCodeLength  = 6
)

// GenerateRoomCode returns a six-letter join code. Uniqueness is the
// caller's responsibility.
func GenerateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeLetters[rand.Intn(len(roomCodeLetters))]
	}
	return string(code)
}
