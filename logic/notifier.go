package logic

// Notifier delivers events to connected clients. The transport layer
// implements it; room logic never touches sockets directly.
type Notifier interface {
	// ToPlayer sends one event to a single player, if connected.
	ToPlayer(playerID string, event string, data any)
	// ToRoom sends one event to every connected member of the room.
	ToRoom(code string, event string, data any)
	// ToPublic sends one event to the room's public spectators.
	ToPublic(code string, event string, data any)
}
