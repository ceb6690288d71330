package domain

// RoomID is the opaque token a caller uses to name a shared canvas.
// The relay never validates, trims or caps it.
type RoomID string

// RoomStats is a point-in-time view of one live room.
type RoomStats struct {
	ID      RoomID `json:"id"`
	Members int    `json:"members"`
}
