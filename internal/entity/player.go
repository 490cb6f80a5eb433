package entity

import "strconv"

// Palette is handed out round-robin to joining players.
var Palette = []string{"red", "blue", "green", "yellow", "purple", "orange", "pink", "cyan"}

type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Score int    `json:"score"`
}

// DefaultName - name given to a player that joined without one.
func DefaultName(id int) string {
	return "Player" + strconv.Itoa(id)
}
