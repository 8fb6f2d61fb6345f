package domain

import "github.com/google/uuid"

// Question is one board cell: prompt, canonical answer, and the points shown
// on the board. Free-text submissions are adjudicated by the admin, so the
// canonical answer is display material, not a matching key.
type Question struct {
	ID     uuid.UUID `json:"id"`
	Text   string    `json:"text"`
	Answer string    `json:"answer"`
	Points int       `json:"points"`
}

// Category groups questions under a board column.
type Category struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Game is the authored board content a session is played against. The
// authoring surface owns it; sessions only read it.
type Game struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Categories []Category `json:"categories"`
}

// Question returns the question with the given id, or nil if the game does
// not contain it.
func (g *Game) Question(id uuid.UUID) *Question {
	for ci := range g.Categories {
		for qi := range g.Categories[ci].Questions {
			if g.Categories[ci].Questions[qi].ID == id {
				return &g.Categories[ci].Questions[qi]
			}
		}
	}
	return nil
}
