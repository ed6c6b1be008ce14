package domain

import "time"

type Room struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Niche       string    `db:"niche" json:"niche"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
