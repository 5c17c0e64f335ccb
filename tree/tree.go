package tree

import (
	"time"
)

type TreeID = string
type CommentID = string
type DeviceID = string

// Tree is a catalogued campus tree. Optional numeric fields are nil when
// unknown; empty Description and PhotoURL mean none.
type Tree struct {
	ID          TreeID    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Species     string    `db:"species" json:"species"`
	Age         *int      `db:"age" json:"age"`
	Location    string    `db:"location" json:"location"`
	Description string    `db:"description" json:"description"`
	Latitude    *float64  `db:"latitude" json:"latitude"`
	Longitude   *float64  `db:"longitude" json:"longitude"`
	PhotoURL    string    `db:"photo_url" json:"photo_url"`
	Created     time.Time `db:"created_at" json:"created_at"`
}

// HasLocation reports whether both coordinates are known.
func (t *Tree) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

type TreeList []Tree

// Like is an existence-only row; at most one exists per (TreeID, DeviceID).
type Like struct {
	TreeID   TreeID   `db:"tree_id" json:"tree_id"`
	DeviceID DeviceID `db:"device_id" json:"-"`
}

type Comment struct {
	ID         CommentID `db:"id" json:"id"`
	TreeID     TreeID    `db:"tree_id" json:"tree_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Body       string    `db:"comment" json:"comment"`
	Created    time.Time `db:"created_at" json:"created_at"`
}

type CommentList []Comment

// Admin is an account allowed to manage the catalog.
type Admin struct {
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Created      time.Time `db:"created_at"`
}
