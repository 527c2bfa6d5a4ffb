package model

import "time"

// Project groups tomatoes under a user-chosen label. Like Tomato, the
// user reference is weak and survives account deletion as an orphan.
type Project struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	UserID    string    `json:"userId,omitempty" bson:"user_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
