package model

import "time"

// Score is a per-user daily snapshot of completed tomatoes, written by
// the nightly job. Day uses the "2006-01-02" layout in the server's
// reference zone. The user reference is weak, matching Tomato.
type Score struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	UserID    string    `json:"userId,omitempty" bson:"user_id,omitempty"`
	Day       string    `json:"day" bson:"day"`
	Tomatoes  int64     `json:"tomatoes" bson:"tomatoes"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
