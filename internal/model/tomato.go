package model

import "time"

// Tomato is one completed work unit. The back reference to the user is
// weak: deleting an account keeps its tomatoes and clears UserID, so
// aggregate history survives account deletion.
type Tomato struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	UserID      string    `json:"userId,omitempty" bson:"user_id,omitempty"`
	CompletedAt time.Time `json:"completedAt" bson:"completed_at"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}
