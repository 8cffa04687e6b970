package database

import "time"

// CallHistory is one audit row for a call. A call produces one row when it
// is dispatched and one row per observed status change.
type CallHistory struct {
	ID          int64     `db:"id" json:"id"`
	CallID      string    `db:"call_id" json:"call_id"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	SessionName string    `db:"session_name" json:"session_name"`
	DispatchRef string    `db:"dispatch_ref" json:"dispatch_ref"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
