package database

import (
	"log"
	"sync"

	"callagent/internal/call"
)

// Recorder writes call audit rows asynchronously so a slow or unavailable
// database never adds latency to the call path. Rows are dropped with a log
// line when the buffer is full.
type Recorder struct {
	conn *Connection

	rows chan CallHistory
	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a recorder over an open connection
func NewRecorder(conn *Connection) *Recorder {
	return &Recorder{
		conn: conn,
		rows: make(chan CallHistory, 256),
	}
}

// Start launches the background writer
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop flushes queued rows and waits for the writer to exit
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.rows)
	})
	r.wg.Wait()
}

// RecordDispatch queues the initial audit row for a placed call
func (r *Recorder) RecordDispatch(rec call.Record) {
	r.enqueue(rec)
}

// RecordStatus queues an audit row for an observed status change
func (r *Recorder) RecordStatus(rec call.Record) {
	r.enqueue(rec)
}

func (r *Recorder) enqueue(rec call.Record) {
	row := CallHistory{
		CallID:      rec.CallID,
		PhoneNumber: rec.PhoneNumber,
		SessionName: rec.SessionName,
		DispatchRef: rec.DispatchRef,
		Status:      string(rec.Status),
	}

	select {
	case r.rows <- row:
	default:
		log.Printf("[Database] History buffer full, dropping row for call %s", rec.CallID)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for row := range r.rows {
		_, err := r.conn.DB.Exec(
			`INSERT INTO call_history (call_id, phone_number, session_name, dispatch_ref, status)
			 VALUES (?, ?, ?, ?, ?)`,
			row.CallID, row.PhoneNumber, row.SessionName, row.DispatchRef, row.Status,
		)
		if err != nil {
			log.Printf("[Database] Error inserting history row for call %s: %v", row.CallID, err)
		}
	}
}
