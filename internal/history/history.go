// Package history keeps a local ledger of finished transfers so the CLI
// can list what was sent and received on this machine.
package history

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dropwire/dropwire/internal/errdefs"
)

// Direction of a recorded transfer.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Record is one completed (or failed) transfer.
type Record struct {
	TransferID string    `json:"transfer_id"`
	Name       string    `json:"name"`
	Direction  string    `json:"direction"`
	Mode       string    `json:"mode"`
	Bytes      int64     `json:"bytes"`
	Chunks     int       `json:"chunks"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

// Ledger wraps BadgerDB for transfer records.
type Ledger struct {
	db *badger.DB
}

// Open opens (or creates) the ledger at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to open history db at %s", dbPath)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Put stores a record keyed by transfer id.
func (l *Ledger) Put(rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errdefs.InvalidInput("failed to encode history record: %v", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("transfer:"+rec.TransferID), val)
	})
	if err != nil {
		return errdefs.IOFailure(err, "failed to store history record for %s", rec.TransferID)
	}
	return nil
}

// Get retrieves the record for a transfer id.
func (l *Ledger) Get(transferID string) (Record, error) {
	var rec Record
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("transfer:" + transferID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return rec, errdefs.NotFound(errdefs.ReasonTransferUnknown, "no history for transfer %s", transferID)
	}
	if err != nil {
		return rec, errdefs.IOFailure(err, "failed to read history record for %s", transferID)
	}
	return rec, nil
}

// List returns all records, most recent first.
func (l *Ledger) List() ([]Record, error) {
	var records []Record
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("transfer:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to list history records")
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})
	return records, nil
}
