package inventory

import (
	"fmt"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
)

// The available-seat counter is deliberately denormalized against the seat
// pool; these two functions are the only writers. Both run inside a
// flight-scoped inventory transaction.

// decrementAvailable is the authoritative claim guard. It must be consulted
// before any seat is marked occupied: it refuses to drive available_seats
// below zero or below what the seat pool can actually back.
func decrementAvailable(tx database.InventoryTx, n int) error {
	f := tx.Flight()
	free, err := tx.CountFreeSeats()
	if err != nil {
		return err
	}
	if f.AvailableSeats-n < 0 || free < n {
		return fmt.Errorf("%w: decrement %d with available=%d free=%d",
			ErrCapacityExceeded, n, f.AvailableSeats, free)
	}
	return tx.SetAvailableSeats(f.AvailableSeats - n)
}

func incrementAvailable(tx database.InventoryTx, n int) error {
	f := tx.Flight()
	if f.AvailableSeats+n > f.TotalSeats {
		return fmt.Errorf("%w: increment %d with available=%d total=%d",
			ErrCapacityExceeded, n, f.AvailableSeats, f.TotalSeats)
	}
	return tx.SetAvailableSeats(f.AvailableSeats + n)
}
