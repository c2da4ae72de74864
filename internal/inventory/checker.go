package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
)

// Report is the consistency checker's diagnostic output for one flight.
// Mismatches indicate external tampering or a prior bug; the checker never
// repairs them and the engine never consults it implicitly.
type Report struct {
	FlightID            uuid.UUID `json:"flightId"`
	TotalSeats          int       `json:"totalSeats"`
	AvailableSeats      int       `json:"availableSeats"`
	FreeSeats           int       `json:"freeSeats"`
	ConfirmedPassengers int       `json:"confirmedPassengers"`
	Mismatches          []string  `json:"mismatches,omitempty"`
	CheckedAt           time.Time `json:"checkedAt"`
}

// Consistent reports whether every invariant held
func (r *Report) Consistent() bool {
	return len(r.Mismatches) == 0
}

// CheckFlight recomputes the flight's FREE-seat count and CONFIRMED
// passenger sum and compares them against the available-seat counter. It is
// a pure read, taken under the flight lock so the snapshot is consistent
// with in-flight transitions.
func (e *Engine) CheckFlight(ctx context.Context, flightID uuid.UUID) (*Report, error) {
	var report *Report
	err := e.store.InventoryTx(ctx, flightID, func(tx database.InventoryTx) error {
		f := tx.Flight()
		free, err := tx.CountFreeSeats()
		if err != nil {
			return err
		}
		confirmed, err := tx.ConfirmedPassengerSum()
		if err != nil {
			return err
		}

		r := &Report{
			FlightID:            f.ID,
			TotalSeats:          f.TotalSeats,
			AvailableSeats:      f.AvailableSeats,
			FreeSeats:           free,
			ConfirmedPassengers: confirmed,
			CheckedAt:           time.Now(),
		}
		if f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
			r.Mismatches = append(r.Mismatches, fmt.Sprintf(
				"available_seats=%d outside range [0,%d]", f.AvailableSeats, f.TotalSeats))
		}
		if f.AvailableSeats != free {
			r.Mismatches = append(r.Mismatches, fmt.Sprintf(
				"available_seats=%d but %d seats are FREE", f.AvailableSeats, free))
		}
		if f.TotalSeats-confirmed != f.AvailableSeats {
			r.Mismatches = append(r.Mismatches, fmt.Sprintf(
				"confirmed passenger sum %d does not reconcile: total_seats=%d - available_seats=%d",
				confirmed, f.TotalSeats, f.AvailableSeats))
		}
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent() {
		e.logger.Warnw("consistency mismatch detected",
			"flightID", flightID, "mismatches", report.Mismatches)
	}
	return report, nil
}
