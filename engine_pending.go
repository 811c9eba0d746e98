package elderauth

import (
	"context"
	"time"

	"github.com/eldernest/elderauth/internal/stores"
	"github.com/eldernest/elderauth/internal/validate"
)

// PendingConnectionByID describes the pendingconnectionbyid operation and its observable behavior.
//
// PendingConnectionByID may return an error when input validation, dependency calls, or security checks fail.
// PendingConnectionByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) PendingConnectionByID(ctx context.Context, id string) (*PendingConnection, error) {
	record, err := e.pendingStore.Get(ctx, id)
	if err != nil {
		return nil, mapPendingErr(err)
	}
	return pendingView(record), nil
}

// PendingConnectionsForFamilyPhone describes the pendingconnectionsforfamilyphone operation and its observable behavior.
//
// PendingConnectionsForFamilyPhone may return an error when input validation, dependency calls, or security checks fail.
// PendingConnectionsForFamilyPhone does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) PendingConnectionsForFamilyPhone(ctx context.Context, rawPhone, countryCode string) ([]*PendingConnection, error) {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	records, err := e.pendingStore.ListPendingForFamilyPhone(ctx, phone)
	if err != nil {
		return nil, mapPendingErr(err)
	}

	views := make([]*PendingConnection, 0, len(records))
	for _, record := range records {
		views = append(views, pendingView(record))
	}
	return views, nil
}

// pendingView projects a store record into the public shape. Store timestamps
// are unix seconds; the public type carries real time values.
func pendingView(record *stores.PendingRecord) *PendingConnection {
	return &PendingConnection{
		ID:             record.ID,
		ElderPhone:     record.ElderPhone,
		ElderName:      record.ElderName,
		ElderAge:       record.ElderAge,
		FamilyPhone:    record.FamilyPhone,
		FamilyRelation: record.FamilyRelation,
		Status:         PendingStatus(record.Status),
		OTPID:          record.OTPID,
		ElderUID:       record.ElderUID,
		FamilyUID:      record.FamilyUID,
		CreatedAt:      time.Unix(record.CreatedAt, 0).UTC(),
		ExpiresAt:      time.Unix(record.ExpiresAt, 0).UTC(),
	}
}
