package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

func applyEffects(
	ctx context.Context,
	tx *sql.Tx,
	fn domain.EffectsFunc,
	booking *models.Booking,
	request *models.ServiceRequest,
) error {
	if fn == nil {
		return nil
	}
	effects, err := fn(booking, request)
	if err != nil {
		return fmt.Errorf("failed to build effects: %w", err)
	}
	return writeEffects(ctx, tx, effects)
}

func writeEffects(ctx context.Context, q querier, effects domain.Effects) error {
	now := utc(time.Now())
	for _, n := range effects.Notifications {
		if err := insertNotification(ctx, q, n, now); err != nil {
			return err
		}
	}
	for _, t := range effects.Tasks {
		if err := insertOutboxTask(ctx, q, t, now); err != nil {
			return err
		}
	}
	return nil
}
