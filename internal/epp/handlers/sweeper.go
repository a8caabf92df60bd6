package handlers

import (
	"context"
	"fmt"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/models"
)

// AutoApproveTransfers server-approves every transfer that has been
// pending longer than the transfer window. Each transfer is applied in
// its own transaction so one failure does not hold back the rest.
// Returns the number of transfers approved.
func AutoApproveTransfers(ctx context.Context, env *Env) (int, error) {
	cutoff := env.now().Add(-env.transferWindow())

	tx := env.Store.Begin(ctx)
	pending, err := tx.PendingTransfersBefore(cutoff)
	tx.Rollback()
	if err != nil {
		return 0, fmt.Errorf("list pending transfers: %w", err)
	}

	approved := 0
	for _, tr := range pending {
		if err := approveTransfer(ctx, env, tr); err != nil {
			logger.Error("Transfer auto-approval failed",
				"name", tr.DomainName, "transfer", tr.ID, "error", err)
			continue
		}
		approved++
	}
	return approved, nil
}

func approveTransfer(ctx context.Context, env *Env, tr *models.Transfer) error {
	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(tr.DomainName)
	if err != nil {
		return err
	}

	tr.Status = models.TransferServerApproved
	if err := tx.SaveTransfer(tr); err != nil {
		return err
	}

	d.ClID = tr.NewClID
	d.ExDate = d.ExDate.Add(registrationYear)
	d.Statuses = normalizeStatuses(d.Statuses.Remove(models.StatusPendingTransfer))
	if err := tx.SaveDomain(d); err != nil {
		return err
	}

	note := fmt.Sprintf("Transfer of %s auto-approved by server.", d.Name)
	if err := tx.EnqueueMessage(tr.OldClID, note); err != nil {
		return err
	}
	if err := tx.EnqueueMessage(tr.NewClID, note); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Info("Transfer auto-approved", "name", d.Name, "from", tr.OldClID, "to", tr.NewClID)
	return nil
}
