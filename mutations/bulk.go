package mutations

import (
	"context"
	"fmt"

	"github.com/letterdesk/go-newsletter-cache/cache"
	"github.com/letterdesk/go-newsletter-cache/coordinator"
	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// bulkAction describes one bulk verb's patch and message shapes. The
// partial-failure message must keep the exact "<verbed> N ..., M failed"
// form the UI parses into its summary line.
type bulkAction struct {
	patch      model.NewsletterPatch
	successFmt string
	partialFmt string
}

var (
	bulkRead = bulkAction{
		patch:      model.NewsletterPatch{IsRead: model.Bool(true)},
		successFmt: "Marked %d as read",
		partialFmt: "Marked %d as read, %d failed",
	}
	bulkUnread = bulkAction{
		patch:      model.NewsletterPatch{IsRead: model.Bool(false)},
		successFmt: "Marked %d as unread",
		partialFmt: "Marked %d as unread, %d failed",
	}
	bulkArchive = bulkAction{
		patch:      model.NewsletterPatch{IsArchived: model.Bool(true)},
		successFmt: "Archived %d",
		partialFmt: "Archived %d, %d failed",
	}
	bulkUnarchive = bulkAction{
		patch:      model.NewsletterPatch{IsArchived: model.Bool(false)},
		successFmt: "Unarchived %d",
		partialFmt: "Unarchived %d, %d failed",
	}
)

// BulkMarkAsRead marks every id as read in one backend call.
func (m *Newsletters) BulkMarkAsRead(ctx context.Context, ids []string) (model.BatchResult, error) {
	return m.bulk(ctx, ids, bulkRead)
}

// BulkMarkAsUnread marks every id as unread in one backend call.
func (m *Newsletters) BulkMarkAsUnread(ctx context.Context, ids []string) (model.BatchResult, error) {
	return m.bulk(ctx, ids, bulkUnread)
}

// BulkArchive archives every id in one backend call.
func (m *Newsletters) BulkArchive(ctx context.Context, ids []string) (model.BatchResult, error) {
	return m.bulk(ctx, ids, bulkArchive)
}

// BulkUnarchive unarchives every id in one backend call.
func (m *Newsletters) BulkUnarchive(ctx context.Context, ids []string) (model.BatchResult, error) {
	return m.bulk(ctx, ids, bulkUnarchive)
}

// bulk runs one batch operation. An empty id list short-circuits to a
// synthetic success without touching the repository. There is no optimistic
// per-item patch: committing happens through the settled invalidation and
// refetch, which picks up exactly what the server applied. Partial failure
// is reported as an error without undoing the subset that succeeded.
func (m *Newsletters) bulk(ctx context.Context, ids []string, action bulkAction) (model.BatchResult, error) {
	if len(ids) == 0 {
		return model.BatchResult{ProcessedCount: 0, FailedCount: 0, Errors: []string{}}, nil
	}

	userID, err := m.deps.requireUser(ctx)
	if err != nil {
		m.record(err)
		m.deps.toastError(err)
		return model.BatchResult{}, err
	}

	var result model.BatchResult
	err = m.deps.execute(ctx, &m.errState, mutation{
		slot:   "newsletter-bulk" + cache.KeySeparator + userID,
		op:     coordinator.OpNewsletterBulk,
		userID: userID,
		run: func(ctx context.Context) error {
			res, err := m.deps.Repos.Newsletters.BulkUpdate(ctx, ids, action.patch)
			if err != nil {
				return err
			}
			result = res
			if res.FailedCount > 0 {
				return &repository.ServiceError{
					Message: fmt.Sprintf(action.partialFmt, res.ProcessedCount, res.FailedCount),
				}
			}
			return nil
		},
		successToast: fmt.Sprintf(action.successFmt, len(ids)),
	})
	return result, err
}
