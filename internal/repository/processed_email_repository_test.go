package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
)

func TestProcessedEmailUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessedEmailRepository(newTestDB(t))

	rec, err := repo.FindByEmailID(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, repo.Upsert(ctx, &model.ProcessedEmail{
		EmailID: "E1", SenderEmail: "a@x.com", EmailSubject: "first", ProductCodes: []string{"P1", "P2"},
	}))
	require.NoError(t, repo.Upsert(ctx, &model.ProcessedEmail{
		EmailID: "E1", SenderEmail: "a@x.com", EmailSubject: "second", ProductCodes: []string{"P3"},
	}))

	rec, err = repo.FindByEmailID(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "second", rec.EmailSubject)
	assert.Equal(t, []string{"P3"}, rec.ProductCodes)
	assert.Equal(t, model.EmailPending, rec.Status)
}

func TestProcessedEmailRecentFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessedEmailRepository(newTestDB(t))
	now := time.Now().UTC()

	records := []model.ProcessedEmail{
		{EmailID: "E1", ClientCardCode: "C1", SenderEmail: "s@x.com", ProcessedAt: now.Add(-time.Hour), Status: model.EmailPending},
		{EmailID: "E2", ClientCardCode: "C1", SenderEmail: "s@x.com", ProcessedAt: now.Add(-40 * 24 * time.Hour), Status: model.EmailCompleted},
		{EmailID: "E3", ClientCardCode: "C1", SenderEmail: "s@x.com", ProcessedAt: now.Add(-2 * time.Hour), Status: model.EmailRejected},
		{EmailID: "E4", ClientCardCode: "C2", SenderEmail: "o@x.com", ProcessedAt: now.Add(-time.Minute), Status: model.EmailCompleted},
	}
	for i := range records {
		require.NoError(t, repo.Upsert(ctx, &records[i]))
	}

	since := now.Add(-30 * 24 * time.Hour)
	byClient, err := repo.RecentByClient(ctx, "C1", since, 10)
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, "E1", byClient[0].EmailID)

	bySender, err := repo.RecentBySender(ctx, "o@x.com", since, 10)
	require.NoError(t, err)
	require.Len(t, bySender, 1)
	assert.Equal(t, "E4", bySender[0].EmailID)
}

func TestProcessedEmailUpdateOutcomeAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessedEmailRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &model.ProcessedEmail{EmailID: "E1"}))
	require.NoError(t, repo.Upsert(ctx, &model.ProcessedEmail{EmailID: "E2"}))

	quoteID := "Q-1"
	docEntry := 4711
	require.NoError(t, repo.UpdateOutcome(ctx, "E1", OutcomeUpdate{
		Status: model.EmailCompleted, QuoteID: &quoteID, SAPDocEntry: &docEntry,
	}))

	rec, err := repo.FindByEmailID(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, model.EmailCompleted, rec.Status)
	require.NotNil(t, rec.QuoteID)
	assert.Equal(t, "Q-1", *rec.QuoteID)
	require.NotNil(t, rec.SAPDocEntry)
	assert.Equal(t, 4711, *rec.SAPDocEntry)

	err = repo.UpdateOutcome(ctx, "missing", OutcomeUpdate{Status: model.EmailRejected})
	assert.True(t, apperr.IsNotFound(err))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.EmailCompleted])
	assert.EqualValues(t, 1, counts[model.EmailPending])
}
