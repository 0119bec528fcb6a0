package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/db"
	"mail-to-quote-go/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Init(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func strPtr(s string) *string { return &s }

func sampleParams(mailID string) CreateQuoteDraftParams {
	return CreateQuoteDraftParams{
		MailID:       mailID,
		RawPayload:   datatypes.JSON(`{"subject":"Demande de devis","body":"5 x ITEM-A"}`),
		ClientCode:   strPtr("C0001"),
		ClientStatus: model.MatchFound,
		Lines: []model.NewLine{
			{
				SupplierCode: "ITEM-A",
				Description:  "Widget A",
				Quantity:     5,
				LineSAPData: model.LineSAPData{
					SAPItemCode: strPtr("A-100"),
					SAPStatus:   model.MatchFound,
					SAPPrice:    decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
					SearchMetadata: model.SearchMetadata{
						SearchType: model.SearchExact, QueryUsed: "ITEM-A", MatchScore: 100,
						SearchTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
					},
				},
			},
			{
				SupplierCode: "ITEM-B",
				Description:  "Widget B",
				Quantity:     2,
				LineSAPData:  model.LineSAPData{SAPStatus: model.MatchNotFound},
			},
			{
				SupplierCode: "ITEM-C",
				Description:  "Widget C",
				Quantity:     1,
				LineSAPData:  model.LineSAPData{SAPStatus: model.MatchAmbiguous},
			},
		},
	}
}

func TestCreateAndGetQuoteDraft(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))

	id, err := repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	draft, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "M1", draft.MailID)
	assert.Equal(t, model.QuoteAnalyzed, draft.Status)
	assert.Equal(t, model.MatchFound, draft.ClientStatus)
	require.NotNil(t, draft.ClientCode)
	assert.Equal(t, "C0001", *draft.ClientCode)
	assert.JSONEq(t, `{"subject":"Demande de devis","body":"5 x ITEM-A"}`, string(draft.RawEmailPayload))

	require.Len(t, draft.Lines, 3)
	assert.Equal(t, []string{"ITEM-A", "ITEM-B", "ITEM-C"},
		[]string{draft.Lines[0].SupplierCode, draft.Lines[1].SupplierCode, draft.Lines[2].SupplierCode})
	assert.Equal(t, 5, draft.Lines[0].Quantity)
	assert.True(t, draft.Lines[0].SAPPrice.Valid)
	assert.True(t, draft.Lines[0].SAPPrice.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.False(t, draft.Lines[1].SAPPrice.Valid)
	assert.Equal(t, model.SearchExact, draft.Lines[0].SearchMetadata.SearchType)

	seen := map[string]bool{}
	for _, l := range draft.Lines {
		assert.False(t, seen[l.LineID], "duplicate line id %s", l.LineID)
		seen[l.LineID] = true
	}

	byMail, err := repo.GetQuoteByMailID(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, id, byMail.ID)
}

func TestCreateQuoteDraftIsIdempotentPerMailID(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewQuoteRepository(conn)

	exists, err := repo.CheckMailIDExists(ctx, "M1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)

	_, err = repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "expected conflict, got %v", err)

	exists, err = repo.CheckMailIDExists(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, exists)

	var drafts, lines int64
	require.NoError(t, conn.Model(&model.QuoteDraft{}).Where("mail_id = ?", "M1").Count(&drafts).Error)
	require.NoError(t, conn.Model(&model.QuoteDraftLine{}).Count(&lines).Error)
	assert.EqualValues(t, 1, drafts)
	assert.EqualValues(t, 3, lines, "the rejected create must not leave orphan lines")
}

func TestCreateQuoteDraftValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))

	p := sampleParams("")
	_, err := repo.CreateQuoteDraft(ctx, p)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	p = sampleParams("M9")
	p.Lines[1].Quantity = 0
	_, err = repo.CreateQuoteDraft(ctx, p)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	exists, err := repo.CheckMailIDExists(ctx, "M9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetQuoteDraftNotFound(t *testing.T) {
	repo := NewQuoteRepository(newTestDB(t))

	_, err := repo.GetQuoteDraft(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))

	_, err = repo.GetQuoteByMailID(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateLineSAPDataLeavesOtherLinesUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))

	id, err := repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)
	before, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)

	target := before.Lines[1]
	line, err := repo.UpdateLineSAPData(ctx, id, target.LineID, model.LineSAPData{
		SAPItemCode: strPtr("B-200"),
		SAPStatus:   model.MatchFound,
		SAPPrice:    decimal.NewNullDecimal(decimal.RequireFromString("3.10")),
		SearchMetadata: model.SearchMetadata{
			SearchType: model.SearchManual, QueryUsed: "B-200", MatchScore: 100, SearchTimestamp: time.Now().UTC(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchFound, line.SAPStatus)
	assert.Equal(t, 2, line.Version)

	after, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)
	require.Len(t, after.Lines, len(before.Lines))

	for i := range before.Lines {
		assert.Equal(t, before.Lines[i].LineID, after.Lines[i].LineID, "line order must not change")
		if before.Lines[i].LineID == target.LineID {
			continue
		}
		assert.Equal(t, before.Lines[i], after.Lines[i])
	}

	updated := after.Lines[1]
	require.NotNil(t, updated.SAPItemCode)
	assert.Equal(t, "B-200", *updated.SAPItemCode)
	assert.Equal(t, model.SearchManual, updated.SearchMetadata.SearchType)
	assert.True(t, updated.SAPPrice.Decimal.Equal(decimal.RequireFromString("3.1")))
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.True(t, line.QuoteUpdatedAt.Equal(after.UpdatedAt))
}

func TestUpdateLineSAPDataStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewQuoteRepository(conn)

	id, err := repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)
	before, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)
	target := before.Lines[1]

	// a concurrent writer bumps the version between the read and the write
	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("test:concurrent_writer", func(db *gorm.DB) {
		if db.Statement.Table != "quote_draft_lines" {
			return
		}
		db.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE quote_draft_lines SET version = version + 1 WHERE line_id = ?", target.LineID)
	}))

	_, err = repo.UpdateLineSAPData(ctx, id, target.LineID, model.LineSAPData{
		SAPItemCode: strPtr("B-200"),
		SAPStatus:   model.MatchFound,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "expected conflict, got %v", err)

	require.NoError(t, conn.Callback().Update().Remove("test:concurrent_writer"))
	after, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Lines, after.Lines, "a lost race writes nothing")
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt))
}

func TestUpdateLineSAPDataNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))

	id, err := repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)

	data := model.LineSAPData{SAPStatus: model.MatchFound}
	_, err = repo.UpdateLineSAPData(ctx, "missing", "line", data)
	assert.True(t, apperr.IsNotFound(err))

	_, err = repo.UpdateLineSAPData(ctx, id, "missing-line", data)
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateStatusIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))

	id, err := repo.CreateQuoteDraft(ctx, sampleParams("M1"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, model.QuoteValidated))
	require.NoError(t, repo.UpdateStatus(ctx, id, model.QuoteValidated))

	err = repo.UpdateStatus(ctx, id, model.QuoteAnalyzed)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, repo.UpdateStatus(ctx, id, model.QuoteSAPCreated))

	draft, err := repo.GetQuoteDraft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteSAPCreated, draft.Status)

	assert.True(t, apperr.IsNotFound(repo.UpdateStatus(ctx, "missing", model.QuoteValidated)))
	assert.True(t, apperr.Is(repo.UpdateStatus(ctx, id, "BOGUS"), apperr.KindValidation))
}
