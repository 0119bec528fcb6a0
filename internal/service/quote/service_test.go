package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/collaborator/fake"
	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/db"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/repository"
	"mail-to-quote-go/internal/service/processlog"
	"mail-to-quote-go/internal/service/processor"
	"mail-to-quote-go/internal/service/retry"
)

type fixture struct {
	fakes   *fake.Set
	quotes  *repository.QuoteRepository
	logs    *processlog.Service
	service *Service
	db      *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Init(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	fakes := fake.NewSet()
	quotes := repository.NewQuoteRepository(conn)
	logs := processlog.New(repository.NewLogRepository(conn))

	return &fixture{
		fakes:  fakes,
		quotes: quotes,
		logs:   logs,
		db:     conn,
		service: NewService(
			quotes,
			processor.New(fakes.Analyzer, fakes.Matcher, quotes, logs, m),
			retry.New(quotes, fakes.Searcher, fakes.Pricer, logs, m),
			logs,
			m,
		),
	}
}

func quoteEmail() model.EmailPayload {
	return model.EmailPayload{
		Subject:     "Demande de devis",
		Body:        "Merci de chiffrer 5 x ITEM-A",
		SenderEmail: "buyer@acme.fr",
	}
}

func TestCreateHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.QuoteID)
	assert.Equal(t, 1, res.LinesCount)

	draft, err := f.service.Read(ctx, res.QuoteID)
	require.NoError(t, err)
	require.Len(t, draft.Lines, 1)
	assert.Equal(t, 5, draft.Lines[0].Quantity)
	assert.True(t, draft.ClientStatus.Valid())
}

func TestCreateRedeliveryReturnsExistingQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)
	calls := f.fakes.TotalCalls()

	second, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.QuoteID, second.QuoteID)
	assert.Equal(t, calls, f.fakes.TotalCalls(), "re-delivery must not call collaborators")

	exists, err := f.quotes.CheckMailIDExists(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, exists)

	var count int64
	require.NoError(t, f.db.Model(&model.QuoteDraft{}).Where("mail_id = ?", "M1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateConcurrentDeliveriesStoreOneDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 5
	results := make([]*CreateResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.service.Create(ctx, "M1", quoteEmail())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].QuoteID, r.QuoteID)
		if r.Created {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCreateRacingDeliveriesLeaveCleanAuditLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// every delivery passes the existence check before the first insert
	f.fakes.Analyzer.Delay = 50 * time.Millisecond

	const workers = 4
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.service.Create(ctx, "M1", quoteEmail())
			if assert.NoError(t, err) {
				ids[i] = res.QuoteID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	errorLogs, err := f.logs.ErrorLogs(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, errorLogs)

	entries, err := f.service.Logs(ctx, ids[0])
	require.NoError(t, err)
	created := 0
	for _, e := range entries {
		assert.NotEqual(t, model.StepProcessingError, e.Step)
		if e.Step == model.StepQuoteDraftCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestReadIsPure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)
	calls := f.fakes.TotalCalls()

	first, err := f.service.Read(ctx, res.QuoteID)
	require.NoError(t, err)
	second, err := f.service.Read(ctx, res.QuoteID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, f.fakes.TotalCalls())

	_, err = f.service.Read(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestLogsAndUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)

	entries, err := f.service.Logs(ctx, res.QuoteID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, model.StepWebhookReceived, entries[0].Step)
	assert.Equal(t, model.StepQuoteDraftCreated, entries[len(entries)-1].Step)

	require.NoError(t, f.service.UpdateStatus(ctx, res.QuoteID, model.QuoteValidated))
	assert.True(t, apperr.Is(f.service.UpdateStatus(ctx, res.QuoteID, model.QuoteAnalyzed), apperr.KindValidation))

	_, err = f.service.Logs(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRetryDelegates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Create(ctx, "M1", quoteEmail())
	require.NoError(t, err)
	draft, err := f.service.Read(ctx, res.QuoteID)
	require.NoError(t, err)

	out, err := f.service.Retry(ctx, res.QuoteID, draft.Lines[0].LineID, nil)
	require.NoError(t, err)
	assert.Equal(t, draft.Lines[0].LineID, out.LineID)
	assert.Equal(t, model.MatchNotFound, out.SAPStatus)
}

func TestCreateRequiresMailID(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), "", quoteEmail())
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, f.fakes.TotalCalls())
}
