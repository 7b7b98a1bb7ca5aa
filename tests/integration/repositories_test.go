package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/token"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping integration tests: %v\n", err)
		os.Exit(0)
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func TestVerificationRequestLifecycle(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, requestRepo, _ := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)
	content, err := SeedContent(ctx, testDB.Pool, tenant.ID, "secret-post", "42")
	require.NoError(t, err)

	req, err := requestRepo.Create(ctx, "Reader@Example.com", content.ID, tenant.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, req.Token)
	assert.Nil(t, req.VerifiedAt)
	assert.WithinDuration(t, time.Now().Add(models.VerificationTTL), req.ExpiresAt, time.Minute)

	// Neither the raw email nor the raw token may appear in the stored row
	var emailEnc []byte
	var tokenHash string
	err = testDB.Pool.QueryRow(ctx,
		`SELECT email_enc, token_hash FROM verification_requests WHERE id = $1`, req.ID).Scan(&emailEnc, &tokenHash)
	require.NoError(t, err)
	assert.NotContains(t, string(emailEnc), "reader@example.com")
	assert.NotContains(t, string(emailEnc), "Reader@Example.com")
	assert.NotEqual(t, req.Token, tokenHash, "a dump must not yield live verification links")
	assert.Equal(t, token.Hash(req.Token), tokenHash)

	// Read back decrypts to the normalized email
	fetched, err := requestRepo.GetByToken(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, req.ID, fetched.ID)
	assert.Equal(t, "reader@example.com", fetched.Email)

	// First claim wins, second reads as already-verified
	claimed, err := requestRepo.MarkVerified(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = requestRepo.MarkVerified(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// ESP sync failure is recorded without disturbing verified_at
	require.NoError(t, requestRepo.RecordESPError(ctx, req.ID, "esp timeout"))
	fetched, err = requestRepo.GetByToken(ctx, req.Token)
	require.NoError(t, err)
	assert.NotNil(t, fetched.VerifiedAt)
	require.NotNil(t, fetched.ESPError)
	assert.Equal(t, "esp timeout", *fetched.ESPError)
	assert.NotNil(t, fetched.ESPErrorAt)
}

func TestVerificationRequestTokenUniqueness(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, requestRepo, _ := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)
	content, err := SeedContent(ctx, testDB.Pool, tenant.ID, "secret-post", "42")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		req, err := requestRepo.Create(ctx, fmt.Sprintf("reader%d@example.com", i), content.ID, tenant.ID)
		require.NoError(t, err)
		assert.False(t, seen[req.Token], "token %q issued twice", req.Token)
		seen[req.Token] = true
	}
}

func TestCleanupExpiredKeepsRecentRequests(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, requestRepo, _ := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)
	content, err := SeedContent(ctx, testDB.Pool, tenant.ID, "secret-post", "42")
	require.NoError(t, err)

	old, err := requestRepo.Create(ctx, "old@example.com", content.ID, tenant.ID)
	require.NoError(t, err)
	require.NoError(t, ExpireVerificationRequest(ctx, testDB.Pool, old.ID, 31*24*time.Hour))

	recent, err := requestRepo.Create(ctx, "recent@example.com", content.ID, tenant.ID)
	require.NoError(t, err)

	deleted, err := requestRepo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = requestRepo.GetByToken(ctx, old.Token)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = requestRepo.GetByToken(ctx, recent.Token)
	assert.NoError(t, err)
}

func TestAccessRecordRoundTrip(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, _, recordRepo := testDB.InitializeRepositories()

	tenantA, err := SeedTenant(ctx, testDB.Pool, "Tenant A", 7)
	require.NoError(t, err)
	tenantB, err := SeedTenant(ctx, testDB.Pool, "Tenant B", 14)
	require.NoError(t, err)

	created, err := recordRepo.Create(ctx, &models.AccessRecord{
		TenantID:       tenantA.ID,
		Email:          "Member@Example.com",
		Tags:           []string{"42"},
		CookieToken:    "cookie-token-a",
		LastVerifiedAt: time.Now(),
		CheckStatus:    models.CheckCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", created.Email)
	assert.Equal(t, []string{"42"}, created.Tags)

	// Blind-index lookup normalizes case
	byEmail, err := recordRepo.GetByEmail(ctx, "member@EXAMPLE.com", tenantA.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	// Cookie lookups are tenant-scoped; the wrong tenant reads as a miss
	byCookie, err := recordRepo.GetByCookie(ctx, "cookie-token-a", tenantA.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCookie.ID)

	_, err = recordRepo.GetByCookie(ctx, "cookie-token-a", tenantB.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The cookie column stores only the hash of the token
	var cookieHash string
	err = testDB.Pool.QueryRow(ctx,
		`SELECT cookie_token_hash FROM access_records WHERE id = $1`, created.ID).Scan(&cookieHash)
	require.NoError(t, err)
	assert.Equal(t, token.Hash("cookie-token-a"), cookieHash)

	// One record per visitor per tenant
	_, err = recordRepo.Create(ctx, &models.AccessRecord{
		TenantID:       tenantA.ID,
		Email:          "member@example.com",
		CookieToken:    "cookie-token-other",
		LastVerifiedAt: time.Now(),
		CheckStatus:    models.CheckCompleted,
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRecordVerifiedKeepsSubscriberID(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, _, recordRepo := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)

	subID := "sub-123"
	created, err := recordRepo.Create(ctx, &models.AccessRecord{
		TenantID:       tenant.ID,
		Email:          "member@example.com",
		SubscriberID:   &subID,
		Tags:           []string{"42"},
		CookieToken:    "cookie-token-b",
		LastVerifiedAt: time.Now().Add(-time.Hour),
		CheckStatus:    models.CheckCompleted,
	})
	require.NoError(t, err)

	// nil subscriber ID leaves the stored one in place
	updated, err := recordRepo.RecordVerified(ctx, created.ID, nil, []string{"42", "77"}, "cookie-token-b2")
	require.NoError(t, err)
	require.NotNil(t, updated.SubscriberID)
	assert.Equal(t, "sub-123", *updated.SubscriberID)
	assert.Equal(t, []string{"42", "77"}, updated.Tags)
	assert.True(t, updated.LastVerifiedAt.After(created.LastVerifiedAt))
	assert.Equal(t, models.CheckCompleted, updated.CheckStatus)
	assert.Equal(t, "cookie-token-b2", updated.CookieToken)

	// The cookie token rotated: the old one stops resolving
	_, err = recordRepo.GetByCookie(ctx, "cookie-token-b", tenant.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	byCookie, err := recordRepo.GetByCookie(ctx, "cookie-token-b2", tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCookie.ID)
}

func TestCheckStatusForwardOnly(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, _, recordRepo := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)

	rec, err := recordRepo.Create(ctx, &models.AccessRecord{
		TenantID:       tenant.ID,
		Email:          "member@example.com",
		CookieToken:    "cookie-token-c",
		LastVerifiedAt: time.Now(),
		CheckStatus:    models.CheckCompleted,
	})
	require.NoError(t, err)

	// completed -> pending starts a cycle; a second start loses
	started, err := recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, started)

	// pending -> processing claims the job exactly once
	claimed, err := recordRepo.MarkCheckProcessing(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = recordRepo.MarkCheckProcessing(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// processing -> completed is terminal for the cycle
	require.NoError(t, recordRepo.CompleteCheck(ctx, rec.ID, []string{"42"}))
	assert.ErrorIs(t, recordRepo.CompleteCheck(ctx, rec.ID, []string{"42"}), models.ErrNotFound)
	assert.ErrorIs(t, recordRepo.FailCheck(ctx, rec.ID, "late failure"), models.ErrNotFound)

	fetched, err := recordRepo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckCompleted, fetched.CheckStatus)
	assert.Nil(t, fetched.CheckError)

	// A fresh cycle can fail from pending without ever reaching a worker
	started, err = recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, started)
	require.NoError(t, recordRepo.FailCheck(ctx, rec.ID, "enqueue failed"))

	fetched, err = recordRepo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckFailed, fetched.CheckStatus)
	require.NotNil(t, fetched.CheckError)
	assert.Equal(t, "enqueue failed", *fetched.CheckError)
}

func TestStuckCheckCycleReclaimed(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, _, _, recordRepo := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 7)
	require.NoError(t, err)

	rec, err := recordRepo.Create(ctx, &models.AccessRecord{
		TenantID:       tenant.ID,
		Email:          "member@example.com",
		CookieToken:    "cookie-token-d",
		LastVerifiedAt: time.Now(),
		CheckStatus:    models.CheckCompleted,
	})
	require.NoError(t, err)

	// A worker claims the cycle and then vanishes
	started, err := recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, started)
	claimed, err := recordRepo.MarkCheckProcessing(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	// A recent in-flight cycle still blocks a restart
	started, err = recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, started)

	// Once the cycle has sat without progress past the threshold, a new
	// visit may take it over instead of polling a wedged record forever
	require.NoError(t, BackdateCheckCycle(ctx, testDB.Pool, rec.ID, time.Hour))

	started, err = recordRepo.MarkCheckPending(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, started, "an abandoned cycle must be reclaimable")

	fetched, err := recordRepo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckPending, fetched.CheckStatus)
}

func TestTenantAndContentReads(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	tenantRepo, contentRepo, _, _ := testDB.InitializeRepositories()

	tenant, err := SeedTenant(ctx, testDB.Pool, "Acme Letters", 14)
	require.NoError(t, err)
	content, err := SeedContent(ctx, testDB.Pool, tenant.ID, "secret-post", "42")
	require.NoError(t, err)

	gotTenant, err := tenantRepo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, gotTenant.CacheDurationDays)
	assert.Equal(t, 14*24*time.Hour, gotTenant.CacheWindow())

	bySlug, err := contentRepo.GetBySlug(ctx, "secret-post")
	require.NoError(t, err)
	assert.Equal(t, content.ID, bySlug.ID)
	assert.Equal(t, "42", bySlug.RequiredTagID)

	byID, err := contentRepo.GetByID(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret-post", byID.Slug)

	_, err = contentRepo.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
