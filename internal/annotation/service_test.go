package annotation

import (
	"context"
	"testing"
	"time"

	"markdown-annotator/internal/document"
	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/permission"
	"markdown-annotator/internal/render"
	"markdown-annotator/internal/sharing"
	"markdown-annotator/internal/testutil"
	"markdown-annotator/internal/worker"
	"markdown-annotator/redis"

	"github.com/alicebob/miniredis/v2"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	repo    AnnotationRepository
	shares  sharing.ShareRepository
	docs    document.Service
	svc     Service
	metrics *metrics.Metrics
	pool    *worker.WorkerPool
	alice   *domain.User
	bob     *domain.User
	carol   *domain.User
}

func newFixture(t *testing.T, cache *redis.Cache) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	m := metrics.NewNop()

	docRepo := document.NewRepository(gdb)
	versions := document.NewVersionStore(docRepo, render.NewMarkdownRenderer(), m)
	shares := sharing.NewRepository(gdb)
	resolver := permission.NewResolver(shares)
	pool := worker.NewWorkerPool(1, 16, time.Second)
	t.Cleanup(pool.Shutdown)

	repo := NewRepository(gdb)
	f := &fixture{
		db:      gdb,
		repo:    repo,
		shares:  shares,
		docs:    document.NewService(docRepo, versions, resolver, cache, m, "http://localhost:8080"),
		svc:     NewService(repo, docRepo, versions, resolver, cache, pool, m),
		metrics: m,
		pool:    pool,
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := &domain.User{Username: name, PasswordHash: "hash"}
		require.NoError(t, gdb.Create(u).Error)
		switch name {
		case "alice":
			f.alice = u
		case "bob":
			f.bob = u
		case "carol":
			f.carol = u
		}
	}
	return f
}

func (f *fixture) newDoc(t *testing.T, markdown string) *domain.Document {
	doc, err := f.docs.CreateDocument(context.Background(), f.alice, "Doc1", markdown)
	require.NoError(t, err)
	return doc
}

func (f *fixture) grant(t *testing.T, docID uint64, username, role string) {
	_, err := f.shares.Grant(context.Background(), docID, username, role)
	require.NoError(t, err)
}

func offsets(start, end int) CreateInput {
	return CreateInput{Start: start, End: end}
}

// Annotations stay on the version they were created against.
func TestService_AnnotationLifecycleAcrossVersions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	_, err := f.svc.Create(ctx, doc.ID, f.bob, offsets(0, 5))
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	f.grant(t, doc.ID, "bob", "annotator")

	created, err := f.svc.Create(ctx, doc.ID, f.bob, offsets(0, 5))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Hello", created.Anchor)
	assert.Equal(t, uint64(1), created.VersionNumber)

	list, err := f.svc.List(ctx, doc.ID, f.bob, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].CanDelete)
	assert.Equal(t, "bob", list[0].User)

	list, err = f.svc.List(ctx, doc.ID, f.carol, doc.ShareToken)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].CanDelete)

	_, err = f.docs.Save(ctx, doc.ID, f.alice, "Hello brave new world")
	require.NoError(t, err)

	list, err = f.svc.List(ctx, doc.ID, f.alice, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	old, err := f.svc.Get(ctx, created.ID, f.alice, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), old.VersionNumber)
	assert.Equal(t, created.VersionID, old.VersionID)
	assert.True(t, old.CanDelete, "owner can edit, so can delete")
}

func TestService_CreateErrorOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	_, err := f.svc.Create(ctx, doc.ID, nil, offsets(0, 5))
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	_, err = f.svc.Create(ctx, 999, f.alice, offsets(0, 5))
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.svc.Create(ctx, doc.ID, f.alice, CreateInput{Start: -1, End: -1, Anchor: "zzz"})
	assert.True(t, errors.Is(err, errors.CodeInvalidAnchor))
	assert.Contains(t, err.Error(), "len=11")
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.AnchorResolutions.WithLabelValues("failed")))

	require.NoError(t, f.docs.DeleteVersion(ctx, doc.ID, 1, f.alice))

	// a viewer is refused before the missing version is noticed
	f.grant(t, doc.ID, "carol", "viewer")
	_, err = f.svc.Create(ctx, doc.ID, f.carol, offsets(0, 5))
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.svc.Create(ctx, doc.ID, f.alice, offsets(0, 5))
	assert.True(t, errors.Is(err, errors.CodeNoVersion))

	list, err := f.svc.List(ctx, doc.ID, f.alice, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateFallsBackToSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello **world**")

	created, err := f.svc.Create(ctx, doc.ID, f.alice, CreateInput{
		Start:  -1,
		End:    -1,
		Anchor: "  world ",
		Color:  "  ",
		Note:   "  check this  ",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, created.Start)
	assert.Equal(t, 11, created.End)
	assert.Equal(t, "world", created.Anchor)
	assert.Equal(t, DefaultColor, created.Color)
	assert.Equal(t, "check this", created.Content)
	require.Len(t, created.Comments, 1)
	assert.Equal(t, "alice", created.Comments[0].User)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.AnchorResolutions.WithLabelValues("search")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.AnnotationsCreated))
}

func TestService_CreateWithoutNoteHasNoComments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	created, err := f.svc.Create(ctx, doc.ID, f.alice, CreateInput{Start: 6, End: 11, Color: "#00ff00"})
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", created.Color)
	assert.Empty(t, created.Content)

	var count int64
	require.NoError(t, f.db.Model(&domain.AnnotationComment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepository_CreateRollsBackOnCommentFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	var version domain.DocumentVersion
	require.NoError(t, f.db.Where("document_id = ?", doc.ID).First(&version).Error)

	a := &domain.Annotation{
		VersionID:   version.ID,
		UserID:      f.alice.ID,
		StartOffset: 0,
		EndOffset:   5,
		AnchorText:  "Hello",
		Color:       DefaultColor,
	}
	// the comment references a user that does not exist
	err := f.repo.Create(ctx, a, &domain.AnnotationComment{UserID: 424242, Text: "orphan"})
	require.Error(t, err)

	var count int64
	require.NoError(t, f.db.Model(&domain.Annotation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")
	f.grant(t, doc.ID, "bob", "annotator")
	f.grant(t, doc.ID, "carol", "annotator")

	byBob, err := f.svc.Create(ctx, doc.ID, f.bob, CreateInput{Start: 0, End: 5, Note: "first"})
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, byBob.ID, f.carol, "reply")
	require.NoError(t, err)

	err = f.svc.Delete(ctx, byBob.ID, nil)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	err = f.svc.Delete(ctx, byBob.ID, f.carol)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, byBob.ID, f.bob))

	var comments int64
	require.NoError(t, f.db.Model(&domain.AnnotationComment{}).Count(&comments).Error)
	assert.Zero(t, comments)

	err = f.svc.Delete(ctx, byBob.ID, f.bob)
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	// editors may delete other people's annotations
	byCarol, err := f.svc.Create(ctx, doc.ID, f.carol, offsets(6, 11))
	require.NoError(t, err)
	f.grant(t, doc.ID, "bob", "editor")
	require.NoError(t, f.svc.Delete(ctx, byCarol.ID, f.bob))
}

func TestService_AddComment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")
	f.grant(t, doc.ID, "bob", "viewer")

	created, err := f.svc.Create(ctx, doc.ID, f.alice, CreateInput{Start: 0, End: 5, Note: "body"})
	require.NoError(t, err)

	_, err = f.svc.AddComment(ctx, created.ID, f.bob, "can I?")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.svc.AddComment(ctx, created.ID, f.alice, "   ")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	_, err = f.svc.AddComment(ctx, 999, f.alice, "hi")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	reply, err := f.svc.AddComment(ctx, created.ID, f.alice, " second ")
	require.NoError(t, err)
	assert.Equal(t, "second", reply.Text)
	assert.Equal(t, "alice", reply.User)

	got, err := f.svc.Get(ctx, created.ID, f.bob, "")
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "body", got.Comments[0].Text)
	assert.Equal(t, "second", got.Comments[1].Text)
	assert.False(t, got.CanDelete)
}

func TestService_GetRequiresView(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	created, err := f.svc.Create(ctx, doc.ID, f.alice, offsets(0, 5))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, created.ID, f.carol, "")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.svc.List(ctx, doc.ID, nil, "")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	got, err := f.svc.Get(ctx, created.ID, nil, doc.ShareToken)
	require.NoError(t, err)
	assert.False(t, got.CanDelete)
}

func TestService_ListCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, redis.NewCache(client, time.Minute))
	ctx := context.Background()
	doc := f.newDoc(t, "Hello world")

	_, err := f.svc.Create(ctx, doc.ID, f.alice, offsets(0, 5))
	require.NoError(t, err)

	list, err := f.svc.List(ctx, doc.ID, f.alice, "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Eventually(t, func() bool {
		keys, _ := client.Keys(ctx, "annotations:doc:*:g:*").Result()
		return len(keys) == 1
	}, time.Second, 10*time.Millisecond)

	// served from cache, with the caller-specific flag recomputed
	list, err = f.svc.List(ctx, doc.ID, f.carol, doc.ShareToken)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].CanDelete)

	// a write bumps the generation, so the next read sees it
	_, err = f.svc.Create(ctx, doc.ID, f.alice, offsets(6, 11))
	require.NoError(t, err)

	list, err = f.svc.List(ctx, doc.ID, f.alice, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
