package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/fiqh-assistant/internal/adapters/cache"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/llm"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/fiqh-assistant/internal/app/conversation"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *conversation.Service
	cache  *cache.Cache
	blobs  *memory.BlobStore
	remote *memory.RemoteStore
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newFixture builds a service over memory adapters. A nil remote means local-only.
func newFixture(t *testing.T, gen domain.Generator, remote *memory.RemoteStore, local ...domain.Session) *fixture {
	t.Helper()

	blobs := memory.NewBlobStore()
	c := cache.New(blobs)
	if len(local) > 0 {
		require.NoError(t, c.SaveSessions(local))
	}

	var rs domain.RemoteStore
	if remote != nil {
		rs = remote
	}
	svc := conversation.NewService(gen, c, rs,
		conversation.WithClock(func() time.Time { return epoch }),
		conversation.WithIDGenerator(sequentialIDs()),
		conversation.WithRemoteTimeout(time.Second),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Flush(ctx))
	})
	return &fixture{svc: svc, cache: c, blobs: blobs, remote: remote}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Flush(ctx))
}

func (f *fixture) cached(t *testing.T) []domain.Session {
	t.Helper()
	sessions, err := f.cache.LoadSessions()
	require.NoError(t, err)
	return sessions
}

func session(id string, created time.Time, contents ...string) domain.Session {
	s := domain.Session{ID: domain.SessionID(id), Title: id + "...", CreatedAt: created, Messages: []domain.Message{}}
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		s.Messages = append(s.Messages, domain.Message{
			ID: domain.MessageID(fmt.Sprintf("%s-m%d", id, i)), Role: role, Content: c, Timestamp: created,
		})
	}
	return s
}

func ids(sessions []domain.Session) []domain.SessionID {
	out := make([]domain.SessionID, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func TestMergeRemoteFirstThenLocalOnly(t *testing.T) {
	tests := []struct {
		name   string
		remote []domain.Session
		local  []domain.Session
		want   []domain.SessionID
	}{
		{name: "both empty", want: []domain.SessionID{}},
		{
			name:  "local only",
			local: []domain.Session{session("a", epoch), session("b", epoch)},
			want:  []domain.SessionID{"a", "b"},
		},
		{
			name:   "remote only",
			remote: []domain.Session{session("r1", epoch), session("r2", epoch)},
			want:   []domain.SessionID{"r1", "r2"},
		},
		{
			name:   "overlap keeps remote copy and local extras in order",
			remote: []domain.Session{session("x", epoch, "remote"), session("y", epoch)},
			local:  []domain.Session{session("l1", epoch), session("x", epoch, "local"), session("l2", epoch)},
			want:   []domain.SessionID{"x", "y", "l1", "l2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := conversation.Merge(tt.remote, tt.local)
			assert.Equal(t, tt.want, ids(merged))

			for _, r := range tt.remote {
				idx := domain.FindSession(merged, r.ID)
				require.GreaterOrEqual(t, idx, 0)
				assert.Equal(t, r.Messages, merged[idx].Messages)
			}

			again := conversation.Merge(tt.remote, merged)
			assert.Equal(t, ids(merged), ids(again))
		})
	}
}

func TestReconcileConnectedMergesAndPersists(t *testing.T) {
	remote := memory.NewRemoteStore(
		session("shared", epoch.Add(time.Hour), "remote q", "remote a"),
		session("remote-old", epoch),
	)
	f := newFixture(t, llm.NewMockLLM(), remote,
		session("offline-made", epoch.Add(2*time.Hour), "local q"),
		session("shared", epoch.Add(time.Hour), "local q"),
	)

	res, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConnected, res.Status)
	assert.Equal(t, []domain.SessionID{"shared", "remote-old", "offline-made"}, ids(res.Sessions))
	assert.Equal(t, "remote q", res.Sessions[0].Messages[0].Content)
	assert.Equal(t, ids(res.Sessions), ids(f.cached(t)))

	again, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestReconcileMissingTableKeepsLocal(t *testing.T) {
	remote := memory.NewRemoteStore(session("remote", epoch))
	remote.FailWith(memory.OpList, errors.New(`relation "public.chat_sessions" does not exist`))
	local := []domain.Session{session("b", epoch.Add(time.Hour), "q"), session("a", epoch)}
	f := newFixture(t, llm.NewMockLLM(), remote, local...)

	res, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusMissingTable, res.Status)
	assert.Equal(t, domain.StatusMissingTable, f.svc.Status())
	assert.Equal(t, local, res.Sessions)
}

func TestReconcileOffline(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		remote := memory.NewRemoteStore()
		remote.FailWith(memory.OpList, errors.New("dial tcp: connection refused"))
		f := newFixture(t, llm.NewMockLLM(), remote, session("a", epoch))

		res, err := f.svc.Reconcile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOffline, res.Status)
		assert.Equal(t, []domain.SessionID{"a"}, ids(res.Sessions))
	})

	t.Run("no remote configured", func(t *testing.T) {
		f := newFixture(t, llm.NewMockLLM(), nil)

		res, err := f.svc.Reconcile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOffline, res.Status)
		assert.Empty(t, res.Sessions)
	})

	t.Run("malformed cache", func(t *testing.T) {
		f := newFixture(t, llm.NewMockLLM(), memory.NewRemoteStore(session("r", epoch)))
		require.NoError(t, f.blobs.Set(cache.KeySessions, "[{broken"))

		res, err := f.svc.Reconcile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConnected, res.Status)
		assert.Equal(t, []domain.SessionID{"r"}, ids(res.Sessions))
	})
}

func TestReconcileRestoresActiveSessionAndPreferences(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM(), nil, session("a", epoch, "hello", "salam"))
	require.NoError(t, f.cache.SetActiveSessionID("a"))
	require.NoError(t, f.cache.SetVoice(domain.VoiceAhmed))
	require.NoError(t, f.cache.SetLanguage(domain.LanguageUrdu))

	_, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	view := f.svc.Snapshot()
	assert.Equal(t, domain.SessionID("a"), view.ActiveSessionID)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "salam", view.Messages[1].Content)
	assert.Equal(t, domain.VoiceAhmed, view.Voice)
	assert.Equal(t, domain.LanguageUrdu, view.Language)

	require.NoError(t, f.cache.SetActiveSessionID("gone"))
	_, err = f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	view = f.svc.Snapshot()
	assert.Empty(t, view.ActiveSessionID)
	require.Len(t, view.Messages, 1)
	assert.True(t, view.Messages[0].IsIntro())
	assert.Equal(t, domain.IntroText(domain.LanguageUrdu), view.Messages[0].Content)
}

func TestSendCreatesSessionAndPersistsEverywhere(t *testing.T) {
	remote := memory.NewRemoteStore()
	f := newFixture(t, llm.NewMockLLM(), remote)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, conversation.SendInput{Prompt: "What is the ruling on X?"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Content)
	assert.Equal(t, domain.RoleAssistant, reply.Role)

	view := f.svc.Snapshot()
	require.Len(t, view.Sessions, 1)
	sess := view.Sessions[0]
	assert.Equal(t, "What is the ruling on X?...", sess.Title)
	assert.Equal(t, sess.ID, view.ActiveSessionID)
	assert.False(t, view.Loading)

	require.Len(t, sess.Messages, 3)
	assert.True(t, sess.Messages[0].IsIntro())
	assert.Equal(t, domain.RoleUser, sess.Messages[1].Role)
	assert.Equal(t, "What is the ruling on X?", sess.Messages[1].Content)
	assert.Equal(t, reply, sess.Messages[2])

	f.flush(t)
	stored, ok := remote.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.Messages, stored.Messages)
	assert.Equal(t, sess.Messages, f.cached(t)[0].Messages)
	assert.Equal(t, sess.ID, f.cache.ActiveSessionID())
	assert.Equal(t, domain.StatusConnected, f.svc.Status())
}

func TestSendConcatenatesChunksInOrder(t *testing.T) {
	src1 := domain.Source{URI: "https://banuri.edu.pk/a", Title: "A"}
	src2 := domain.Source{URI: "https://darululoomkarachi.edu.pk/b", Title: "B"}
	gen := llm.NewScriptedLLM(
		domain.Chunk{Text: "Zakat "},
		domain.Chunk{},
		domain.Chunk{Text: "is due ", Sources: []domain.Source{src1}},
		domain.Chunk{Sources: []domain.Source{src2, src1}},
		domain.Chunk{Text: "after one lunar year."},
	)
	f := newFixture(t, gen, nil)
	_, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	var seen int
	reply, err := f.svc.Send(context.Background(), conversation.SendInput{Prompt: "When is zakat due?"},
		func(domain.Chunk) { seen++ })
	require.NoError(t, err)

	assert.Equal(t, 5, seen)
	assert.Equal(t, "Zakat is due after one lunar year.", reply.Content)
	assert.Equal(t, []domain.Source{src1, src2, src1}, reply.Sources)
}

func TestSendFailureDiscardsPlaceholder(t *testing.T) {
	boom := errors.New("upstream reset")
	gen := llm.NewScriptedLLM(domain.Chunk{Text: "Part one. "}, domain.Chunk{Text: "Part two. "}, domain.Chunk{Text: "Never."}).
		FailingAfter(2, boom)
	f := newFixture(t, gen, nil)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "Is music permitted?"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationInterrupted)

	view := f.svc.Snapshot()
	require.Len(t, view.Messages, 2)
	last := view.Messages[1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Equal(t, "Is music permitted?", last.Content)
	assert.Equal(t, domain.GenerationFailedNotice, view.Error)
	assert.False(t, view.Loading)

	assert.Equal(t, view.Messages, f.cached(t)[0].Messages)

	f.svc.ClearError()
	assert.Empty(t, f.svc.Snapshot().Error)
}

func TestSendCancelledContextIsInterruption(t *testing.T) {
	gen := llm.NewScriptedLLM(domain.Chunk{Text: "a"}, domain.Chunk{Text: "b"}, domain.Chunk{Text: "c"})
	f := newFixture(t, gen, nil)
	_, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "stop me"}, func(domain.Chunk) { cancel() })
	assert.ErrorIs(t, err, domain.ErrGenerationInterrupted)

	msgs := f.svc.Snapshot().Messages
	assert.Equal(t, domain.RoleUser, msgs[len(msgs)-1].Role)
}

func TestSendValidatesInput(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM(), nil)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "   "}, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "x", ReplyTo: "missing"}, nil)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.Empty(t, f.svc.Sessions())
}

func TestSendImageOnly(t *testing.T) {
	gen := llm.NewMockLLM()
	f := newFixture(t, gen, nil)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	img := &domain.Image{Data: "aGVsbG8=", MimeType: "image/jpeg"}
	_, err = f.svc.Send(ctx, conversation.SendInput{Image: img}, nil)
	require.NoError(t, err)

	view := f.svc.Snapshot()
	assert.Equal(t, domain.UntitledSession, view.Sessions[0].Title)
	assert.Equal(t, domain.ImagePromptPlaceholder, view.Messages[1].Content)
	assert.Equal(t, img, view.Messages[1].Image)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, img, reqs[0].Image)
	assert.Equal(t, "Please respond in English.\n", reqs[0].Prompt)
}

func TestSendReplyAnchorAndHistory(t *testing.T) {
	gen := llm.NewMockLLM()
	f := newFixture(t, gen, nil)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	f.svc.SetLanguage(ctx, domain.LanguageUrdu)

	first, err := f.svc.Send(ctx, conversation.SendInput{Prompt: "Is it permissible to combine prayers?", Thinking: true}, nil)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "What about travel?", ReplyTo: first.ID}, nil)
	require.NoError(t, err)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].Thinking)
	assert.False(t, reqs[1].Thinking)

	quote := []rune(first.Content)[:100]
	want := "Please respond in Urdu.\nCONTEXT: Referring to previous message: \"" + string(quote) + "...\" \n\n QUERY: What about travel?"
	assert.Equal(t, want, reqs[1].Prompt)

	// History holds what was visible before the new prompt.
	require.Len(t, reqs[1].History, 3)
	assert.Equal(t, first.ID, reqs[1].History[2].ID)

	view := f.svc.Snapshot()
	user := view.Messages[len(view.Messages)-2]
	require.NotNil(t, user.ReplyTo)
	assert.Equal(t, first.ID, user.ReplyTo.ID)
	assert.Equal(t, domain.RoleAssistant, user.ReplyTo.Role)
}

// gatedLLM yields one chunk, then waits for release.
type gatedLLM struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedLLM) GenerateStream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		if !yield(domain.Chunk{Text: "partial "}, nil) {
			return
		}
		close(g.started)
		select {
		case <-g.release:
			yield(domain.Chunk{Text: "done"}, nil)
		case <-ctx.Done():
			yield(domain.Chunk{}, ctx.Err())
		}
	}
}

func TestOperationsRejectedWhileStreaming(t *testing.T) {
	gen := &gatedLLM{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, gen, nil, session("other", epoch, "q"))
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, conversation.SendInput{Prompt: "long question"}, nil)
		errc <- err
	}()
	<-gen.started

	view := f.svc.Snapshot()
	assert.True(t, view.Loading)
	assert.Equal(t, "partial ", view.Messages[len(view.Messages)-1].Content)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "again"}, nil)
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.ErrorIs(t, f.svc.StartNewChat(ctx), domain.ErrBusy)
	assert.ErrorIs(t, f.svc.SwitchSession(ctx, "other"), domain.ErrBusy)
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, view.ActiveSessionID), domain.ErrBusy)
	_, err = f.svc.Reconcile(ctx)
	assert.ErrorIs(t, err, domain.ErrBusy)

	// Other sessions may still be deleted.
	require.NoError(t, f.svc.DeleteSession(ctx, "other"))

	close(gen.release)
	require.NoError(t, <-errc)
	assert.Equal(t, "partial done", f.svc.Snapshot().Messages[2].Content)
}

func TestRemoteNeverSeesReplyInFlight(t *testing.T) {
	gen := &gatedLLM{started: make(chan struct{}), release: make(chan struct{})}
	remote := memory.NewRemoteStore()
	f := newFixture(t, gen, remote)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, conversation.SendInput{Prompt: "long question"}, nil)
		errc <- err
	}()
	<-gen.started
	f.flush(t)

	view := f.svc.Snapshot()
	stored, ok := remote.Get(view.ActiveSessionID)
	require.True(t, ok)
	last := stored.Messages[len(stored.Messages)-1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Equal(t, "long question", last.Content)

	// The local cache still follows every chunk.
	cached := f.cached(t)
	assert.Equal(t, view.Messages, cached[domain.FindSession(cached, view.ActiveSessionID)].Messages)

	close(gen.release)
	require.NoError(t, <-errc)
	f.flush(t)

	stored, ok = remote.Get(view.ActiveSessionID)
	require.True(t, ok)
	last = stored.Messages[len(stored.Messages)-1]
	assert.Equal(t, domain.RoleAssistant, last.Role)
	assert.Equal(t, "partial done", last.Content)
}

// gatedListRemote blocks ListSessions once armed, until released.
type gatedListRemote struct {
	*memory.RemoteStore

	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (g *gatedListRemote) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedListRemote) ListSessions(ctx context.Context) ([]domain.Session, error) {
	g.mu.Lock()
	entered, release := g.entered, g.release
	g.entered = nil
	g.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	return g.RemoteStore.ListSessions(ctx)
}

func TestOperationsRejectedWhileReconciling(t *testing.T) {
	remote := &gatedListRemote{RemoteStore: memory.NewRemoteStore(session("kept", epoch, "q", "a"))}
	c := cache.New(memory.NewBlobStore())
	svc := conversation.NewService(llm.NewMockLLM(), c, remote,
		conversation.WithClock(func() time.Time { return epoch }),
		conversation.WithIDGenerator(sequentialIDs()),
		conversation.WithRemoteTimeout(time.Second),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Flush(ctx))
	})
	ctx := context.Background()
	_, err := svc.Reconcile(ctx)
	require.NoError(t, err)

	remote.arm()
	entered, release := remote.entered, remote.release
	done := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(ctx)
		done <- err
	}()
	<-entered

	_, err = svc.Send(ctx, conversation.SendInput{Prompt: "What is the ruling on X?"}, nil)
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.ErrorIs(t, svc.StartNewChat(ctx), domain.ErrBusy)
	assert.ErrorIs(t, svc.SwitchSession(ctx, "kept"), domain.ErrBusy)
	assert.ErrorIs(t, svc.DeleteSession(ctx, "kept"), domain.ErrBusy)
	_, err = svc.Reconcile(ctx)
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(release)
	require.NoError(t, <-done)

	// Once reconciled, a new session sticks in memory and in the cache.
	_, err = svc.Send(ctx, conversation.SendInput{Prompt: "What is the ruling on X?"}, nil)
	require.NoError(t, err)
	view := svc.Snapshot()
	require.NotEmpty(t, view.ActiveSessionID)
	assert.Len(t, view.Sessions, 2)

	cached, err := c.LoadSessions()
	require.NoError(t, err)
	assert.Equal(t, ids(view.Sessions), ids(cached))
}

func TestLocalCacheTracksEveryMutation(t *testing.T) {
	remote := memory.NewRemoteStore()
	remote.FailWith(memory.OpUpdate, errors.New("503 service unavailable"))
	gen := llm.NewScriptedLLM(domain.Chunk{Text: "one "}, domain.Chunk{Text: "two "}, domain.Chunk{Text: "three"})
	f := newFixture(t, gen, remote)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "count"}, func(domain.Chunk) {
		view := f.svc.Snapshot()
		cached := f.cached(t)
		idx := domain.FindSession(cached, view.ActiveSessionID)
		require.GreaterOrEqual(t, idx, 0)
		assert.Equal(t, view.Messages, cached[idx].Messages)
	})
	require.NoError(t, err)

	f.flush(t)
	assert.Equal(t, domain.StatusOffline, f.svc.Status())
}

func TestRemoteFailureDemotesUntilReconcile(t *testing.T) {
	remote := memory.NewRemoteStore()
	remote.FailWith(memory.OpInsert, errors.New("timeout"))
	f := newFixture(t, llm.NewMockLLM(), remote)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "first"}, nil)
	require.NoError(t, err)
	f.flush(t)
	assert.Equal(t, domain.StatusOffline, f.svc.Status())
	updates := remote.Calls(memory.OpUpdate)

	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "second"}, nil)
	require.NoError(t, err)
	f.flush(t)
	assert.Equal(t, updates, remote.Calls(memory.OpUpdate))

	// The session survives locally and comes back as a local-only extra.
	remote.FailWith(memory.OpInsert, nil)
	res, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, res.Status)
	require.Len(t, res.Sessions, 1)
	assert.Len(t, res.Sessions[0].Messages, 5)
}

func TestDeleteSession(t *testing.T) {
	remote := memory.NewRemoteStore(session("a", epoch.Add(time.Hour), "q"), session("b", epoch, "q"))
	f := newFixture(t, llm.NewMockLLM(), remote)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.SwitchSession(ctx, "a"))

	require.NoError(t, f.svc.DeleteSession(ctx, "a"))
	view := f.svc.Snapshot()
	assert.Equal(t, []domain.SessionID{"b"}, ids(view.Sessions))
	assert.Empty(t, view.ActiveSessionID)
	assert.True(t, view.Messages[0].IsIntro())
	assert.Equal(t, []domain.SessionID{"b"}, ids(f.cached(t)))

	f.flush(t)
	_, ok := remote.Get("a")
	assert.False(t, ok)

	remote.FailWith(memory.OpDelete, errors.New("permission denied"))
	require.NoError(t, f.svc.DeleteSession(ctx, "b"))
	assert.Empty(t, f.svc.Sessions())
	f.flush(t)
	assert.Equal(t, domain.StatusOffline, f.svc.Status())

	assert.ErrorIs(t, f.svc.DeleteSession(ctx, "b"), domain.ErrSessionNotFound)
}

func TestSwitchSessionAndStartNewChat(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM(), nil, session("a", epoch, "q1", "a1"), session("b", epoch, "q2"))
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.SwitchSession(ctx, "b"))
	assert.Equal(t, "q2", f.svc.Snapshot().Messages[0].Content)
	assert.Equal(t, domain.SessionID("b"), f.cache.ActiveSessionID())

	msg, err := f.svc.Message("b-m0")
	require.NoError(t, err)
	assert.Equal(t, "q2", msg.Content)
	_, err = f.svc.Message("a-m0")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	assert.ErrorIs(t, f.svc.SwitchSession(ctx, "nope"), domain.ErrSessionNotFound)

	require.NoError(t, f.svc.StartNewChat(ctx))
	view := f.svc.Snapshot()
	assert.Empty(t, view.ActiveSessionID)
	require.Len(t, view.Messages, 1)
	assert.True(t, view.Messages[0].IsIntro())
	assert.Empty(t, f.cache.ActiveSessionID())

	// Sending now starts a fresh session in front of the others.
	_, err = f.svc.Send(ctx, conversation.SendInput{Prompt: "new topic"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new topic...", f.svc.Sessions()[0].Title)
	assert.Len(t, f.svc.Sessions(), 3)
}

func TestPreferencesPersist(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM(), nil)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	f.svc.SetVoice(ctx, domain.VoiceAhmed)
	f.svc.SetLanguage(ctx, domain.LanguageUrdu)

	assert.Equal(t, domain.VoiceAhmed, f.svc.Voice())
	assert.Equal(t, domain.LanguageUrdu, f.svc.Language())
	assert.Equal(t, domain.VoiceAhmed, f.cache.Voice())
	assert.Equal(t, domain.LanguageUrdu, f.cache.Language())
	assert.Equal(t, domain.IntroText(domain.LanguageUrdu), f.svc.Snapshot().Messages[0].Content)
}
