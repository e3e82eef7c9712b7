package conversation_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/session"
	"github.com/amitripshtos/auditlife/pkg/usecase/conversation"
)

const (
	testChat     = model.ChatID(1001)
	testOperator = model.OperatorID(42)
)

// recorder keeps a cross-fake ordered log of side effects so tests can
// assert ordering (e.g. facts persist before the destination prompt).
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeChat records outbound traffic.
type fakeChat struct {
	rec     *recorder
	mu      sync.Mutex
	texts   []string
	prompts []string
	options [][]model.Choice
}

func (c *fakeChat) SendText(ctx context.Context, chatID model.ChatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	if c.rec != nil {
		c.rec.add("send_text")
	}
	return nil
}

func (c *fakeChat) SendChoices(ctx context.Context, chatID model.ChatID, prompt string, options []model.Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, options)
	if c.rec != nil {
		c.rec.add("send_choices")
	}
	return nil
}

func (c *fakeChat) lastText(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		t.Fatal("no text was sent")
	}
	return c.texts[len(c.texts)-1]
}

func (c *fakeChat) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, text := range c.texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// fakeRepo is a deterministic document store.
type fakeRepo struct {
	rec          *recorder
	mu           sync.Mutex
	destinations []*model.Destination
	factBatches  [][]*model.Fact
	appends      map[string][]string
	created      []string

	putFactsErr error
	listErr     error
	appendErr   error
	createErr   error
}

func newFakeRepo(destinations ...*model.Destination) *fakeRepo {
	return &fakeRepo{
		destinations: destinations,
		appends:      make(map[string][]string),
	}
}

func (r *fakeRepo) PutFacts(ctx context.Context, facts []*model.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putFactsErr != nil {
		return r.putFactsErr
	}
	r.factBatches = append(r.factBatches, facts)
	if r.rec != nil {
		r.rec.add("put_facts")
	}
	return nil
}

func (r *fakeRepo) ListDestinations(ctx context.Context, summary string) ([]*model.Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.destinations, nil
}

func (r *fakeRepo) AppendToDestination(ctx context.Context, id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appends[id] = append(r.appends[id], summary)
	return nil
}

func (r *fakeRepo) CreateDestination(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	id := "dest-" + name
	r.created = append(r.created, name)
	r.destinations = append(r.destinations, &model.Destination{ID: id, Name: name, Existing: true})
	return id, nil
}

// Fixed-output providers. entered/release make a stage blockable so tests
// can hold a run in flight.
type fakeProviders struct {
	transcript string
	language   string
	english    string
	facts      []*model.Fact
	summary    string

	entered chan struct{}
	release chan struct{}
}

func (p *fakeProviders) Transcribe(ctx context.Context, audio []byte, mime string) (string, string, error) {
	return p.transcript, p.language, nil
}

func (p *fakeProviders) Translate(ctx context.Context, text, hint string) (string, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	if p.english != "" {
		return p.english, nil
	}
	return text, nil
}

func (p *fakeProviders) Extract(ctx context.Context, english string) ([]*model.Fact, error) {
	return p.facts, nil
}

func (p *fakeProviders) Summarize(ctx context.Context, english string) (string, error) {
	return p.summary, nil
}

type testEnv struct {
	uc        *conversation.UseCase
	sessions  *session.Store
	repo      *fakeRepo
	chat      *fakeChat
	providers *fakeProviders
}

func newEnv(repo *fakeRepo, providers *fakeProviders) *testEnv {
	rec := &recorder{}
	repo.rec = rec
	chat := &fakeChat{rec: rec}
	sessions := session.New()

	uc := conversation.New(conversation.NewInput{
		Sessions:         sessions,
		Repo:             repo,
		Chat:             chat,
		Transcriber:      providers,
		Translator:       providers,
		Extractor:        providers,
		Summarizer:       providers,
		AllowedOperators: []model.OperatorID{testOperator},
	})

	return &testEnv{uc: uc, sessions: sessions, repo: repo, chat: chat, providers: providers}
}

func aliceProviders() *fakeProviders {
	return &fakeProviders{
		summary: "Met Alice from Acme Corp",
		facts: []*model.Fact{
			{Subject: "Alice", Predicate: "works at", Object: "Acme Corp", Context: "Met Alice, she works at Acme Corp"},
		},
	}
}

func textMsg(text string) *model.Inbound {
	return &model.Inbound{ChatID: testChat, OperatorID: testOperator, Kind: model.KindText, Text: text}
}

func choiceMsg(value string) *model.Inbound {
	return &model.Inbound{ChatID: testChat, OperatorID: testOperator, Kind: model.KindChoice, Choice: value}
}

func commandMsg(cmd string) *model.Inbound {
	return &model.Inbound{ChatID: testChat, OperatorID: testOperator, Kind: model.KindCommand, Text: cmd}
}

func TestUnauthorizedOperatorIsRejected(t *testing.T) {
	env := newEnv(newFakeRepo(), aliceProviders())
	ctx := context.Background()

	msg := textMsg("Met Alice, she works at Acme Corp")
	msg.OperatorID = model.OperatorID(999)
	gt.NoError(t, env.uc.HandleMessage(ctx, msg))

	gt.S(t, env.chat.lastText(t)).Contains("not authorized")
	gt.A(t, env.repo.factBatches).Length(0)
	_, found := env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestEmptyAllowSetDeniesEveryone(t *testing.T) {
	rec := &recorder{}
	repo := newFakeRepo()
	repo.rec = rec
	chat := &fakeChat{rec: rec}
	uc := conversation.New(conversation.NewInput{
		Sessions:    session.New(),
		Repo:        repo,
		Chat:        chat,
		Transcriber: aliceProviders(),
		Translator:  aliceProviders(),
		Extractor:   aliceProviders(),
		Summarizer:  aliceProviders(),
	})

	gt.NoError(t, uc.HandleMessage(context.Background(), textMsg("hello")))
	gt.S(t, chat.lastText(t)).Contains("not authorized")
}

func TestBusyWhileRunInFlight(t *testing.T) {
	providers := aliceProviders()
	providers.entered = make(chan struct{})
	providers.release = make(chan struct{})
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), providers)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.uc.HandleMessage(ctx, textMsg("first input"))
	}()
	<-providers.entered

	// Concurrent input for the same chat must be rejected, not queued.
	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("second input")))
	gt.S(t, env.chat.lastText(t)).Contains("still working")

	close(providers.release)
	<-done

	gt.A(t, env.repo.factBatches).Length(1)
}

func TestBusyWhileSessionPending(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingChoice)

	// Audio during an unresolved session is busy, not queued.
	audio := &model.Inbound{
		ChatID: testChat, OperatorID: testOperator,
		Kind: model.KindAudio, Audio: []byte("ogg"), MIME: "audio/ogg",
	}
	gt.NoError(t, env.uc.HandleMessage(ctx, audio))
	gt.S(t, env.chat.lastText(t)).Contains("still working")

	// No second batch was written.
	gt.A(t, env.repo.factBatches).Length(1)
}

func TestFactsPersistBeforeDestinationPrompt(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())

	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("Met Alice, she works at Acme Corp")))

	gt.A(t, env.repo.factBatches).Length(1)
	gt.A(t, env.repo.factBatches[0]).Length(1)

	events := env.repo.rec.all()
	putAt, promptAt := -1, -1
	for i, ev := range events {
		switch ev {
		case "put_facts":
			putAt = i
		case "send_choices":
			promptAt = i
		}
	}
	gt.True(t, putAt >= 0)
	gt.True(t, promptAt >= 0)
	gt.True(t, putAt < promptAt)
}

func TestSelectExistingDestination(t *testing.T) {
	env := newEnv(newFakeRepo(
		&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true},
		&model.Destination{ID: "d2", Name: "Personal", Existing: true},
	), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("dest:d1")))

	gt.A(t, env.repo.appends["d1"]).Length(1)
	gt.Equal(t, env.repo.appends["d1"][0], "Met Alice from Acme Corp")
	gt.A(t, env.repo.appends["d2"]).Length(0)

	_, found := env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestCreateNewDestinationFlow(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Planning the trip to Lisbon")))
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("create_new")))

	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingName)
	gt.Equal(t, sess.Summary, "Met Alice from Acme Corp")
	gt.A(t, sess.Candidates).Length(0)

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Trip Notes")))

	gt.A(t, env.repo.created).Length(1)
	gt.Equal(t, env.repo.created[0], "Trip Notes")
	gt.A(t, env.repo.appends["dest-Trip Notes"]).Length(1)

	_, found = env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestFreeTextDuringChoicePhaseIsRejected(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	before, found := env.sessions.Get(testChat)
	gt.True(t, found)

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("just append it somewhere")))

	after, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, before, after)
	gt.A(t, env.repo.appends["d1"]).Length(0)
	gt.S(t, env.chat.lastText(t)).Contains("buttons")
}

func TestAppendFailureKeepsSessionForRetry(t *testing.T) {
	repo := newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true})
	env := newEnv(repo, aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))

	repo.appendErr = goerr.New("store unavailable")
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("dest:d1")))

	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingChoice)
	gt.Equal(t, sess.Summary, "Met Alice from Acme Corp")
	gt.A(t, sess.Candidates).Length(1)

	// Retry with the same choice succeeds once the store recovers.
	repo.appendErr = nil
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("dest:d1")))
	gt.A(t, repo.appends["d1"]).Length(1)
	_, found = env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestResetFromAnyPhaseIsIdempotent(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())
	ctx := context.Background()

	// From idle.
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("reset")))
	_, found := env.sessions.Get(testChat)
	gt.False(t, found)

	// From awaiting choice, applied twice.
	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("reset")))
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("reset")))
	_, found = env.sessions.Get(testChat)
	gt.False(t, found)

	// From awaiting name.
	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("create_new")))
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("reset")))
	_, found = env.sessions.Get(testChat)
	gt.False(t, found)

	// The machine cycles: new input works again after reset.
	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingChoice)
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	providers := aliceProviders()
	providers.entered = make(chan struct{})
	providers.release = make(chan struct{})
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), providers)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.uc.HandleMessage(ctx, textMsg("slow input"))
	}()
	<-providers.entered

	// Reset does not interrupt the suspended provider call; the run
	// completes and its session is discarded as stale.
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("reset")))

	close(providers.release)
	<-done

	_, found := env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestZeroFactsSkipsFactWrite(t *testing.T) {
	providers := &fakeProviders{summary: "Nothing notable today"}
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Journal", Existing: true}), providers)

	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("hmm, quiet day")))

	gt.A(t, env.repo.factBatches).Length(0)
	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingChoice)
}

func TestFactWriteFailureAbortsResolution(t *testing.T) {
	repo := newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true})
	repo.putFactsErr = goerr.New("store write rejected")
	env := newEnv(repo, aliceProviders())

	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("Met Alice, she works at Acme Corp")))

	gt.True(t, env.chat.contains("couldn't save"))
	_, found := env.sessions.Get(testChat)
	gt.False(t, found)

	// Another attempt is possible immediately.
	repo.putFactsErr = nil
	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("Met Alice, she works at Acme Corp")))
	gt.A(t, repo.factBatches).Length(1)
}

func TestNoCandidatesAsksForNameDirectly(t *testing.T) {
	env := newEnv(newFakeRepo(), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))

	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingName)

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Contacts")))
	gt.A(t, env.repo.created).Length(1)
	gt.Equal(t, env.repo.created[0], "Contacts")
}

func TestEmptyNameReprompts(t *testing.T) {
	env := newEnv(newFakeRepo(), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("   ")))

	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingName)
	gt.A(t, env.repo.created).Length(0)
}

func TestAudioCarriesTranscriptAsSourceText(t *testing.T) {
	providers := aliceProviders()
	providers.transcript = "Met Alice, she works at Acme Corp"
	providers.language = "en"
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), providers)

	audio := &model.Inbound{
		ChatID: testChat, OperatorID: testOperator,
		Kind: model.KindAudio, Audio: []byte("ogg"), MIME: "audio/ogg",
	}
	gt.NoError(t, env.uc.HandleMessage(context.Background(), audio))

	gt.True(t, env.chat.contains("Transcription:"))
	gt.A(t, env.repo.factBatches).Length(1)
	gt.Equal(t, env.repo.factBatches[0][0].SourceText, "Met Alice, she works at Acme Corp")
}

func TestStartCommandLeavesStateAlone(t *testing.T) {
	env := newEnv(newFakeRepo(&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true}), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))
	gt.NoError(t, env.uc.HandleMessage(ctx, commandMsg("start")))

	sess, found := env.sessions.Get(testChat)
	gt.True(t, found)
	gt.Equal(t, sess.Phase, model.PhaseAwaitingChoice)
	gt.S(t, env.chat.lastText(t)).Contains("AuditLife")
}

func TestEmptyTextRejected(t *testing.T) {
	env := newEnv(newFakeRepo(), aliceProviders())

	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("   ")))
	gt.S(t, env.chat.lastText(t)).Contains("nothing to process")
	_, found := env.sessions.Get(testChat)
	gt.False(t, found)
}

func TestChoicePromptIncludesCreateNewSentinel(t *testing.T) {
	env := newEnv(newFakeRepo(
		&model.Destination{ID: "d1", Name: "Work Contacts", Existing: true},
		&model.Destination{ID: "d2", Name: "Personal", Existing: true},
	), aliceProviders())

	gt.NoError(t, env.uc.HandleMessage(context.Background(), textMsg("Met Alice, she works at Acme Corp")))

	gt.A(t, env.chat.options).Length(1)
	opts := env.chat.options[0]
	gt.A(t, opts).Length(3)
	gt.Equal(t, opts[0].Value, "dest:d1")
	gt.Equal(t, opts[1].Value, "dest:d2")
	gt.Equal(t, opts[2].Value, "create_new")
}

// End-to-end scenario from input to cleared session.
func TestEndToEndAliceScenario(t *testing.T) {
	env := newEnv(newFakeRepo(
		&model.Destination{ID: "work", Name: "Work Contacts", Existing: true},
		&model.Destination{ID: "personal", Name: "Personal", Existing: true},
	), aliceProviders())
	ctx := context.Background()

	gt.NoError(t, env.uc.HandleMessage(ctx, textMsg("Met Alice, she works at Acme Corp")))

	// Facts written with source attribution.
	gt.A(t, env.repo.factBatches).Length(1)
	fact := env.repo.factBatches[0][0]
	gt.Equal(t, fact.Subject, "Alice")
	gt.Equal(t, fact.Predicate, "works at")
	gt.Equal(t, fact.Object, "Acme Corp")
	gt.Equal(t, fact.SourceText, "Met Alice, she works at Acme Corp")

	// Candidates presented.
	gt.A(t, env.chat.prompts).Length(1)
	gt.S(t, env.chat.prompts[0]).Contains("Met Alice from Acme Corp")

	// Operator picks Work Contacts.
	gt.NoError(t, env.uc.HandleMessage(ctx, choiceMsg("dest:work")))
	gt.A(t, env.repo.appends["work"]).Length(1)
	gt.Equal(t, env.repo.appends["work"][0], "Met Alice from Acme Corp")

	_, found := env.sessions.Get(testChat)
	gt.False(t, found)
}
