package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easeaico/storybook/internal/story"
	"github.com/easeaico/storybook/internal/types"
)

type fakeCards struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (f *fakeCards) Generate(ctx context.Context, image []byte, cfg types.StoryConfig) story.Outcome[types.StoryCard] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	card := types.StoryCard{CharacterName: fmt.Sprintf("card-%d", image[0]), ImageKey: fmt.Sprintf("img_%d", f.calls)}
	if f.fail[f.calls] {
		card.ImageKey = fmt.Sprintf("err_%d", f.calls)
		return story.Fallback(card, errors.New("upstream failed"))
	}
	return story.Ok(card)
}

type fakeAssembler struct {
	calls atomic.Int32
	text  string
	delay time.Duration
	// started and gate, when set, hold the first call until gate is closed.
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeAssembler) Assemble(ctx context.Context, cards []types.StoryCard, cfg types.StoryConfig) story.Outcome[string] {
	if n := f.calls.Add(1); n == 1 && f.gate != nil {
		close(f.started)
		<-f.gate
	}
	time.Sleep(f.delay)
	return story.Ok(f.text)
}

type fakeNarrator struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeNarrator) Synthesize(ctx context.Context, text string) story.Outcome[[]byte] {
	f.calls.Add(1)
	if f.fail {
		return story.Fallback[[]byte](nil, errors.New("tts down"))
	}
	return story.Ok([]byte("mp3:" + text))
}

type fakeArchiver struct {
	books []types.Storybook
}

func (f *fakeArchiver) Save(ctx context.Context, book types.Storybook) error {
	f.books = append(f.books, book)
	return nil
}

type fixture struct {
	service   *Service
	cards     *fakeCards
	assembler *fakeAssembler
	narrator  *fakeNarrator
	archiver  *fakeArchiver
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		cards:     &fakeCards{fail: map[int]bool{}},
		assembler: &fakeAssembler{text: "# 용감한 민지\n옛날 옛적에..."},
		narrator:  &fakeNarrator{},
		archiver:  &fakeArchiver{},
	}
	if opts.Archiver == nil {
		opts.Archiver = f.archiver
	}
	f.service = NewService(NewStore(time.Hour), f.cards, f.assembler, f.narrator, opts)
	return f
}

func (f *fixture) submitted(t *testing.T, n int) State {
	t.Helper()
	state := f.service.Create()
	return f.submittedExisting(t, state.ID, n)
}

func (f *fixture) submittedExisting(t *testing.T, id string, n int) State {
	t.Helper()
	images := make([]types.Image, n)
	for i := range images {
		images[i] = img(byte(i + 1))
	}
	if _, _, err := f.service.AddImages(id, images, false); err != nil {
		t.Fatalf("add images: %v", err)
	}
	state, err := f.service.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return state
}

func (f *fixture) finalizing(t *testing.T, n int) State {
	t.Helper()
	state := f.service.Create()
	return f.finalizingExisting(t, state.ID, n)
}

func (f *fixture) finalizingExisting(t *testing.T, id string, n int) State {
	t.Helper()
	state := f.submittedExisting(t, id, n)
	for i := 0; i < n; i++ {
		var err error
		state, err = f.service.Next(state.ID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if state.Phase != PhaseFinalizing {
		t.Fatalf("expected finalizing, got %s", state.Phase)
	}
	return state
}

func TestServiceSubmitProducesOneCardPerImage(t *testing.T) {
	f := newFixture(Options{})
	f.cards.fail[2] = true

	state := f.submitted(t, 3)
	if state.Phase != PhaseReviewing {
		t.Fatalf("expected reviewing, got %s", state.Phase)
	}
	if len(state.Cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(state.Cards))
	}
	for i, card := range state.Cards {
		if card.CharacterName != fmt.Sprintf("card-%d", i+1) {
			t.Fatalf("unexpected card order: %#v", state.Cards)
		}
	}
	if !state.Degraded[1] || state.Degraded[0] || state.Degraded[2] {
		t.Fatalf("unexpected degraded flags: %v", state.Degraded)
	}

	image, err := f.service.Image(state.ID, "err_2")
	if err != nil || image.Data[0] != 2 {
		t.Fatalf("expected fallback card image to be stored, got %v", err)
	}
}

func TestServiceSubmitWithoutImages(t *testing.T) {
	f := newFixture(Options{})
	state := f.service.Create()

	next, err := f.service.Submit(context.Background(), state.ID)
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
	if next.Phase != PhaseConfiguring || next.Notice != NoticeNoImages {
		t.Fatalf("unexpected state: %s %q", next.Phase, next.Notice)
	}
	if f.cards.calls != 0 {
		t.Fatalf("expected no card calls, got %d", f.cards.calls)
	}
}

func TestServiceSubmitBlockedByMissingCredential(t *testing.T) {
	missing := errors.New("no key")
	f := newFixture(Options{CredentialErr: missing})
	state := f.service.Create()
	_, _, _ = f.service.AddImages(state.ID, []types.Image{img(1)}, false)

	if _, err := f.service.Submit(context.Background(), state.ID); !errors.Is(err, missing) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if f.cards.calls != 0 {
		t.Fatalf("expected no card calls, got %d", f.cards.calls)
	}
	current, _ := f.service.Get(state.ID)
	if current.Phase != PhaseConfiguring || len(current.Pending) != 1 {
		t.Fatalf("expected state unchanged, got %s", current.Phase)
	}
}

func TestServiceFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(Options{})
	state := f.finalizing(t, 2)

	first, err := f.service.Finalize(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := f.service.Finalize(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if f.assembler.calls.Load() != 1 || f.narrator.calls.Load() != 1 {
		t.Fatalf("expected one call per stage, got %d/%d", f.assembler.calls.Load(), f.narrator.calls.Load())
	}
	if first.Phase != PhaseComplete || second.FinalText != first.FinalText {
		t.Fatalf("unexpected finalize results: %s / %q", first.Phase, second.FinalText)
	}
	if len(f.archiver.books) != 1 || f.archiver.books[0].Story.Title != "용감한 민지" {
		t.Fatalf("expected one archived book, got %#v", f.archiver.books)
	}
}

func TestServiceConcurrentFinalizeRunsOnce(t *testing.T) {
	f := newFixture(Options{})
	f.assembler.delay = 50 * time.Millisecond
	state := f.finalizing(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Finalize(context.Background(), state.ID); err != nil {
				t.Errorf("finalize: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.assembler.calls.Load() != 1 {
		t.Fatalf("expected one assembly call, got %d", f.assembler.calls.Load())
	}
}

func TestServiceFinalizeBeforeLastPageFails(t *testing.T) {
	f := newFixture(Options{})
	state := f.submitted(t, 2)

	if _, err := f.service.Finalize(context.Background(), state.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.assembler.calls.Load() != 0 {
		t.Fatalf("expected no assembly call")
	}
}

func TestServiceNarrationFailureOmitsAudio(t *testing.T) {
	f := newFixture(Options{})
	f.narrator.fail = true
	state := f.finalizing(t, 1)

	state, err := f.service.Finalize(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if state.Phase != PhaseComplete || state.Audio != nil {
		t.Fatalf("expected complete without audio, got %s audio=%v", state.Phase, state.Audio)
	}
	if _, err := f.service.Audio(state.ID); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}

	view := NewView(state, "/api/sessions/"+state.ID)
	if view.HasAudio || view.AudioURL != "" {
		t.Fatalf("expected view without audio control")
	}
	if view.Story == nil || view.Story.Title != "용감한 민지" {
		t.Fatalf("expected parsed story in view, got %#v", view.Story)
	}
}

func TestServiceResetClearsSession(t *testing.T) {
	f := newFixture(Options{})
	state := f.finalizing(t, 2)
	if _, err := f.service.Finalize(context.Background(), state.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	state, err := f.service.Reset(state.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if state.Phase != PhaseConfiguring || len(state.Cards) != 0 || len(state.Images) != 0 {
		t.Fatalf("unexpected state after reset: %#v", state)
	}
	if state.Config != types.DefaultStoryConfig() {
		t.Fatalf("expected default config after reset")
	}
	if _, err := f.service.Audio(state.ID); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected audio to be gone, got %v", err)
	}
}

func TestServiceUnknownSession(t *testing.T) {
	f := newFixture(Options{})
	if _, err := f.service.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.service.Next("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestViewReviewingShowsCurrentCard(t *testing.T) {
	f := newFixture(Options{})
	state := f.submitted(t, 2)
	state, _ = f.service.Next(state.ID)

	view := NewView(state, "/api/sessions/"+state.ID)
	if view.Card == nil || view.Card.CharacterName != "card-2" {
		t.Fatalf("unexpected card view: %#v", view.Card)
	}
	if !view.IsLast || view.PageCount != 2 {
		t.Fatalf("expected last page of 2, got %#v", view)
	}
	if view.Card.ImageURL != "/api/sessions/"+state.ID+"/images/img_2" {
		t.Fatalf("unexpected image url: %s", view.Card.ImageURL)
	}
}

func TestServiceAddImagesBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(Options{MaxImages: 2})
	state := f.service.Create()

	_, added, err := f.service.AddImages(state.ID, []types.Image{img(1), img(2), img(3)}, false)
	if !errors.Is(err, ErrTooManyImages) {
		t.Fatalf("expected ErrTooManyImages, got %v", err)
	}
	if added != 0 {
		t.Fatalf("expected nothing added, got %d", added)
	}
	current, _ := f.service.Get(state.ID)
	if len(current.Pending) != 0 {
		t.Fatalf("expected no pending images after rejected batch, got %d", len(current.Pending))
	}

	if _, added, err = f.service.AddImages(state.ID, []types.Image{img(1), img(2)}, false); err != nil || added != 2 {
		t.Fatalf("expected batch within limit to be accepted, got %d %v", added, err)
	}
}

func TestServiceAddImagesRejectsEmptyImage(t *testing.T) {
	f := newFixture(Options{})
	state := f.service.Create()

	_, _, err := f.service.AddImages(state.ID, []types.Image{img(1), {MIMEType: "image/png"}}, false)
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
	current, _ := f.service.Get(state.ID)
	if len(current.Pending) != 0 {
		t.Fatalf("expected state unchanged, got %d pending", len(current.Pending))
	}
}

func TestServiceFinalizeAfterResetIgnoresStaleRun(t *testing.T) {
	f := newFixture(Options{})
	f.assembler.started = make(chan struct{})
	f.assembler.gate = make(chan struct{})
	state := f.finalizing(t, 1)

	stale := make(chan error, 1)
	go func() {
		_, err := f.service.Finalize(context.Background(), state.ID)
		stale <- err
	}()
	<-f.assembler.started

	if _, err := f.service.Reset(state.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.finalizingExisting(t, state.ID, 1)

	fresh, err := f.service.Finalize(context.Background(), state.ID)
	if err != nil {
		t.Fatalf("finalize after reset: %v", err)
	}
	if fresh.Phase != PhaseComplete {
		t.Fatalf("expected complete, got %s", fresh.Phase)
	}

	close(f.assembler.gate)
	if err := <-stale; !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected stale finalize to fail, got %v", err)
	}
	current, _ := f.service.Get(state.ID)
	if current.Phase != PhaseComplete || current.Run != fresh.Run {
		t.Fatalf("stale finalize must not touch the new run: %s run=%d", current.Phase, current.Run)
	}
}

func TestServiceCloseRemovesSession(t *testing.T) {
	f := newFixture(Options{})
	state := f.service.Create()
	f.service.Create()

	if got := f.service.ActiveSessions(); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}
	if err := f.service.Close(state.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.service.Get(state.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := f.service.ActiveSessions(); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}
	if err := f.service.Close(state.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second close, got %v", err)
	}
}
