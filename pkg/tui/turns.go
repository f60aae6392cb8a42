package tui

import (
	"context"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/chat"
)

// turnTracker follows the turns started from the UI. The program exits
// without waiting for its commands, so the caller waits here before it
// releases the store the turns write to.
type turnTracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	nextID  int
	unshown map[int]error
}

func newTurnTracker() *turnTracker {
	return &turnTracker{unshown: make(map[int]error)}
}

// run returns a command sending prompt as a turn of session. Once wait has
// been called no new turn is started.
func (t *turnTracker) run(ctx context.Context, session Session, prompt string) tea.Cmd {
	return func() tea.Msg {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil
		}
		t.nextID++
		id := t.nextID
		t.wg.Add(1)
		t.mu.Unlock()
		defer t.wg.Done()

		result, err := session.Turn(ctx, prompt)
		if err != nil {
			t.mu.Lock()
			t.unshown[id] = err
			t.mu.Unlock()
		}
		return turnDoneMsg{id: id, prompt: prompt, result: result, err: err}
	}
}

// shown marks the outcome of turn id as displayed
func (t *turnTracker) shown(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.unshown, id)
}

// wait blocks until every started turn has finished and returns the errors
// the view never displayed, oldest first. Cancellations caused by quitting
// are left out unless their error log entry was lost.
func (t *turnTracker) wait() []error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.unshown))
	for id, err := range t.unshown {
		if worthReporting(err) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, t.unshown[id])
	}
	return errs
}

func worthReporting(err error) bool {
	var turnErr *chat.TurnError
	if errors.As(err, &turnErr) && turnErr.LogErr != nil {
		return true
	}
	return !errors.Is(err, context.Canceled)
}
