package timeline

import (
	"errors"
	"fmt"

	"chatsync/models"
)

// FirstHistoricalPage is the first page fetched over REST; page 1 is the
// snapshot the server pushes when the channel opens.
const FirstHistoricalPage = 2

var (
	ErrEmptyMessage   = errors.New("timeline: message is empty")
	ErrMessageTooLong = fmt.Errorf("timeline: message exceeds %d characters", models.MaxMessageLength)
)

// ValidateContent checks an outgoing message body before it is sent.
func ValidateContent(content string) error {
	n := models.ContentLength(content)
	if n == 0 {
		return ErrEmptyMessage
	}
	if n > models.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Cursor tracks backward pagination.
type Cursor struct {
	NextPage int  `json:"next_page"`
	HasMore  bool `json:"has_more"`
}

// FetchRequest is handed out by BeginFetch and must be returned to
// CompleteFetch together with the page (or error) it produced.
type FetchRequest struct {
	Page  int
	epoch uint64
}

// Outcome describes what CompleteFetch did with a page.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeFailed
	OutcomeStale
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeFailed:
		return "failed"
	case OutcomeStale:
		return "stale"
	case OutcomeDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Reconciler owns a Timeline and its pagination cursor. Live messages go to
// the head, historical pages to the tail, and at most one page fetch is in
// flight at a time. Every snapshot starts a new epoch so that a page
// requested before a reconnect cannot be spliced onto the fresh snapshot.
type Reconciler struct {
	timeline *Timeline
	cursor   Cursor
	seeded   bool
	inFlight bool
	epoch    uint64
	closed   bool
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		timeline: New(),
		cursor:   Cursor{NextPage: FirstHistoricalPage},
	}
}

// ApplySnapshot seeds the timeline with the server's last-N messages and
// resets the cursor to the first historical page.
func (r *Reconciler) ApplySnapshot(msgs []models.Message, hasMore bool) (skipped int) {
	if r.closed {
		return 0
	}
	r.epoch++
	r.inFlight = false
	r.seeded = true
	r.cursor = Cursor{NextPage: FirstHistoricalPage, HasMore: hasMore}
	return r.timeline.Seed(msgs)
}

// ApplyEcho prepends a message echoed by the server. It reports false for
// an id that is already present.
func (r *Reconciler) ApplyEcho(m models.Message) bool {
	if r.closed {
		return false
	}
	return r.timeline.Prepend(m)
}

// BeginFetch claims the pagination gate. It reports false when there is
// nothing more to load or a fetch is already outstanding.
func (r *Reconciler) BeginFetch() (FetchRequest, bool) {
	if r.closed || r.inFlight || !r.cursor.HasMore {
		return FetchRequest{}, false
	}
	r.inFlight = true
	return FetchRequest{Page: r.cursor.NextPage, epoch: r.epoch}, true
}

// CompleteFetch applies the result of a fetch started by BeginFetch. A
// failed fetch releases the gate and leaves the cursor where it was.
func (r *Reconciler) CompleteFetch(req FetchRequest, page *models.Page, err error) (Outcome, int) {
	if r.closed {
		return OutcomeDiscarded, 0
	}
	if req.epoch != r.epoch {
		return OutcomeStale, 0
	}
	r.inFlight = false
	if err != nil || page == nil {
		return OutcomeFailed, 0
	}

	skipped := r.timeline.Append(page.Results)
	r.cursor.NextPage = req.Page + 1
	r.cursor.HasMore = page.HasNext()
	return OutcomeApplied, skipped
}

// Close makes every later call a no-op, so late fetch results are dropped.
func (r *Reconciler) Close() {
	r.closed = true
	r.inFlight = false
}

func (r *Reconciler) Messages() []models.Message {
	return r.timeline.Messages()
}

func (r *Reconciler) Cursor() Cursor {
	return r.cursor
}

func (r *Reconciler) Fetching() bool {
	return r.inFlight
}

func (r *Reconciler) Seeded() bool {
	return r.seeded
}

func (r *Reconciler) Len() int {
	return r.timeline.Len()
}
