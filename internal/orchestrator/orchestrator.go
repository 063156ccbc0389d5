// Package orchestrator drives the send pipeline: validate the query, append
// the user message and a pending placeholder, call the answering service off
// the caller's goroutine, then reconcile the placeholder by its captured id.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/whoknows-ai/whoknows-go/internal/answering"
	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
	"github.com/whoknows-ai/whoknows-go/internal/session"
)

// FallbackAnswer replaces the placeholder content when a request fails. The
// real failure detail goes to the session error banner, never into the
// transcript.
const FallbackAnswer = "Sorry, something went wrong while answering your question. Please try again."

// maxQueryRunes matches the hard cap the answering service applies to its own
// replies; anything longer is rejected before it leaves the client.
const maxQueryRunes = 2000

var (
	// ErrEmptyQuery rejects blank input before any store mutation.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrQueryTooLong rejects oversized input before any store mutation.
	ErrQueryTooLong = errors.New("query is too long")
	// ErrRequestInFlight rejects overlapping sends outright. One question at
	// a time; the caller may retry once the current request resolves.
	ErrRequestInFlight = errors.New("a request is already in flight")
)

// Revealer starts the progressive disclosure of a resolved answer.
type Revealer interface {
	Start(messageID, text string)
}

// Orchestrator owns the request lifecycle for one store. It never returns an
// error past Send's validation; service failures become store mutations.
type Orchestrator struct {
	store  *session.Store
	svc    answering.Service
	reveal Revealer // may be nil

	mu       sync.Mutex
	inFlight bool
	done     chan struct{} // closed when the in-flight request resolves
}

// New builds an orchestrator. reveal may be nil when no presentation layer
// wants the typewriter effect.
func New(store *session.Store, svc answering.Service, reveal Revealer) *Orchestrator {
	return &Orchestrator{store: store, svc: svc, reveal: reveal}
}

// Send validates the query, records it optimistically and dispatches the
// service call. It returns as soon as the user message and the pending
// placeholder are visible in the store; reconciliation happens asynchronously.
func (o *Orchestrator) Send(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > maxQueryRunes {
		return ErrQueryTooLong
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrRequestInFlight
	}
	o.inFlight = true
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	o.store.ClearError()
	o.store.AppendMessage(chat.Message{Role: chat.RoleUser, Content: query})
	placeholderID := o.store.AppendMessage(chat.Message{Role: chat.RoleAssistant, Pending: true})
	sessionID := o.store.CurrentID()

	logger.L.Debug("dispatching query", "session_id", sessionID, "placeholder_id", placeholderID)

	go func() {
		defer o.resolve(done)

		ans, err := o.svc.Ask(ctx, query)

		// A resolution only ever targets the session it was sent from. If the
		// user moved on, drop it; the placeholder stays pending in history.
		if o.store.CurrentID() != sessionID {
			logger.L.Debug("discarding resolution, session is no longer current",
				"session_id", sessionID, "placeholder_id", placeholderID)
			return
		}

		if err != nil {
			logger.L.Warn("query failed", "placeholder_id", placeholderID, "error", err)
			fallback := FallbackAnswer
			pending := false
			o.store.UpdateMessage(placeholderID, session.Patch{Content: &fallback, Pending: &pending})
			o.store.SetError(bannerText(err))
			return
		}

		pending := false
		o.store.UpdateMessage(placeholderID, session.Patch{
			Content:    &ans.Message,
			Pending:    &pending,
			Sources:    ans.Sources,
			Confidence: ans.Confidence,
		})
		if o.reveal != nil {
			o.reveal.Start(placeholderID, ans.Message)
		}
	}()

	return nil
}

// Busy reports whether a request is currently in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Wait blocks until the in-flight request, if any, has resolved.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) resolve(done chan struct{}) {
	o.mu.Lock()
	o.inFlight = false
	if o.done == done {
		o.done = nil
	}
	o.mu.Unlock()
	close(done)
}

// bannerText phrases a failure for the session error banner, keeping the
// unreachable/service/bad-reply distinction visible to the user.
func bannerText(err error) string {
	var svcErr *answering.Error
	if errors.As(err, &svcErr) {
		switch svcErr.Code {
		case answering.CodeUnreachable:
			return "Cannot reach the answering service. Check your connection and try again."
		case answering.CodeService:
			return "The answering service reported a problem: " + svcErr.Message
		case answering.CodeBadReply:
			return "The answering service sent back a reply that could not be understood."
		}
	}
	return "Something went wrong while sending your question. Please try again."
}
