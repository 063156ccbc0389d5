package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whoknows-ai/whoknows-go/internal/answering"
	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/session"
)

type revealCall struct {
	id   string
	text string
}

type mockRevealer struct {
	mu    sync.Mutex
	calls []revealCall
}

func (m *mockRevealer) Start(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, revealCall{id: id, text: text})
}

func (m *mockRevealer) snapshot() []revealCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]revealCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func TestSend_SuccessResolvesPlaceholder(t *testing.T) {
	st := session.New(nil, nil)
	svc := &answering.MockService{
		AskFunc: func(_ context.Context, query string) (*answering.Answer, error) {
			require.Equal(t, "Who is the CTO?", query)
			return &answering.Answer{
				Message: "Alexandra Chen is CTO.",
				Sources: []chat.Source{{Kind: chat.SourceDocument, Title: "People and Teams"}},
			}, nil
		},
	}
	rev := &mockRevealer{}
	o := New(st, svc, rev)

	require.NoError(t, o.Send(context.Background(), "Who is the CTO?"))
	o.Wait()

	cur, ok := st.Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 2)

	user, asst := cur.Messages[0], cur.Messages[1]
	require.Equal(t, chat.RoleUser, user.Role)
	require.Equal(t, "Who is the CTO?", user.Content)
	require.Equal(t, chat.RoleAssistant, asst.Role)
	require.Equal(t, "Alexandra Chen is CTO.", asst.Content)
	require.False(t, asst.Pending)
	require.Len(t, asst.Sources, 1)
	require.Equal(t, "People and Teams", asst.Sources[0].Title)
	require.Empty(t, st.Err())

	calls := rev.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, asst.ID, calls[0].id)
	require.Equal(t, "Alexandra Chen is CTO.", calls[0].text)
}

func TestSend_TransportFailureUsesFallback(t *testing.T) {
	st := session.New(nil, nil)
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			return nil, &answering.Error{Code: answering.CodeUnreachable, Message: "cannot reach the answering service"}
		},
	}
	rev := &mockRevealer{}
	o := New(st, svc, rev)

	require.NoError(t, o.Send(context.Background(), "Who is the CTO?"))
	o.Wait()

	cur, ok := st.Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 2)
	require.Equal(t, FallbackAnswer, cur.Messages[1].Content)
	require.False(t, cur.Messages[1].Pending)
	require.Contains(t, st.Err(), "Cannot reach the answering service")
	require.Empty(t, rev.snapshot(), "no reveal for a failed answer")
}

func TestSend_ServiceErrorBannerCarriesDetail(t *testing.T) {
	st := session.New(nil, nil)
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			return nil, &answering.Error{
				Code:    answering.CodeService,
				Status:  500,
				Message: "An error occurred while processing your request. (status 500)",
			}
		},
	}
	o := New(st, svc, nil)

	require.NoError(t, o.Send(context.Background(), "anything"))
	o.Wait()

	require.Contains(t, st.Err(), "An error occurred while processing your request.")
}

func TestSend_RejectsBlankQueryWithoutTouchingStore(t *testing.T) {
	st := session.New(nil, nil)
	o := New(st, &answering.MockService{}, nil)

	require.ErrorIs(t, o.Send(context.Background(), ""), ErrEmptyQuery)
	require.ErrorIs(t, o.Send(context.Background(), "   \t\n"), ErrEmptyQuery)

	_, ok := st.Current()
	require.False(t, ok)
	require.Empty(t, st.History())
}

func TestSend_RejectsOversizedQuery(t *testing.T) {
	st := session.New(nil, nil)
	o := New(st, &answering.MockService{}, nil)

	require.ErrorIs(t, o.Send(context.Background(), strings.Repeat("q", maxQueryRunes+1)), ErrQueryTooLong)

	_, ok := st.Current()
	require.False(t, ok)
}

func TestSend_TrimsQueryBeforeRecordingIt(t *testing.T) {
	st := session.New(nil, nil)
	svc := &answering.MockService{
		AskFunc: func(_ context.Context, query string) (*answering.Answer, error) {
			require.Equal(t, "spaced out", query)
			return &answering.Answer{Message: "ok"}, nil
		},
	}
	o := New(st, svc, nil)

	require.NoError(t, o.Send(context.Background(), "  spaced out  "))
	o.Wait()

	cur, _ := st.Current()
	require.Equal(t, "spaced out", cur.Messages[0].Content)
}

func TestSend_RejectsOverlappingSends(t *testing.T) {
	st := session.New(nil, nil)
	release := make(chan struct{})
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			<-release
			return &answering.Answer{Message: "done"}, nil
		},
	}
	o := New(st, svc, nil)

	require.NoError(t, o.Send(context.Background(), "first"))
	require.True(t, o.Busy())
	require.ErrorIs(t, o.Send(context.Background(), "second"), ErrRequestInFlight)

	// The rejected send must leave no trace.
	cur, ok := st.Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 2)
	require.Equal(t, "first", cur.Messages[0].Content)

	close(release)
	o.Wait()
	require.False(t, o.Busy())

	// And a new send is accepted once the first resolved.
	require.NoError(t, o.Send(context.Background(), "third"))
	o.Wait()
}

func TestSend_PlaceholderVisibleWhileInFlight(t *testing.T) {
	st := session.New(nil, nil)
	release := make(chan struct{})
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			<-release
			return &answering.Answer{Message: "the answer"}, nil
		},
	}
	o := New(st, svc, nil)

	require.NoError(t, o.Send(context.Background(), "slow question"))

	cur, ok := st.Current()
	require.True(t, ok)
	require.Len(t, cur.Messages, 2)
	require.Equal(t, chat.RoleUser, cur.Messages[0].Role)
	require.True(t, cur.Messages[1].Pending)
	require.Empty(t, cur.Messages[1].Content)

	close(release)
	o.Wait()

	cur, _ = st.Current()
	require.False(t, cur.Messages[1].Pending)
	require.Equal(t, "the answer", cur.Messages[1].Content)
}

func TestSend_ResolutionDiscardedAfterSessionSwitch(t *testing.T) {
	st := session.New(nil, nil)
	release := make(chan struct{})
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			<-release
			return &answering.Answer{Message: "too late"}, nil
		},
	}
	rev := &mockRevealer{}
	o := New(st, svc, rev)

	require.NoError(t, o.Send(context.Background(), "orphaned question"))
	staleID := st.CurrentID()

	st.StartNewSession()
	close(release)
	o.Wait()

	// The stale session keeps its unresolved placeholder; nothing leaks into
	// the fresh one.
	_, ok := st.Current()
	require.False(t, ok)
	require.Empty(t, st.Err())
	require.Empty(t, rev.snapshot())

	hist := st.History()
	require.Len(t, hist, 1)
	require.Equal(t, staleID, hist[0].ID)
	require.False(t, o.Busy(), "in-flight flag must clear even on discard")
}

func TestSend_FailureDiscardedAfterSessionSwitch(t *testing.T) {
	st := session.New(nil, nil)
	release := make(chan struct{})
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			<-release
			return nil, &answering.Error{Code: answering.CodeUnreachable, Message: "gone"}
		},
	}
	o := New(st, svc, nil)

	require.NoError(t, o.Send(context.Background(), "orphaned question"))
	st.StartNewSession()
	close(release)
	o.Wait()

	require.Empty(t, st.Err(), "stale failures must not banner the new session")
}

func TestSend_ClearsPreviousErrorBanner(t *testing.T) {
	st := session.New(nil, nil)
	svc := &answering.MockService{
		AskFunc: func(context.Context, string) (*answering.Answer, error) {
			return &answering.Answer{Message: "fine now"}, nil
		},
	}
	o := New(st, svc, nil)

	st.SetError("leftover failure")
	require.NoError(t, o.Send(context.Background(), "retry"))
	o.Wait()

	require.Empty(t, st.Err())
}

func TestWait_ReturnsImmediatelyWhenIdle(t *testing.T) {
	o := New(session.New(nil, nil), &answering.MockService{}, nil)
	o.Wait()
	require.False(t, o.Busy())
}
