package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/mentor-go/internal/config"
	"github.com/comigor/mentor-go/internal/history"
)

type mockLLM struct {
	mu       sync.Mutex
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
	// respond, when set, builds the reply from the request instead of calls.
	respond func(r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, r)
	respond := m.respond
	m.mu.Unlock()
	if respond != nil {
		return respond(r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured for request: " + r.Messages[len(r.Messages)-1].Content)
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}}},
	}
}

func testConfig() config.Config {
	return config.Config{
		LLM:    config.LLMConfig{Model: "gemini-test", Temperature: 0.7},
		Mentor: config.MentorConfig{SystemPrompt: "You are a mentor."},
	}
}

func turnsOf(t *testing.T, a *Agent, sessionID string) []history.Turn {
	t.Helper()
	turns, err := a.Store().GetOrCreate(sessionID).Turns()
	require.NoError(t, err)
	return turns
}

// TestAgentAsk_Scenario walks the two-call "Hello" conversation.
func TestAgentAsk_Scenario(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Hi there"), reply("Fine, thanks")}}
	a := New(client, history.NewStore(nil), testConfig())

	out, err := a.Ask(context.Background(), "s1", "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hi there", out)
	require.Equal(t, []history.Turn{
		history.UserTurn("Hello"),
		history.AssistantTurn("Hi there"),
	}, turnsOf(t, a, "s1"))

	out, err = a.Ask(context.Background(), "s1", "How are you?")
	require.NoError(t, err)
	require.Equal(t, "Fine, thanks", out)

	// Second call sees system + both prior turns + the new query.
	require.Len(t, client.requests, 2)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You are a mentor."},
		{Role: openai.ChatMessageRoleUser, Content: "Hello"},
		{Role: openai.ChatMessageRoleAssistant, Content: "Hi there"},
		{Role: openai.ChatMessageRoleUser, Content: "How are you?"},
	}, client.requests[1].Messages)
	require.Equal(t, "gemini-test", client.requests[1].Model)

	require.Len(t, turnsOf(t, a, "s1"), 4)
}

func TestAgentAsk_AlternatingTurns(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			b, err := history.NewBackend(backend)
			require.NoError(t, err)
			store := history.NewStore(b)
			t.Cleanup(func() { store.Close() })

			client := &mockLLM{respond: func(r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return reply("re: " + r.Messages[len(r.Messages)-1].Content), nil
			}}
			a := New(client, store, testConfig())

			queries := []string{"q1", "q2", "q3", "q4"}
			for _, q := range queries {
				_, err := a.Ask(context.Background(), "s", q)
				require.NoError(t, err)
			}

			turns := turnsOf(t, a, "s")
			require.Len(t, turns, 2*len(queries))
			for i, q := range queries {
				require.Equal(t, history.UserTurn(q), turns[2*i])
				require.Equal(t, history.AssistantTurn("re: "+q), turns[2*i+1])
			}
		})
	}
}

func TestAgentAsk_SessionsIsolated(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("a1"), reply("b1")}}
	a := New(client, history.NewStore(nil), testConfig())

	_, err := a.Ask(context.Background(), "s1", "for s1")
	require.NoError(t, err)
	require.Empty(t, turnsOf(t, a, "s2"))

	_, err = a.Ask(context.Background(), "s2", "for s2")
	require.NoError(t, err)

	// s2's prompt carries none of s1's turns.
	require.Len(t, client.requests[1].Messages, 2)
	require.Len(t, turnsOf(t, a, "s1"), 2)
	require.Len(t, turnsOf(t, a, "s2"), 2)
}

func TestAgentAsk_DefaultSystemPrompt(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("ok")}}
	a := New(client, history.NewStore(nil), config.Config{})

	_, err := a.Ask(context.Background(), "s", "hi")
	require.NoError(t, err)
	require.Equal(t, config.DefaultSystemPrompt, client.requests[0].Messages[0].Content)
}

func TestAgentAsk_EmptyQuery(t *testing.T) {
	client := &mockLLM{}
	a := New(client, history.NewStore(nil), testConfig())

	_, err := a.Ask(context.Background(), "s", "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
	require.Empty(t, client.requests)
}

func TestAgentAsk_SameSessionSerialized(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	client := &mockLLM{respond: func(r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		mu.Lock()
		inFlight++
		maxSeen = max(maxSeen, inFlight)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return reply("re: " + r.Messages[len(r.Messages)-1].Content), nil
	}}
	a := New(client, history.NewStore(nil), testConfig())

	const n = 10
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Ask(context.Background(), "shared", fmt.Sprintf("q%d", i))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen, "rounds on one session must not overlap")
	turns := turnsOf(t, a, "shared")
	require.Len(t, turns, 2*n)
	for i := 0; i < len(turns); i += 2 {
		require.Equal(t, history.RoleUser, turns[i].Role)
		require.Equal(t, history.AssistantTurn("re: "+turns[i].Content), turns[i+1])
	}

	// Each round saw exactly the pairs recorded before it.
	for _, req := range client.requests {
		require.Zero(t, len(req.Messages)%2, "system + pairs + query")
	}
}

func TestAgentAsk_DistinctSessionsConcurrent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	client := &mockLLM{respond: func(r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		started <- struct{}{}
		<-release
		return reply("ok"), nil
	}}
	a := New(client, history.NewStore(nil), testConfig())

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Ask(context.Background(), id, "hi")
			require.NoError(t, err)
		}()
	}

	// Both rounds reach the service before either is released.
	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("sessions blocked each other")
		}
	}
	close(release)
	wg.Wait()
}


func TestAgentAsk_WaitingRoundHonoursContext(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &mockLLM{respond: func(r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		close(entered)
		<-release
		return reply("first"), nil
	}}
	a := New(client, history.NewStore(nil), testConfig())

	first := make(chan error, 1)
	go func() {
		_, err := a.Ask(context.Background(), "busy", "one")
		first <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Ask(ctx, "busy", "two")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-first)

	require.Equal(t, []history.Turn{
		history.UserTurn("one"),
		history.AssistantTurn("first"),
	}, turnsOf(t, a, "busy"))
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.requests, 1, "the abandoned round must not reach the service")
}
