package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/assembler"
	"histrag/internal/domain"
	"histrag/internal/embedding/hashing"
	"histrag/internal/generation"
	"histrag/internal/retrieval"
	"histrag/internal/vectorstore/memory"
)

type fakeGenerator struct {
	system, user string
	deltas       []string
	err          error
}

func (f *fakeGenerator) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return strings.Join(f.deltas, ""), f.err
}

func (f *fakeGenerator) Stream(_ context.Context, system, user string, onDelta func(string) error) error {
	f.system, f.user = system, user
	if f.err != nil {
		return f.err
	}
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func newService(t *testing.T, gen generation.Generator, envs ...string) *RAGServiceImpl {
	t.Helper()
	emb := hashing.NewEmbedder(128)
	store := memory.NewStorage(128)
	texts := []string{
		"Le bailli d'Enghien rendait la justice au nom du seigneur.",
		"Les foires annuelles attiraient les marchands du Hainaut.",
	}
	vecs, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), []domain.Passage{
		{Content: texts[0], Vector: vecs[0], Metadata: domain.ChunkMetadata{Book: "II", Chapter: "I", PageStart: 40, PageEnd: 41}},
		{Content: texts[1], Vector: vecs[1], Metadata: domain.ChunkMetadata{Book: "II", Chapter: "IV"}},
	})
	require.NoError(t, err)
	return NewRAGService(retrieval.NewEngine(emb, store), gen, store, envs...)
}

func TestAskBuildsPrompt(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"Le bailli ", "jugeait."}}
	s := newService(t, gen)

	ans, err := s.Ask(context.Background(), "Le bailli d'Enghien rendait la justice au nom du seigneur.", domain.RetrievalFilter{})

	require.NoError(t, err)
	assert.Equal(t, "Le bailli jugeait.", ans.Text)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "II", ans.Sources[0].Metadata.Book)
	assert.Equal(t, assembler.SystemPrompt, gen.system)
	assert.Contains(t, gen.user, "[Extrait 1] (Livre II, Chapitre I, p. 40-41)")
	assert.True(t, strings.HasSuffix(gen.user, "Question de l'utilisateur : Le bailli d'Enghien rendait la justice au nom du seigneur."))
}

func TestAskWithoutMatchesUsesNoResultsMarker(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"Je ne sais pas."}}
	s := newService(t, gen)

	ans, err := s.Ask(context.Background(), "zzz qqq", domain.RetrievalFilter{Book: "IV"})

	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
	assert.Contains(t, gen.user, assembler.NoResults)
}

func TestSetChatTuningLimitsSources(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"ok"}}
	s := newService(t, gen)
	s.SetChatTuning(0.99, 1)

	ans, err := s.Ask(context.Background(), "Le bailli d'Enghien rendait la justice au nom du seigneur.", domain.RetrievalFilter{})
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 1)

	s.SetChatTuning(0, 0)
	assert.Equal(t, 0.99, s.chatThreshold)
	assert.Equal(t, 1, s.chatCount)
}

func TestAskValidation(t *testing.T) {
	s := newService(t, &fakeGenerator{})
	_, err := s.Ask(context.Background(), "  ", domain.RetrievalFilter{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAskWithoutGenerator(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Ask(context.Background(), "bailli", domain.RetrievalFilter{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAskStreamSendsSourcesFirst(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"a", "b"}}
	s := newService(t, gen)
	var events []string

	err := s.AskStream(context.Background(), "bailli justice", domain.RetrievalFilter{},
		func(r []domain.SearchResult) error { events = append(events, "sources"); return nil },
		func(d string) error { events = append(events, d); return nil })

	require.NoError(t, err)
	assert.Equal(t, []string{"sources", "a", "b"}, events)
}

func TestAskStreamGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.Join(domain.ErrGeneration, errors.New("upstream"))}
	s := newService(t, gen)
	sourcesSent := false

	err := s.AskStream(context.Background(), "bailli", domain.RetrievalFilter{},
		func([]domain.SearchResult) error { sourcesSent = true; return nil },
		func(string) error { return nil })

	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.True(t, sourcesSent)
}

func TestHealth(t *testing.T) {
	t.Setenv("HISTRAG_TEST_PRESENT", "x")
	t.Setenv("HISTRAG_TEST_MISSING", "")

	h := newService(t, nil, "HISTRAG_TEST_PRESENT").Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, int64(2), h.Passages)

	h = newService(t, nil, "HISTRAG_TEST_PRESENT", "HISTRAG_TEST_MISSING").Health(context.Background())
	assert.False(t, h.Healthy)
	require.Len(t, h.Checks, 3)
	assert.Equal(t, "not set", h.Checks[2].Error)
}
