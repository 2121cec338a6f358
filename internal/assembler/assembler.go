// Package assembler renders retrieved passages into the context block handed
// to the answer generator, and into source lists shown to readers.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"histrag/internal/domain"
)

// NoResults replaces the context block when retrieval found nothing.
const NoResults = "Aucun passage pertinent n'a été trouvé dans le livre."

const blockSeparator = "\n\n---\n\n"

// SystemPrompt instructs the generator to answer only from supplied excerpts
// and to cite book, chapter and pages.
const SystemPrompt = `Tu es un historien expert spécialisé dans l'histoire de la ville d'Enghien (Belgique).
Tu réponds aux questions en te basant UNIQUEMENT sur les extraits du livre
"Histoire de la ville d'Enghien" par Ernest Matthieu (1876) fournis ci-dessous.

Règles :
- Réponds toujours en français.
- Cite tes sources en indiquant le Livre, Chapitre et pages entre parenthèses.
  Exemple : (Livre I, Chapitre III, p. 120-121)
- Si l'information n'est pas dans les extraits fournis, dis-le honnêtement.
  Ne fabrique jamais d'information.
- Tu peux reformuler le texte du XIXe siècle en français moderne pour plus de clarté,
  mais reste fidèle au contenu.
- Si la question est hors sujet (pas liée à Enghien ou son histoire), redirige
  poliment vers le sujet du livre.
- Sois concis mais complet. Structure ta réponse avec des paragraphes clairs.`

// Assemble renders results, in the given order, as numbered excerpt blocks.
// Content is trimmed but never truncated.
func Assemble(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoResults
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Extrait %d] (%s)\n%s", i+1, Location(r.Metadata), strings.TrimSpace(r.Content))
	}
	return strings.Join(blocks, blockSeparator)
}

// Location formats metadata as "Livre I, Chapitre III, § 2. — Title, p. 120-121".
// Missing parts are left out.
func Location(m domain.ChunkMetadata) string {
	parts := []string{"Livre " + m.Book}
	if m.Chapter != "" {
		parts = append(parts, "Chapitre "+m.Chapter)
	}
	if m.Section != "" {
		parts = append(parts, m.Section)
	}
	if p := pages(m); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

func pages(m domain.ChunkMetadata) string {
	switch {
	case !m.HasPages():
		return ""
	case m.PageStart == m.PageEnd:
		return fmt.Sprintf("p. %d", m.PageStart)
	default:
		return fmt.Sprintf("p. %d-%d", m.PageStart, m.PageEnd)
	}
}

// UserMessage wraps the assembled context and the question for the generator.
func UserMessage(question, context string) string {
	return "Extraits du livre :\n---\n" + context + "\n---\n\nQuestion de l'utilisateur : " + question
}

type locationKey struct {
	book, chapter string
	pageStart     int
}

// DedupForDisplay keeps the most similar result per (book, chapter, page_start)
// and orders the survivors by similarity, highest first.
func DedupForDisplay(results []domain.SearchResult) []domain.SearchResult {
	best := make(map[locationKey]int, len(results))
	out := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		k := locationKey{r.Metadata.Book, r.Metadata.Chapter, r.Metadata.PageStart}
		if i, ok := best[k]; ok {
			if r.Similarity > out[i].Similarity {
				out[i] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// FormatSources renders deduplicated results as a bullet list of short locations.
func FormatSources(results []domain.SearchResult) string {
	deduped := DedupForDisplay(results)
	lines := make([]string, len(deduped))
	for i, r := range deduped {
		parts := []string{"Livre " + r.Metadata.Book}
		if r.Metadata.Chapter != "" {
			parts = append(parts, "Chap. "+r.Metadata.Chapter)
		}
		if p := pages(r.Metadata); p != "" {
			parts = append(parts, p)
		}
		lines[i] = "• " + strings.Join(parts, ", ")
	}
	return strings.Join(lines, "\n")
}

// Preview returns at most limit characters of content, with "..." appended
// when something was cut.
func Preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
