package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// ReportThreshold is the similarity a document must exceed to be reported
	ReportThreshold = 10

	phraseWeight  = 0.7
	jaccardWeight = 0.3

	maxQuotedPhrases = 3
)

// ErrMissingDocumentID is returned by Validate for a document without an ID
var ErrMissingDocumentID = errors.New("document id is required")

// Document is a reference text, e.g. a course note
type Document struct {
	ID      string `json:"id" bson:"id"`
	Title   string `json:"title" bson:"title"`
	Content string `json:"content" bson:"content"`
}

// Detail describes one document that overlapped with the candidate
type Detail struct {
	DocumentID    string `json:"documentId" bson:"documentId"`
	DocumentTitle string `json:"documentTitle" bson:"documentTitle"`
	MatchedText   string `json:"matchedText" bson:"matchedText"`
	Similarity    int    `json:"similarity" bson:"similarity"`
}

// Result is the outcome of scoring one candidate text.
// Details are ordered by descending similarity.
type Result struct {
	Score   int      `json:"score" bson:"score"`
	Details []Detail `json:"details" bson:"details"`
}

// Validate checks that every document carries an ID
func Validate(documents []Document) error {
	for i, doc := range documents {
		if doc.ID == "" {
			return fmt.Errorf("documents[%d]: %w", i, ErrMissingDocumentID)
		}
	}
	return nil
}

// Score estimates how much candidateText overlaps with each document.
// It is a pure function of its inputs; a nil documents slice is treated as empty.
func Score(candidateText string, documents []Document) Result {
	result := Result{Details: []Detail{}}

	candidate := Normalize(candidateText)
	candidatePhrases := Phrases(candidate)
	candidateWords := wordSet(candidate)

	for _, doc := range documents {
		content := Normalize(doc.Content)

		matched := matchPhrases(candidatePhrases, Phrases(content))
		phraseScore := 0.0
		if len(candidatePhrases) > 0 {
			phraseScore = 100 * float64(len(matched)) / float64(len(candidatePhrases))
		}

		jaccard := Jaccard(candidateWords, wordSet(content))

		similarity := roundHalfUp(phraseWeight*phraseScore + jaccardWeight*jaccard)
		if similarity <= ReportThreshold {
			continue
		}

		result.Details = append(result.Details, Detail{
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			MatchedText:   quoteMatches(matched),
			Similarity:    similarity,
		})
	}

	sort.SliceStable(result.Details, func(i, j int) bool {
		return result.Details[i].Similarity > result.Details[j].Similarity
	})

	if len(result.Details) > 0 {
		result.Score = result.Details[0].Similarity
	}

	return result
}

// matchPhrases returns the candidate phrases that also occur in the document,
// in candidate order with duplicates kept
func matchPhrases(candidate, document []string) []string {
	if len(candidate) == 0 || len(document) == 0 {
		return nil
	}

	docSet := make(map[string]struct{}, len(document))
	for _, p := range document {
		docSet[p] = struct{}{}
	}

	matched := make([]string, 0)
	for _, p := range candidate {
		if _, ok := docSet[p]; ok {
			matched = append(matched, p)
		}
	}
	return matched
}

// Jaccard returns 100 * |a ∩ b| / |a ∪ b|, or 0 when both sets are empty
func Jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}

	return 100 * float64(intersection) / float64(union)
}

func quoteMatches(matched []string) string {
	if len(matched) <= maxQuotedPhrases {
		return strings.Join(matched, "... ")
	}
	return strings.Join(matched[:maxQuotedPhrases], "... ") + "..."
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
