package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eduportal/integrity/internal/similarity"
	"github.com/rs/zerolog/log"
)

// SupabaseClient reads notes from the portal's Supabase REST endpoint
type SupabaseClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseClient creates a new Supabase notes client
func NewSupabaseClient(baseURL, apiKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// supabaseNote mirrors a row of the notes table
type supabaseNote struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// supabaseError is the PostgREST error body
type supabaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *SupabaseClient) NotesBySubject(ctx context.Context, subjectID string) ([]similarity.Document, error) {
	query := url.Values{}
	query.Set("subject_id", "eq."+subjectID)
	query.Set("select", "id,title,content")
	query.Set("order", "created_at.asc")
	endpoint := fmt.Sprintf("%s/rest/v1/notes?%s", c.baseURL, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp supabaseError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("supabase error (status %d): %s - %s", resp.StatusCode, errResp.Code, errResp.Message)
		}
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var rows []supabaseNote
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	log.Trace().
		Str("subjectId", subjectID).
		Int("notes", len(rows)).
		Msg("Loaded notes from Supabase")

	docs := make([]similarity.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, similarity.Document{ID: row.ID, Title: row.Title, Content: row.Content})
	}
	return docs, nil
}
